// Package boardimg renders a board position to PNG for the HTTP snapshot
// endpoint. Piece glyphs are embedded SVGs rasterized once per size and
// cached.
package boardimg

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/flipflop-server/internal/game"
)

//go:embed assets/*.svg
var glyphFiles embed.FS

const (
	squareSize = 72
	margin     = 28
)

var (
	lightSquare = color.RGBA{R: 0xEE, G: 0xE2, B: 0xC8, A: 0xFF}
	darkSquare  = color.RGBA{R: 0x9C, G: 0x7B, B: 0x58, A: 0xFF}
	goalTint    = color.RGBA{R: 0x4C, G: 0xAF, B: 0x50, A: 0x60}
	background  = color.RGBA{R: 0x31, G: 0x2A, B: 0x24, A: 0xFF}
	labelColor  = color.RGBA{R: 0xE8, G: 0xE0, B: 0xD0, A: 0xFF}
)

type glyphKey struct {
	name string
	size int
}

var (
	glyphCache   = map[glyphKey]image.Image{}
	glyphCacheMu sync.RWMutex
)

func glyphName(p *game.Piece) string {
	prefix := "b"
	if p.Color == game.White {
		prefix = "w"
	}
	suffix := "b"
	if p.Side == game.SideRook {
		suffix = "r"
	}
	return "assets/" + prefix + suffix + ".svg"
}

func renderGlyph(name string, size int) (image.Image, error) {
	key := glyphKey{name: name, size: size}

	glyphCacheMu.RLock()
	if img, ok := glyphCache[key]; ok {
		glyphCacheMu.RUnlock()
		return img, nil
	}
	glyphCacheMu.RUnlock()

	data, err := glyphFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read glyph %s: %w", name, err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse glyph svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	glyphCacheMu.Lock()
	glyphCache[key] = img
	glyphCacheMu.Unlock()
	return img, nil
}

// Render draws the wire-encoded position and returns PNG bytes.
func Render(boardStr string) ([]byte, error) {
	g, err := game.Decode(boardStr)
	if err != nil {
		return nil, err
	}
	size := g.Size()
	boardPx := size * squareSize
	total := boardPx + margin*2

	img := image.NewRGBA(image.Rect(0, 0, total, total))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	origin := image.Point{X: margin, Y: margin}
	drawSquares(img, g, origin)
	if err := drawPieces(img, g, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, size, origin)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawSquares(img *image.RGBA, g *game.FlipFlop, origin image.Point) {
	size := g.Size()
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			fill := lightSquare
			if (row+col)%2 == 1 {
				fill = darkSquare
			}
			rect := squareRect(row, col, origin)
			draw.Draw(img, rect, image.NewUniform(fill), image.Point{}, draw.Src)
			p := game.Pos{Row: row, Col: col}
			if p == g.Goal(game.White) || p == g.Goal(game.Black) {
				draw.Draw(img, rect, image.NewUniform(goalTint), image.Point{}, draw.Over)
			}
		}
	}
}

func drawPieces(img *image.RGBA, g *game.FlipFlop, origin image.Point) error {
	size := g.Size()
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			p := g.At(game.Pos{Row: row, Col: col})
			if p == nil {
				continue
			}
			glyph, err := renderGlyph(glyphName(p), squareSize)
			if err != nil {
				return err
			}
			rect := squareRect(row, col, origin)
			draw.Draw(img, rect, glyph, image.Point{}, draw.Over)
		}
	}
	return nil
}

// drawCoordinates labels columns A.. along the bottom and rows 1.. up the
// left side, matching the square notation players use.
func drawCoordinates(img *image.RGBA, size int, origin image.Point) {
	face := basicfont.Face7x13
	for col := 0; col < size; col++ {
		label := string(rune('A' + col))
		x := origin.X + col*squareSize + squareSize/2 - 3
		y := origin.Y + size*squareSize + 18
		drawLabel(img, face, label, x, y)
	}
	for row := 0; row < size; row++ {
		label := fmt.Sprintf("%d", size-row)
		x := origin.X - 18
		y := origin.Y + row*squareSize + squareSize/2 + 4
		drawLabel(img, face, label, x, y)
	}
}

func drawLabel(img *image.RGBA, face font.Face, text string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func squareRect(row, col int, origin image.Point) image.Rectangle {
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}
