package boardimg

import (
	"bytes"
	"image/png"
	"testing"
)

func TestRenderStartPosition(t *testing.T) {
	data, err := Render("aaa/ooo/xxx1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	want := 3*squareSize + 2*margin
	b := img.Bounds()
	if b.Dx() != want || b.Dy() != want {
		t.Fatalf("dims = %dx%d, want %dx%d", b.Dx(), b.Dy(), want, want)
	}
}

func TestRenderFiveByFive(t *testing.T) {
	data, err := Render("aaaaa/ooooo/ooooo/ooooo/xxxxx2")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	want := 5*squareSize + 2*margin
	if img.Bounds().Dx() != want {
		t.Fatalf("width = %d, want %d", img.Bounds().Dx(), want)
	}
}

func TestRenderRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "aaa/ooo/xxx", "zzz/ooo/xxx1", "aa/oo1"} {
		if _, err := Render(bad); err == nil {
			t.Fatalf("Render(%q) accepted", bad)
		}
	}
}
