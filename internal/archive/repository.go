package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/flipflop-server/internal/room"
)

// Repository persists finished matches to Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished match row keyed by match id.
func (r *Repository) SaveResult(ctx context.Context, id string, res room.Result) error {
	if r == nil || r.db == nil {
		return nil
	}

	duration := res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO flipflop_matches (
	    match_id, room_id, game_type, game_mode,
	    white_id, white_name, black_id, black_name,
	    winner, reason, moves, final_board,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    winner=EXCLUDED.winner,
	    reason=EXCLUDED.reason,
	    moves=EXCLUDED.moves,
	    final_board=EXCLUDED.final_board,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		id, res.RoomID, int(res.GameType), int(res.GameMode),
		res.WhiteID, res.WhiteName, res.BlackID, res.BlackName,
		string(res.Winner), res.Reason, res.Moves, res.FinalBoard,
		res.StartedAt, res.EndedAt, duration,
	)
	return err
}
