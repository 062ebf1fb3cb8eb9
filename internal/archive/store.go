// Package archive records finished matches: recent results in Redis for fast
// lookup, full rows in Postgres for durable history. Both sides are optional;
// a nil Archive drops results silently.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/flipflop-server/internal/room"
)

const (
	ttlMatch  = 24 * time.Hour
	recentMax = 50
)

// Store keeps recent match results in Redis.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// NewStoreFromURL dials Redis from a redis:// URL and verifies the connection.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) keyMatch(id string) string  { return "match:" + id }
func (s *Store) keyUser(user string) string { return "match:index:user:" + user }

// SaveResult stores the result under a match key and indexes it for both
// players, trimming per-user history to the most recent entries.
func (s *Store) SaveResult(ctx context.Context, id string, res room.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyMatch(id), raw, ttlMatch).Err(); err != nil {
		return err
	}
	for _, user := range []string{res.WhiteID, res.BlackID} {
		if user == "" {
			continue
		}
		key := s.keyUser(user)
		if err := s.rdb.LPush(ctx, key, id).Err(); err != nil {
			return err
		}
		_ = s.rdb.LTrim(ctx, key, 0, recentMax-1).Err()
		_ = s.rdb.Expire(ctx, key, ttlMatch).Err()
	}
	return nil
}

// LoadResult fetches one archived result; (nil, nil) when missing or expired.
func (s *Store) LoadResult(ctx context.Context, id string) (*room.Result, error) {
	raw, err := s.rdb.Get(ctx, s.keyMatch(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res room.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RecentByUser lists a player's recent results, newest first. Entries whose
// match key already expired are skipped.
func (s *Store) RecentByUser(ctx context.Context, user string, limit int) ([]room.Result, error) {
	if limit <= 0 || limit > recentMax {
		limit = recentMax
	}
	ids, err := s.rdb.LRange(ctx, s.keyUser(user), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]room.Result, 0, len(ids))
	for _, id := range ids {
		res, err := s.LoadResult(ctx, id)
		if err != nil {
			return nil, err
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
