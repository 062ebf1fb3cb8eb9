package archive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/flipflop-server/internal/obslog"
	"github.com/park285/flipflop-server/internal/room"
)

// Archive fans a finished match out to whichever backends are configured.
// Either field may be nil.
type Archive struct {
	Store *Store
	Repo  *Repository
}

// Record persists a match result. Safe to call on a nil Archive; failures are
// logged, never surfaced to game flow.
func (a *Archive) Record(res room.Result) {
	if a == nil || (a.Store == nil && a.Repo == nil) {
		return
	}
	id := uuid.New().String()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Store != nil {
		if err := a.Store.SaveResult(ctx, id, res); err != nil {
			obslog.L().Error("archive_redis_failed", zap.String("match_id", id), zap.Error(err))
		}
	}
	if a.Repo != nil {
		if err := a.Repo.SaveResult(ctx, id, res); err != nil {
			obslog.L().Error("archive_db_failed", zap.String("match_id", id), zap.Error(err))
		}
	}
	obslog.L().Info("match_archived",
		zap.String("match_id", id),
		zap.String("room_id", res.RoomID),
		zap.String("winner", string(res.Winner)),
		zap.String("reason", res.Reason))
}
