package usecase

import (
	"context"
	"log/slog"
	"time"
)

type sweeper interface {
	Sweep(now time.Time)
}

// CleanupScheduler periodically sweeps the room table, promoting
// disconnected rooms through the cleanup state machine and evicting the
// expired ones.
type CleanupScheduler struct {
	logger   *slog.Logger
	rooms    sweeper
	interval time.Duration
	now      func() time.Time
}

func NewCleanupScheduler(logger *slog.Logger, rooms sweeper, interval time.Duration, now func() time.Time) *CleanupScheduler {
	return &CleanupScheduler{
		logger:   logger.With("component", "cleanup"),
		rooms:    rooms,
		interval: interval,
		now:      now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Sweeps are
// independent from message processing and from the heartbeat cycle.
func (that *CleanupScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			that.rooms.Sweep(that.now())
		}
	}
}
