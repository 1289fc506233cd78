// Package janitor runs the retention purge for archived inbox items.
package janitor

import (
	"context"
	"time"

	"github.com/mlourenco/refbox/internal/inbox"
	"go.uber.org/zap"
)

// Janitor periodically deletes archived items older than the retention window.
type Janitor struct {
	inbox     *inbox.Service
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// New creates a janitor with the given retention window and run interval.
func New(svc *inbox.Service, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		inbox:     svc,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins the purge loop. The first purge runs immediately.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	go j.loop(ctx)
}

// Stop stops the purge loop.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
}

func (j *Janitor) loop(ctx context.Context) {
	j.purge()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.purge()
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) purge() {
	cutoff := time.Now().Add(-j.retention)
	n, err := j.inbox.PurgeArchived(cutoff)
	if err != nil {
		j.logger.Error("retention purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("retention purge completed", zap.Int64("purged", n))
	}
}
