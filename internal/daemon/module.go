// Package daemon wires the refboxd background process: the retention
// janitor and the reachability prober over a locked profile store. User
// actions (capture, conversion, retry) run in the CLI against the same
// database.
package daemon

import (
	"context"
	"time"

	"github.com/mlourenco/refbox/internal/bus"
	"github.com/mlourenco/refbox/internal/config"
	"github.com/mlourenco/refbox/internal/inbox"
	"github.com/mlourenco/refbox/internal/janitor"
	"github.com/mlourenco/refbox/internal/lock"
	"github.com/mlourenco/refbox/internal/logging"
	"github.com/mlourenco/refbox/internal/profile"
	"github.com/mlourenco/refbox/internal/reach"
	"github.com/mlourenco/refbox/internal/store"
	"github.com/mlourenco/refbox/internal/tracker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideTracker,
			provideLock,
			provideStore,
			provideInboxService,
			provideProber,
			provideJanitor,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *tracker.Tracker {
	return tracker.New(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideInboxService(db *store.DB, b *bus.Bus, logger *zap.Logger) *inbox.Service {
	return inbox.NewService(db, b, logger)
}

func provideProber(p Params, tr *tracker.Tracker, logger *zap.Logger) *reach.Prober {
	interval := time.Duration(p.Config.ProbeIntervalSeconds) * time.Second
	return reach.NewProber(p.Config.ProbeURL, interval, tr, logger)
}

func provideJanitor(p Params, svc *inbox.Service, logger *zap.Logger) *janitor.Janitor {
	retention := time.Duration(p.Config.RetentionDays) * 24 * time.Hour
	interval := time.Duration(p.Config.PurgeIntervalMinutes) * time.Minute
	return janitor.New(svc, retention, interval, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, jn *janitor.Janitor, pr *reach.Prober, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the retention purge loop.
			jn.Start(context.Background())

			// Start the reachability prober (no-op without a probe url).
			pr.Start(context.Background())

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			pr.Stop()
			jn.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
