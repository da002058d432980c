// Package app wires configuration, logging, storage, the Telegram adapter,
// the command router, the reminder scheduler and maintenance into one
// start/stoppable unit.
package app

import (
	"context"
	"time"

	"notebot/internal/bot"
	"notebot/internal/config"
	"notebot/internal/maintenance"
	"notebot/internal/reminder"
	rtsup "notebot/internal/runtime/supervisor"
	"notebot/internal/storage"
	"notebot/internal/transport/telegram"
	logx "notebot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store  storage.Store
	tg     *telegram.Adapter
	router *bot.Router
	sched  *reminder.Scheduler
	maint  *maintenance.Service

	sup *rtsup.Supervisor
}

// New loads and validates configuration (failing fast on a bad one) and
// constructs every component. Nothing is started yet.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	busy, err := cfg.BusyTimeout()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	poll, err := cfg.PollTimeout()
	if err != nil {
		return nil, err
	}
	tg, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    poll,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	rcfg := reminder.Config{
		IntervalDays:    cfg.Reminder.IntervalDays,
		WindowStartHour: cfg.Reminder.WindowStartHour,
		WindowEndHour:   cfg.Reminder.WindowEndHour,
	}
	sched, err := reminder.New(rcfg, store, tg, log.With(logx.String("comp", "reminder")))
	if err != nil {
		return nil, err
	}

	router := bot.New(bot.Config{
		MediaDir: cfg.Media.Dir,
		Reminder: rcfg,
	}, store, sched, tg, log.With(logx.String("comp", "bot")))

	maint, err := maintenance.New(cfg.Maintenance.PruneSchedule, cfg.Media.Dir, store,
		log.With(logx.String("comp", "maintenance")))
	if err != nil {
		return nil, err
	}

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		store:  store,
		tg:     tg,
		router: router,
		sched:  sched,
		maint:  maint,
	}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Stats exposes the reminder engine's introspection snapshot.
func (a *App) Stats(ctx context.Context) (reminder.Snapshot, error) {
	return a.sched.Stats(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "app"))))

	// Hot reload applies logging only; reminder settings stay fixed until
	// restart to keep the engine's config read-only (and race-free).
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c, a.onReload)
	})

	if err := a.router.Start(ctx); err != nil {
		return err
	}
	a.sched.Start()
	a.maint.Start()
	a.log.Info("notebot started")
	return nil
}

func (a *App) onReload(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.log.Info("logging settings applied", logx.String("level", cfg.Logging.Level))
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("shutting down")
	a.maint.Stop(ctx)
	a.sched.Stop()
	a.router.Stop(ctx)
	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.sup.Wait(wctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("notebot stopped")
	return a.logSvc.Close()
}
