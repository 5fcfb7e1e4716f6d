// Package app wires the bot together: config, logging, storage, the
// dedup engine, the rollover timer, and the Telegram transport, plus
// the single event-consumption loop that owns all dedup state changes.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dejabot/internal/config"
	"dejabot/internal/dayclock"
	"dejabot/internal/dedup"
	"dejabot/internal/eventbus"
	"dejabot/internal/rollover"
	"dejabot/internal/storage"
	kit "dejabot/internal/transport"
	"dejabot/internal/transport/telegram"
	logx "dejabot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	clock   *dayclock.Clock
	bus     eventbus.Bus
	store   storage.Store
	engine  *dedup.Engine
	roll    *rollover.Service
	adapter kit.Adapter

	// Options the consume loop reads per event; guarded for hot reload.
	optMu           sync.Mutex
	group           int64
	replyToOriginal bool
	limiter         *rate.Limiter

	timezone string // fixed at startup; a change needs a restart

	updates   chan kit.Update
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	startMu sync.Mutex
	started bool
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(cfg); err != nil {
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
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	tz := strings.TrimSpace(cfg.Dedup.Timezone)
	if tz == "" {
		tz = config.DefaultTimezone
	}
	clock, err := dayclock.Load(tz)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	engine, err := dedup.New(ctx, mapDedupConfig(cfg), clock, store, bus, log.With(logx.String("comp", "dedup")))
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	checkInterval, err := config.ParseDurationOrDefault("dedup.check_interval", cfg.Dedup.CheckInterval, time.Minute)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	roll := rollover.New(rollover.Config{CheckInterval: checkInterval}, clock, engine, log.With(logx.String("comp", "rollover")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		logs:     logSvc,
		log:      log,
		clock:    clock,
		bus:      bus,
		store:    store,
		engine:   engine,
		roll:     roll,
		adapter:  adapter,
		timezone: tz,
	}
	a.applyOptions(cfg)
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	if a.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.updates = make(chan kit.Update, 64)

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return fmt.Errorf("start transport: %w", err)
	}
	if err := a.roll.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start rollover: %w", err)
	}

	a.wg.Add(4)
	go func() {
		defer a.wg.Done()
		a.consume(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		a.observe(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		a.watchConfig(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	notifyReady(a.log)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		watchdogLoop(runCtx, a.log)
	}()

	a.started = true
	keys, _ := a.engine.Counts()
	a.log.Info("started",
		logx.String("tz", a.timezone),
		logx.Int64("group", a.watchedGroup()),
		logx.Int("restored_keys", keys))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false

	notifyStopping(a.log)

	a.roll.Stop(ctx)
	_ = a.adapter.Stop(ctx)
	if a.runCancel != nil {
		a.runCancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown cancelled while draining", logx.Err(ctx.Err()))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// watchConfig applies hot-reloadable settings when the config file
// changes on disk.
func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.engine.Apply(mapDedupConfig(cfg))
			a.applyOptions(cfg)

			tz := strings.TrimSpace(cfg.Dedup.Timezone)
			if tz == "" {
				tz = config.DefaultTimezone
			}
			if tz != a.timezone {
				a.log.Warn("timezone change requires a restart",
					logx.String("active", a.timezone), logx.String("configured", tz))
			}
		}
	}
}

func (a *App) applyOptions(cfg *config.Config) {
	rps := cfg.Telegram.ReplyRatePerSec
	if rps <= 0 {
		rps = 1
	}
	a.optMu.Lock()
	a.group = cfg.Telegram.Group
	a.replyToOriginal = cfg.Telegram.ReplyToOriginal
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	a.optMu.Unlock()
}

func (a *App) watchedGroup() int64 {
	a.optMu.Lock()
	defer a.optMu.Unlock()
	return a.group
}

func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.Telegram.Group == 0 {
		return fmt.Errorf("telegram.group is required")
	}
	tz := strings.TrimSpace(cfg.Dedup.Timezone)
	if tz == "" {
		tz = config.DefaultTimezone
	}
	if _, err := dayclock.Load(tz); err != nil {
		return err
	}
	switch cfg.Dedup.ReplyOrder {
	case "", dedup.OrderAsc, dedup.OrderDesc:
	default:
		return fmt.Errorf("dedup.reply_order must be %q or %q", dedup.OrderAsc, dedup.OrderDesc)
	}
	if _, err := config.ParseDurationField("dedup.check_interval", cfg.Dedup.CheckInterval); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

func mapDedupConfig(cfg *config.Config) dedup.Config {
	return dedup.Config{
		MaxWords:   cfg.Dedup.MaxWords,
		SeenLimit:  cfg.Dedup.SeenLimit,
		ReplyOrder: cfg.Dedup.ReplyOrder,
		TimeLabel:  cfg.Dedup.TimeLabel,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}
