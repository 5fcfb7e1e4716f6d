// Package rollover drives day-boundary eviction on a timer so the
// tracking window rolls over promptly even when no messages arrive
// around midnight. The inline check in the dedup engine covers busy
// chats; this service covers quiet ones.
package rollover

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dejabot/internal/dayclock"
	logx "dejabot/pkg/logx"
)

type Config struct {
	// CheckInterval is the safety-net cadence between cron firings.
	// Covers clock skew and a missed midnight entry (suspend/resume).
	CheckInterval time.Duration
}

const defaultCheckInterval = time.Minute

// Checker is the engine-side hook; CheckRollover must be idempotent.
type Checker interface {
	CheckRollover(ctx context.Context)
}

type Service struct {
	log     logx.Logger
	clock   *dayclock.Clock
	checker Checker

	mu        sync.Mutex
	cfg       Config
	c         *cron.Cron
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, clock *dayclock.Clock, checker Checker, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	return &Service{log: log, clock: clock, checker: checker, cfg: cfg}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		// already running
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	// Cron fires at wall-clock midnight in the configured zone, which
	// tracks DST shifts for free.
	s.c = cron.New(cron.WithLocation(s.clock.Location()))
	if _, err := s.c.AddFunc("0 0 * * *", func() {
		s.check(runCtx, "cron")
	}); err != nil {
		cancel()
		s.c = nil
		return err
	}
	s.c.Start()

	interval := s.cfg.CheckInterval
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in rollover ticker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.check(runCtx, "interval")
			}
		}
	}()

	s.log.Debug("rollover service started",
		logx.String("tz", s.clock.Location().String()),
		logx.Duration("check_interval", interval))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		stopped := c.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) check(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	s.log.Trace("rollover check", logx.String("trigger", trigger))
	s.checker.CheckRollover(ctx)
}
