package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler drives the delivery sweep: one tick per interval, an immediate
// tick on start, and out-of-band ticks via Kick for the admin trigger.
type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)

	running atomic.Bool
	kick    chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("sweep scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("sweep scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			case <-s.kick:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("sweep scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Kick requests one extra tick outside the regular interval. Returns false
// when the scheduler is not running. Multiple kicks before the tick starts
// coalesce into one.
func (s *Scheduler) Kick() bool {
	if !s.running.Load() {
		return false
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return true
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep tick panic recovered", "panic", r)
		}
	}()

	// Each tick gets a deadline aligned to the interval so a hung sweep
	// cannot pile up behind the next one.
	tctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	s.tickFn(tctx)
	slog.Info("sweep tick completed", "duration_ms", time.Since(start).Milliseconds())
}
