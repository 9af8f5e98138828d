// Package schedule runs the form walk on a fixed interval and owns the
// browser session it runs in.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodsign/monday"
	"github.com/google/uuid"
	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/log"
)

// ErrAlreadyStarted is returned when Start is called on a scheduler that
// already ran.
var ErrAlreadyStarted = errors.New("scheduler already started")

type State int32

const (
	Idle State = iota
	Running
	Executing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Executing:
		return "executing"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Opener launches a browser and returns its page.
type Opener func(ctx context.Context) (browser.Page, error)

// Walk performs one complete pass over the form on page.
type Walk func(ctx context.Context, page browser.Page, address string, data map[string]string) error

// CycleOutcome is the result of one tick.
type CycleOutcome struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Success  bool
	Err      error
}

func (o CycleOutcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

type Option func(*Scheduler)

// WithRecreateDelay sets the pause between closing a failed session and
// opening a new one.
func WithRecreateDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.recreateDelay = d }
}

// WithLocale sets the locale cycle timestamps are logged in.
func WithLocale(l monday.Locale) Option {
	return func(s *Scheduler) { s.locale = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler runs the walk once immediately and then every interval until it
// is stopped. There is at most one browser session and never more than one
// walk at a time.
type Scheduler struct {
	open          Opener
	walk          Walk
	recreateDelay time.Duration
	locale        monday.Locale
	metrics       *Metrics

	// page is only touched by the goroutine running Start.
	page browser.Page

	started  atomic.Bool
	running  atomic.Bool
	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

func New(open Opener, walk Walk, opts ...Option) *Scheduler {
	s := &Scheduler{
		open:          open,
		walk:          walk,
		recreateDelay: 5 * time.Second,
		locale:        monday.LocaleEnUS,
		stopCh:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Start opens the browser session and runs the walk until Stop is called or
// ctx is done. The interval is measured from the end of one walk to the
// start of the next. An error is only returned if the first session could
// not be opened; the session is closed on every return.
func (s *Scheduler) Start(ctx context.Context, address string, data map[string]string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v", interval)
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	logger := log.LoggerFromContext(ctx)

	page, err := s.open(ctx)
	if err != nil {
		s.setState(Stopped)
		return fmt.Errorf("could not open browser session: %w", err)
	}
	s.page = page
	defer s.teardown(ctx)

	s.running.Store(true)
	s.setState(Running)
	logger.Info(fmt.Sprintf("submitting %s every %v", address, interval))

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}
		s.tick(ctx, address, data)
		if !s.running.Load() {
			return nil
		}
		logger.Info(fmt.Sprintf("next cycle at %s", s.timestamp(time.Now().Add(interval))))
		if !s.wait(ctx, interval) {
			return nil
		}
	}
}

// Stop prevents any further tick. A tick in flight runs to completion. Stop
// may be called from any goroutine and more than once.
func (s *Scheduler) Stop() {
	s.running.Store(false)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) tick(ctx context.Context, address string, data map[string]string) {
	s.setState(Executing)
	defer func() {
		if s.running.Load() {
			s.setState(Running)
		}
	}()

	out := CycleOutcome{ID: uuid.New().String(), Started: time.Now()}
	logger := log.LoggerFromContext(ctx).With(slog.String("cycle", out.ID))
	ctx = log.ContextWithLogger(ctx, logger)
	logger.Info(fmt.Sprintf("cycle started at %s", s.timestamp(out.Started)))

	if s.page == nil || !s.page.Alive(ctx) {
		logger.Warn("browser session is gone, opening a new one")
		if err := s.reopen(ctx); err != nil {
			out.Finished = time.Now()
			out.Err = err
			s.finish(ctx, out)
			return
		}
	}

	out.Err = s.walk(ctx, s.page, address, data)
	out.Finished = time.Now()
	out.Success = out.Err == nil
	s.finish(ctx, out)

	if out.Err != nil {
		s.closeSession(ctx)
		if !s.running.Load() {
			return
		}
		if !s.wait(ctx, s.recreateDelay) {
			return
		}
		// a failed reopen leaves the session empty for the next tick
		s.reopen(ctx)
	}
}

func (s *Scheduler) finish(ctx context.Context, out CycleOutcome) {
	logger := log.LoggerFromContext(ctx)
	s.statsMu.Lock()
	s.stats.Cycles++
	if out.Success {
		s.stats.Successes++
	} else {
		s.stats.Failures++
	}
	s.stats.LastCycle = out.Finished
	s.statsMu.Unlock()

	if out.Success {
		logger.Info(fmt.Sprintf("cycle finished successfully at %s", s.timestamp(out.Finished)), slog.Duration("duration", out.Duration()))
	} else {
		logger.Error(fmt.Sprintf("cycle failed at %s: %v", s.timestamp(out.Finished), out.Err), slog.Duration("duration", out.Duration()))
	}

	s.metrics.ObserveCycle(out.Success)
	if err := s.metrics.Push(ctx); err != nil {
		logger.Warn(fmt.Sprintf("could not push metrics: %v", err))
	}
}

func (s *Scheduler) reopen(ctx context.Context) error {
	logger := log.LoggerFromContext(ctx)
	s.closeSession(ctx)
	page, err := s.open(ctx)
	if err != nil {
		logger.Error(fmt.Sprintf("could not open browser session: %v", err))
		return err
	}
	s.page = page
	s.statsMu.Lock()
	s.stats.Restarts++
	s.statsMu.Unlock()
	s.metrics.ObserveRestart()
	logger.Info("browser session recreated")
	return nil
}

func (s *Scheduler) closeSession(ctx context.Context) {
	if s.page == nil {
		return
	}
	if err := s.page.Close(); err != nil {
		log.LoggerFromContext(ctx).Debug(fmt.Sprintf("error closing browser session: %v", err))
	}
	s.page = nil
}

func (s *Scheduler) teardown(ctx context.Context) {
	s.running.Store(false)
	s.closeSession(ctx)
	s.setState(Stopped)
	log.LoggerFromContext(ctx).Info("scheduler stopped")
}

func (s *Scheduler) timestamp(t time.Time) string {
	return monday.Format(t, "Monday, 2 January 2006 15:04:05", s.locale)
}

// wait pauses for d and reports false if the scheduler was stopped or ctx
// is done in the meantime.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
