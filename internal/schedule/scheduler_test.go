package schedule

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jakopako/formwalk/internal/browser"
)

const address = "https://docs.google.com/forms/d/e/test/viewform"

// sessions hands out mock pages and remembers them.
type sessions struct {
	mu    sync.Mutex
	pages []*browser.MockPage
	fail  int // number of opens that fail before pages are handed out again
	err   error
}

func (s *sessions) open(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return nil, s.err
	}
	p := browser.NewMockPage(&browser.MockDocument{URL: address})
	s.pages = append(s.pages, p)
	return p, nil
}

func (s *sessions) opened() []*browser.MockPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*browser.MockPage(nil), s.pages...)
}

// run starts the scheduler in the background and returns a channel with
// the result of Start.
func run(ctx context.Context, s *Scheduler, interval time.Duration) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, address, nil, interval)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not return")
		return nil
	}
}

func TestStartRunsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := &sessions{}
	walked := make(chan string, 1)
	var s *Scheduler
	s = New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		walked <- addr
		s.Stop()
		return nil
	})

	done := run(context.Background(), s, time.Hour)
	select {
	case addr := <-walked:
		require.Equal(t, address, addr)
	case <-time.After(5 * time.Second):
		t.Fatal("the first cycle did not run immediately")
	}
	require.NoError(t, waitDone(t, done))

	pages := sess.opened()
	require.Len(t, pages, 1)
	require.True(t, pages[0].Closed(), "session must be closed when the scheduler stops")
	require.Equal(t, Stopped, s.State())
	require.Equal(t, 1, s.Stats().Successes)
}

func TestTicksNeverOverlap(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := &sessions{}
	var inFlight, maxInFlight, count atomic.Int32
	var s *Scheduler
	s = New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		if count.Add(1) == 5 {
			s.Stop()
		}
		return nil
	})

	require.NoError(t, waitDone(t, run(context.Background(), s, time.Millisecond)))
	require.Equal(t, int32(5), count.Load())
	require.Equal(t, int32(1), maxInFlight.Load())
	require.Len(t, sess.opened(), 1, "a healthy session is reused")
}

func TestIntervalStartsAfterCycleEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	const interval = 40 * time.Millisecond
	sess := &sessions{}
	var mu sync.Mutex
	var starts, ends []time.Time
	var s *Scheduler
	s = New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		mu.Lock()
		starts = append(starts, time.Now())
		n := len(starts)
		mu.Unlock()
		// the walk takes longer than the interval
		time.Sleep(2 * interval)
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		if n == 3 {
			s.Stop()
		}
		return nil
	})

	require.NoError(t, waitDone(t, run(context.Background(), s, interval)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	require.Len(t, ends, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(ends[i-1])
		require.GreaterOrEqual(t, gap, interval, "cycle %d started %v after the previous one ended", i+1, gap)
	}
}

func TestStopDuringCycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := &sessions{}
	entered := make(chan struct{})
	release := make(chan struct{})
	var count atomic.Int32
	var walkErr atomic.Value
	s := New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		count.Add(1)
		close(entered)
		<-release
		if err := ctx.Err(); err != nil {
			walkErr.Store(err)
		}
		return nil
	})

	done := run(context.Background(), s, time.Millisecond)
	<-entered
	require.Equal(t, Executing, s.State())
	s.Stop()
	s.Stop()
	close(release)

	require.NoError(t, waitDone(t, done))
	require.Equal(t, int32(1), count.Load(), "no cycle may start after Stop")
	require.Nil(t, walkErr.Load(), "the cycle in flight must not be canceled by Stop")
	require.Equal(t, 1, s.Stats().Cycles)
	require.True(t, sess.opened()[0].Closed())
}

func TestFailedCycleRecreatesSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := &sessions{}
	var pages []browser.Page
	var s *Scheduler
	s = New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		pages = append(pages, page)
		if len(pages) == 1 {
			return errors.New("stage advance-1: no matching element found")
		}
		s.Stop()
		return nil
	}, WithRecreateDelay(time.Millisecond))

	require.NoError(t, waitDone(t, run(context.Background(), s, time.Millisecond)))

	opened := sess.opened()
	require.Len(t, opened, 2)
	require.Len(t, pages, 2)
	require.Same(t, opened[0], pages[0])
	require.Same(t, opened[1], pages[1])
	require.True(t, opened[0].Closed(), "the failed session must be closed")
	require.True(t, opened[1].Closed())

	st := s.Stats()
	require.Equal(t, Stats{Cycles: 2, Successes: 1, Failures: 1, Restarts: 1, LastCycle: st.LastCycle}, st)
}

func TestFailedReopenIsRetriedNextCycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := &sessions{err: errors.New("chrome failed to start")}
	var count atomic.Int32
	var s *Scheduler
	s = New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		switch count.Add(1) {
		case 1:
			// the reopen after this failure and the one at the start of the next cycle fail
			sess.mu.Lock()
			sess.fail = 2
			sess.mu.Unlock()
			return errors.New("boom")
		default:
			s.Stop()
			return nil
		}
	}, WithRecreateDelay(time.Millisecond))

	require.NoError(t, waitDone(t, run(context.Background(), s, time.Millisecond)))
	require.Equal(t, int32(2), count.Load())

	st := s.Stats()
	require.Equal(t, 3, st.Cycles, "a cycle without a session counts as failed")
	require.Equal(t, 2, st.Failures)
	require.Equal(t, 1, st.Restarts)
	for _, p := range sess.opened() {
		require.True(t, p.Closed())
	}
}

func TestDeadSessionIsReopened(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := &sessions{}
	var count atomic.Int32
	var alive atomic.Bool
	var s *Scheduler
	s = New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		if count.Add(1) == 1 {
			// the browser crashes after a successful cycle
			page.Close()
			return nil
		}
		alive.Store(page.Alive(ctx))
		s.Stop()
		return nil
	})

	require.NoError(t, waitDone(t, run(context.Background(), s, time.Millisecond)))
	require.True(t, alive.Load(), "the second cycle must get a live session")
	require.Len(t, sess.opened(), 2)
	require.Equal(t, 1, s.Stats().Restarts)
}

func TestInitFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("no chrome binary")
	sess := &sessions{fail: 1, err: boom}
	var count atomic.Int32
	s := New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		count.Add(1)
		return nil
	})

	err := s.Start(context.Background(), address, nil, time.Minute)
	require.ErrorIs(t, err, boom)
	require.Zero(t, count.Load())
	require.Equal(t, Stopped, s.State())
}

func TestStartValidation(t *testing.T) {
	sess := &sessions{}
	s := New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error { return nil })
	require.Error(t, s.Start(context.Background(), address, nil, 0))
	require.Empty(t, sess.opened())

	s.Stop()
	require.NoError(t, s.Start(context.Background(), address, nil, time.Minute))
	require.ErrorIs(t, s.Start(context.Background(), address, nil, time.Minute), ErrAlreadyStarted)
	require.Zero(t, s.Stats().Cycles, "a stopped scheduler runs no cycle")
}

func TestContextCancelStopsScheduler(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := &sessions{}
	ctx, cancel := context.WithCancel(context.Background())
	walked := make(chan struct{}, 1)
	s := New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		select {
		case walked <- struct{}{}:
		default:
		}
		return nil
	})

	done := run(ctx, s, time.Hour)
	<-walked
	cancel()
	require.NoError(t, waitDone(t, done))
	require.True(t, sess.opened()[0].Closed())
}

func TestMetrics(t *testing.T) {
	m := NewMetrics(&MetricsConfig{})
	sess := &sessions{}
	var count atomic.Int32
	var s *Scheduler
	s = New(sess.open, func(ctx context.Context, page browser.Page, addr string, data map[string]string) error {
		if count.Add(1) == 1 {
			err := errors.New("boom")
			m.ObserveStage("advance-1", 1500*time.Millisecond, err)
			return err
		}
		m.ObserveStage("advance-1", 1500*time.Millisecond, nil)
		s.Stop()
		return nil
	}, WithMetrics(m), WithRecreateDelay(time.Millisecond))

	require.NoError(t, s.Start(context.Background(), address, nil, time.Millisecond))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.restarts))
	require.Equal(t, 2, testutil.CollectAndCount(m.stages))
	require.NoError(t, m.Push(context.Background()), "push without a gateway is a no-op")

	var nilMetrics *Metrics
	nilMetrics.ObserveCycle(true)
	nilMetrics.ObserveStage("x", time.Second, nil)
	require.NoError(t, nilMetrics.Push(context.Background()))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, Stats{Cycles: 3, Successes: 2, Failures: 1}))
	out := strings.ToUpper(buf.String())
	require.Contains(t, out, "CYCLES")
	require.Contains(t, out, "3")
	require.Contains(t, out, "-")
}
