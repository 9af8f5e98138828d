// Package form walks a multi-page web form from its first page to the
// submission, one stage at a time.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/log"
)

const (
	StageOpen   = "open"
	StageChoice = "select-choice"
	StageSubmit = "submit"
)

// FieldFiller populates the input fields of one page of the form.
type FieldFiller interface {
	Fill(ctx context.Context, page browser.Page, stage string, data map[string]string) error
}

// PacingFiller does not touch the page. It only waits so that the form's
// scripts can catch up before the next stage.
type PacingFiller struct {
	Delay time.Duration
}

func (f PacingFiller) Fill(ctx context.Context, _ browser.Page, stage string, data map[string]string) error {
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("no fields filled on %s (%d values available)", stage, len(data)))
	return pause(ctx, f.Delay)
}

// StageObserver is notified after every stage with its duration and outcome.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration, err error)
}

type WalkerOption func(*Walker)

func WithFiller(f FieldFiller) WalkerOption {
	return func(w *Walker) { w.filler = f }
}

func WithObserver(o StageObserver) WalkerOption {
	return func(w *Walker) { w.observer = o }
}

// Walker drives one complete pass over the form.
type Walker struct {
	page     browser.Page
	config   *Config
	filler   FieldFiller
	observer StageObserver
	advance  *Advancer
	submit   *Advancer
	choice   *ChoiceSelector
	diag     *Diagnostician
}

func NewWalker(page browser.Page, c *Config, opts ...WalkerOption) *Walker {
	diag := NewDiagnostician(page, c.DebugDir, c.Choice.Selector)
	w := &Walker{
		page:    page,
		config:  c,
		filler:  PacingFiller{Delay: c.FillDelay},
		advance: NewAdvancer(page, c.Advance, c.Timing),
		submit:  NewAdvancer(page, c.Submit, c.Timing),
		choice:  NewChoiceSelector(page, c.Choice, c.Timing, diag),
		diag:    diag,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

type stage struct {
	name string
	run  func(ctx context.Context) error
}

func (w *Walker) stages(data map[string]string) []stage {
	fill := func(name string) stage {
		return stage{name, func(ctx context.Context) error { return w.filler.Fill(ctx, w.page, name, data) }}
	}
	advance := func(name string) stage {
		return stage{name, func(ctx context.Context) error {
			_, err := w.advance.Advance(ctx)
			return err
		}}
	}
	return []stage{
		fill("fill-1"),
		advance("advance-1"),
		fill("fill-2"),
		advance("advance-2"),
		{StageChoice, w.choice.Select},
		advance("advance-3"),
		fill("fill-4"),
		advance("advance-4"),
		{StageSubmit, func(ctx context.Context) error {
			if _, err := w.submit.Advance(ctx); err != nil {
				return err
			}
			return pause(ctx, w.config.SubmitDelay)
		}},
	}
}

// Run opens address and walks all stages in order. The first failing stage
// aborts the walk; a single diagnostic snapshot is taken and a *StageError
// wrapping the cause is returned.
func (w *Walker) Run(ctx context.Context, address string, data map[string]string) error {
	logger := log.LoggerFromContext(ctx)
	logger.Info(fmt.Sprintf("opening form %s", address))

	if err := w.open(ctx, address); err != nil {
		return w.fail(ctx, StageOpen, err)
	}
	for _, s := range w.stages(data) {
		sctx := log.ContextWithLogger(ctx, logger.With(slog.String("stage", s.name)))
		start := time.Now()
		err := s.run(sctx)
		if w.observer != nil {
			w.observer.ObserveStage(s.name, time.Since(start), err)
		}
		if err != nil {
			return w.fail(sctx, s.name, err)
		}
		logger.Debug(fmt.Sprintf("stage %s done in %v", s.name, time.Since(start).Round(time.Millisecond)))
	}
	logger.Info("form submitted")
	return nil
}

func (w *Walker) open(ctx context.Context, address string) error {
	if err := w.page.Navigate(ctx, address); err != nil {
		return err
	}
	if err := w.page.WaitVisible(ctx, w.config.FormSelector, w.config.FormTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return fmt.Errorf("%w: %v", ErrFormNotPresent, err)
		}
		return err
	}
	return nil
}

func (w *Walker) fail(ctx context.Context, stage string, err error) error {
	log.LoggerFromContext(ctx).Error(fmt.Sprintf("stage %s failed: %v", stage, err))
	var se *StageError
	if errors.As(err, &se) && se.Diagnostic != nil {
		return se
	}
	var diag *Diagnostic
	// a dead browser or a canceled walk cannot be inspected any more
	if ctx.Err() == nil && !errors.Is(err, browser.ErrDriverFatal) {
		diag = w.diag.Capture(ctx, stage)
	}
	return &StageError{Stage: stage, Err: err, Diagnostic: diag}
}
