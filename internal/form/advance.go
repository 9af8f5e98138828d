package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/locate"
	"github.com/jakopako/formwalk/internal/log"
)

const (
	MethodSelector = "selector"
	MethodFallback = "fallback"
	MethodText     = "text"
	MethodKeyboard = "keyboard"
)

// StageResult describes how a stage was advanced.
type StageResult struct {
	Stage      string
	Advanced   bool
	URLChanged bool
	Method     string
	Element    browser.Element
}

// Advancer moves a multi-page form from one page to the next by activating the
// control described by its profile.
type Advancer struct {
	page    browser.Page
	profile ControlProfile
	timing  Timing
}

func NewAdvancer(page browser.Page, profile ControlProfile, timing Timing) *Advancer {
	return &Advancer{page: page, profile: profile, timing: timing}
}

// Advance waits for the page to settle, activates the continuation control
// and then watches the address for a change. An unchanged address is not an
// error because some forms advance in place. A missing optional control
// returns a result with Advanced unset and no error.
func (a *Advancer) Advance(ctx context.Context) (StageResult, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("control", a.profile.Name))
	ctx = log.ContextWithLogger(ctx, logger)
	res := StageResult{Stage: a.profile.Name}

	if err := settle(ctx, a.page, a.timing); err != nil {
		return res, err
	}
	before, err := a.page.Location(ctx)
	if err != nil {
		return res, err
	}

	method, err := a.activate(ctx, &res)
	if errors.Is(err, locate.ErrNotFound) && a.profile.Optional {
		logger.Warn(fmt.Sprintf("no %s control found, continuing without it", a.profile.Name))
		return res, nil
	} else if err != nil {
		return res, err
	}
	res.Advanced = true
	res.Method = method
	if method == MethodKeyboard {
		logger.Warn("no control found, pressed enter instead; advancement is not verified")
	}

	changed, err := a.waitForNavigation(ctx, before)
	if err != nil {
		return res, err
	}
	res.URLChanged = changed
	if !changed {
		logger.Info(fmt.Sprintf("address did not change after activating %s control", a.profile.Name))
	} else {
		logger.Debug("stage advanced", slog.String("method", method))
	}
	return res, nil
}

func (a *Advancer) activate(ctx context.Context, res *StageResult) (string, error) {
	match := locate.ContainsAny(a.profile.Terms...)
	tiers := []locate.Tier[string]{{
		Name: MethodSelector,
		Try: func(ctx context.Context) (string, bool, error) {
			r, err := locate.Locate(ctx, a.page, locate.Strategies(a.profile.Selectors...), match, a.profile.FallbackSelector)
			if errors.Is(err, locate.ErrNotFound) {
				return "", false, nil
			} else if err != nil {
				return "", false, err
			}
			res.Element = r.Element
			if err := clickElement(ctx, a.page, r.Element, a.timing); err != nil {
				return "", false, err
			}
			if r.Fallback {
				return MethodFallback, true, nil
			}
			return MethodSelector, true, nil
		},
	}}
	if a.profile.TextScan && a.profile.TextScanSelector != "" {
		tiers = append(tiers, locate.Tier[string]{
			Name: MethodText,
			Try: func(ctx context.Context) (string, bool, error) {
				strategies := []locate.Strategy{{Selector: a.profile.TextScanSelector, Match: locate.OwnTextContainsAny(a.profile.Terms...)}}
				r, err := locate.Locate(ctx, a.page, strategies, nil, "")
				if errors.Is(err, locate.ErrNotFound) {
					return "", false, nil
				} else if err != nil {
					return "", false, err
				}
				res.Element = r.Element
				if err := clickElement(ctx, a.page, r.Element, a.timing); err != nil {
					return "", false, err
				}
				return MethodText, true, nil
			},
		})
	}
	if a.profile.KeyboardFallback {
		tiers = append(tiers, locate.Tier[string]{
			Name: MethodKeyboard,
			Try: func(ctx context.Context) (string, bool, error) {
				if err := a.page.PressKey(ctx, browser.KeyEnter); err != nil {
					return "", false, err
				}
				return MethodKeyboard, true, nil
			},
		})
	}

	method, _, err := locate.Resolve(ctx, tiers...)
	if err != nil {
		return "", fmt.Errorf("%s control: %w", a.profile.Name, err)
	}
	return method, nil
}

// waitForNavigation polls the address until it differs from before. If it
// does not change within the budget it is checked once more after the
// recheck delay.
func (a *Advancer) waitForNavigation(ctx context.Context, before string) (bool, error) {
	changed := func(ctx context.Context) (bool, error) {
		now, err := a.page.Location(ctx)
		if err != nil {
			return false, err
		}
		return now != before, nil
	}
	ok, err := poll(ctx, a.timing.PostClickTimeout, a.timing.PollInterval, changed)
	if err != nil || ok {
		return ok, err
	}
	if err := pause(ctx, a.timing.RecheckDelay); err != nil {
		return false, err
	}
	return changed(ctx)
}

// clickElement scrolls el into view and clicks it with the pointer. If the
// pointer click fails the element is clicked from inside the page instead.
// Driver failures are returned as they are, anything else as ErrActivationFailed.
func clickElement(ctx context.Context, page browser.Page, el browser.Element, t Timing) error {
	logger := log.LoggerFromContext(ctx)
	if err := page.ScrollIntoView(ctx, el); err != nil {
		if fatal(err) {
			return err
		}
		logger.Debug(fmt.Sprintf("could not scroll to %s: %v", el, err))
	}
	if err := pause(ctx, t.ScrollDelay); err != nil {
		return err
	}
	err := page.Click(ctx, el)
	if err == nil {
		return nil
	}
	if fatal(err) {
		return err
	}
	logger.Debug(fmt.Sprintf("pointer click on %s failed: %v, trying script click", el, err))
	if err := page.ScriptClick(ctx, el); err != nil {
		if fatal(err) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrActivationFailed, el, err)
	}
	return nil
}

func fatal(err error) bool {
	return errors.Is(err, browser.ErrDriverFatal) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
