package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/locate"
	"github.com/jakopako/formwalk/internal/log"
	"github.com/jakopako/formwalk/internal/utils"
)

// ChoiceSelector selects exactly one option on the choice stage of the form.
type ChoiceSelector struct {
	page   browser.Page
	rules  ChoiceRules
	timing Timing
	diag   *Diagnostician
}

func NewChoiceSelector(page browser.Page, rules ChoiceRules, timing Timing, diag *Diagnostician) *ChoiceSelector {
	return &ChoiceSelector{page: page, rules: rules, timing: timing, diag: diag}
}

// Select picks the target option and activates it unless it is already
// selected. Calling Select again on the same page is a no-op.
func (c *ChoiceSelector) Select(ctx context.Context) error {
	logger := log.LoggerFromContext(ctx)

	url, err := c.page.Location(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(url, c.rules.StageMarker) {
		return fmt.Errorf("%w: %s does not contain %q", ErrWrongStage, url, c.rules.StageMarker)
	}

	if err := c.page.WaitVisible(ctx, c.rules.Selector, c.rules.WaitTimeout); err != nil {
		if !errors.Is(err, browser.ErrTimeout) {
			return err
		}
		logger.Debug(fmt.Sprintf("no visible choice after %v, enumerating anyway", c.rules.WaitTimeout))
	}

	choices, selector, err := c.enumerate(ctx)
	if errors.Is(err, locate.ErrNotFound) {
		if c.diag == nil {
			return ErrNoChoicesFound
		}
		return &StageError{Stage: StageChoice, Err: ErrNoChoicesFound, Diagnostic: c.diag.Capture(ctx, StageChoice)}
	} else if err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("found %d choices with selector %s", len(choices), selector))
	for _, ch := range choices {
		logger.Debug(fmt.Sprintf("choice %d: id=%q label=%q value=%q visible=%v checked=%v",
			ch.Index, ch.ID, utils.ShortenString(ch.Label, 60), ch.Value, ch.Visible, ch.Checked))
	}

	target, rule, _ := locate.Pick(choices, c.priorities()...)
	logger.Info("selected choice", slog.String("rule", rule), slog.String("element", target.String()))

	if target.Checked {
		logger.Info("choice already selected, nothing to do")
		return nil
	}
	if err := c.activate(ctx, target); err != nil {
		return err
	}
	return pause(ctx, c.rules.PostSelectDelay)
}

// enumerate returns the elements of the first selector that yields any.
func (c *ChoiceSelector) enumerate(ctx context.Context) ([]browser.Element, string, error) {
	selectors := append([]string{c.rules.Selector}, c.rules.AltSelectors...)
	tiers := make([]locate.Tier[[]browser.Element], 0, len(selectors))
	for _, sel := range selectors {
		tiers = append(tiers, locate.Tier[[]browser.Element]{
			Name: sel,
			Try: func(ctx context.Context) ([]browser.Element, bool, error) {
				els, err := c.page.Query(ctx, sel)
				return els, len(els) > 0, err
			},
		})
	}
	return locate.Resolve(ctx, tiers...)
}

func (c *ChoiceSelector) priorities() []locate.Rule[browser.Element] {
	var rules []locate.Rule[browser.Element]
	if c.rules.PreferredID != "" {
		rules = append(rules, locate.Rule[browser.Element]{
			Name:  "id",
			Match: func(el browser.Element) bool { return el.ID == c.rules.PreferredID },
		})
	}
	for _, t := range c.rules.LabelTerms {
		rules = append(rules, locate.Rule[browser.Element]{
			Name: "label " + t,
			Match: func(el browser.Element) bool {
				_, ok := utils.ContainsAnyFold(el.Label, t)
				return ok
			},
		})
	}
	for _, t := range c.rules.ValueTerms {
		rules = append(rules, locate.Rule[browser.Element]{
			Name: "value " + t,
			Match: func(el browser.Element) bool {
				_, ok := utils.ContainsAnyFold(el.Value, t)
				return ok
			},
		})
	}
	return append(rules,
		locate.Rule[browser.Element]{Name: "first visible", Match: func(el browser.Element) bool { return el.Visible }},
		locate.Rule[browser.Element]{Name: "first", Match: func(browser.Element) bool { return true }},
	)
}

func (c *ChoiceSelector) activate(ctx context.Context, el browser.Element) error {
	logger := log.LoggerFromContext(ctx)
	if err := c.page.ScrollIntoView(ctx, el); err != nil {
		if fatal(err) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrActivationFailed, el, err)
	}
	if err := pause(ctx, c.timing.ScrollDelay); err != nil {
		return err
	}
	if err := c.page.ScriptClick(ctx, el); err != nil {
		if fatal(err) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrActivationFailed, el, err)
	}
	checked, err := c.page.Checked(ctx, el)
	if err != nil {
		if fatal(err) {
			return err
		}
		logger.Debug(fmt.Sprintf("could not read back selection state: %v", err))
		return nil
	}
	logger.Info(fmt.Sprintf("choice state after activation: checked=%v", checked))
	return nil
}
