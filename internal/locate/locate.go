package locate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/log"
	"github.com/jakopako/formwalk/internal/utils"
)

// FallbackTier is the tier name reported when the last-resort fallback matched.
const FallbackTier = "fallback"

// Matcher decides whether a candidate element is the one we are looking for.
type Matcher func(el browser.Element) bool

// ContainsAny matches elements whose text content contains any of the terms,
// ignoring case and whitespace.
func ContainsAny(terms ...string) Matcher {
	return func(el browser.Element) bool {
		_, ok := utils.ContainsAnyFold(el.Text, terms...)
		return ok
	}
}

// OwnTextContainsAny is like ContainsAny but only looks at the element's own
// text nodes, so that containers of a matching element do not match.
func OwnTextContainsAny(terms ...string) Matcher {
	return func(el browser.Element) bool {
		_, ok := utils.ContainsAnyFold(el.OwnText, terms...)
		return ok
	}
}

// Strategy is one CSS selector with an optional predicate that replaces the
// locator's matcher for this selector.
type Strategy struct {
	Selector string
	Match    Matcher
}

// Strategies turns a list of selectors into strategies without own predicates.
func Strategies(selectors ...string) []Strategy {
	s := make([]Strategy, 0, len(selectors))
	for _, sel := range selectors {
		s = append(s, Strategy{Selector: sel})
	}
	return s
}

// Result is a located element and the tier that produced it.
type Result struct {
	Element  browser.Element
	Tier     string
	Fallback bool
}

// Locate searches the current page for a visible element. The strategies are
// tried in order and a strategy whose candidates all fail the matcher hands
// over to the next one. If no strategy matches and fallback is not empty, the
// last visible and interactive element matching the fallback selector is
// returned regardless of the matcher. ErrNotFound is only returned when that
// set is empty too. Locate never modifies the page.
func Locate(ctx context.Context, page browser.Page, strategies []Strategy, match Matcher, fallback string) (Result, error) {
	logger := log.LoggerFromContext(ctx)
	tiers := make([]Tier[browser.Element], 0, len(strategies)+1)
	for _, s := range strategies {
		tiers = append(tiers, Tier[browser.Element]{
			Name: s.Selector,
			Try: func(ctx context.Context) (browser.Element, bool, error) {
				candidates, err := page.Query(ctx, s.Selector)
				if err != nil {
					return browser.Element{}, false, err
				}
				m := s.Match
				if m == nil {
					m = match
				}
				el, _, ok := Pick(candidates, Rule[browser.Element]{
					Name: s.Selector,
					Match: func(el browser.Element) bool {
						return el.Visible && (m == nil || m(el))
					},
				})
				if !ok && len(candidates) > 0 {
					logger.Debug(fmt.Sprintf("%d candidates for selector %s, none matched", len(candidates), s.Selector))
				}
				return el, ok, nil
			},
		})
	}
	if fallback != "" {
		tiers = append(tiers, Tier[browser.Element]{
			Name: FallbackTier,
			Try: func(ctx context.Context) (browser.Element, bool, error) {
				return lastInteractive(ctx, page, fallback)
			},
		})
	}

	el, tier, err := Resolve(ctx, tiers...)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("located element", slog.String("tier", tier), slog.String("element", el.String()))
	return Result{Element: el, Tier: tier, Fallback: tier == FallbackTier}, nil
}

func lastInteractive(ctx context.Context, page browser.Page, selector string) (browser.Element, bool, error) {
	candidates, err := page.Query(ctx, selector)
	if err != nil {
		return browser.Element{}, false, err
	}
	logger := log.LoggerFromContext(ctx)
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		logger.Debug(fmt.Sprintf("fallback candidate %q", utils.ShortenString(c.Text, 40)))
		if c.Visible && c.Interactive {
			return c, true, nil
		}
	}
	return browser.Element{}, false, nil
}
