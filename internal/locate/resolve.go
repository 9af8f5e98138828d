// Package locate finds elements on pages whose markup has no stable
// identifiers by trying ordered cascades of strategies.
package locate

import (
	"context"
	"errors"
)

// ErrNotFound is returned when every tier of a cascade came up empty.
var ErrNotFound = errors.New("no matching element found")

// Tier is one step of an ordered cascade. Try reports ok=false to let the
// next tier run; a non-nil error aborts the cascade.
type Tier[T any] struct {
	Name string
	Try  func(ctx context.Context) (T, bool, error)
}

// Resolve runs the tiers in order and returns the value of the first one that
// succeeds along with its name. Later tiers only run if all earlier ones
// reported ok=false.
func Resolve[T any](ctx context.Context, tiers ...Tier[T]) (T, string, error) {
	var zero T
	for _, t := range tiers {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, ok, err := t.Try(ctx)
		if err != nil {
			return zero, t.Name, err
		}
		if ok {
			return v, t.Name, nil
		}
	}
	return zero, "", ErrNotFound
}

// Rule is a named predicate used by Pick.
type Rule[T any] struct {
	Name  string
	Match func(T) bool
}

// Pick applies the rules in priority order. The first rule that matches any
// item wins and ties within a rule go to the earliest item.
func Pick[T any](items []T, rules ...Rule[T]) (T, string, bool) {
	for _, r := range rules {
		for _, it := range items {
			if r.Match(it) {
				return it, r.Name, true
			}
		}
	}
	var zero T
	return zero, "", false
}
