package locate

import (
	"context"
	"errors"
	"testing"
)

func tier(name string, v int, ok bool, err error, calls *[]string) Tier[int] {
	return Tier[int]{Name: name, Try: func(ctx context.Context) (int, bool, error) {
		*calls = append(*calls, name)
		return v, ok, err
	}}
}

func TestResolve(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		tiers     func(*[]string) []Tier[int]
		wantValue int
		wantTier  string
		wantErr   error
		wantCalls int
	}{
		{
			name: "first tier wins",
			tiers: func(c *[]string) []Tier[int] {
				return []Tier[int]{tier("a", 1, true, nil, c), tier("b", 2, true, nil, c)}
			},
			wantValue: 1, wantTier: "a", wantCalls: 1,
		},
		{
			name: "falls through to later tier",
			tiers: func(c *[]string) []Tier[int] {
				return []Tier[int]{tier("a", 0, false, nil, c), tier("b", 2, true, nil, c), tier("c", 3, true, nil, c)}
			},
			wantValue: 2, wantTier: "b", wantCalls: 2,
		},
		{
			name: "error aborts",
			tiers: func(c *[]string) []Tier[int] {
				return []Tier[int]{tier("a", 0, false, boom, c), tier("b", 2, true, nil, c)}
			},
			wantTier: "a", wantErr: boom, wantCalls: 1,
		},
		{
			name: "exhausted",
			tiers: func(c *[]string) []Tier[int] {
				return []Tier[int]{tier("a", 0, false, nil, c), tier("b", 0, false, nil, c)}
			},
			wantErr: ErrNotFound, wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			v, name, err := Resolve(context.Background(), tt.tiers(&calls)...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if v != tt.wantValue || name != tt.wantTier {
				t.Fatalf("expected (%d, %q), got (%d, %q)", tt.wantValue, tt.wantTier, v, name)
			}
			if len(calls) != tt.wantCalls {
				t.Fatalf("expected %d tiers to run, got %v", tt.wantCalls, calls)
			}
		})
	}
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls []string
	_, _, err := Resolve(ctx, tier("a", 1, true, nil, &calls))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(calls) != 0 {
		t.Fatal("no tier should run on a canceled context")
	}
}

func TestPick(t *testing.T) {
	items := []string{"apple", "banana", "cherry", "blueberry"}
	startsWith := func(p string) func(string) bool {
		return func(s string) bool { return len(s) > 0 && s[:1] == p }
	}

	v, rule, ok := Pick(items,
		Rule[string]{Name: "z", Match: startsWith("z")},
		Rule[string]{Name: "b", Match: startsWith("b")},
		Rule[string]{Name: "a", Match: startsWith("a")},
	)
	if !ok || v != "banana" || rule != "b" {
		t.Fatalf("expected banana by rule b, got %q by %q (ok=%v)", v, rule, ok)
	}

	_, _, ok = Pick(items, Rule[string]{Name: "z", Match: startsWith("z")})
	if ok {
		t.Fatal("expected no match")
	}
}
