package form

import (
	"context"
	"errors"
	"testing"

	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/locate"
)

func TestAdvanceBySelector(t *testing.T) {
	c := testConfig(t)
	p := browser.NewMockPage(
		stageDoc(0, map[string][]*browser.MockElement{"div[jsname='OCpkoe']": {visible("Назад"), nextButton()}}),
		stageDoc(1, nil),
	)
	res, err := NewAdvancer(p, c.Advance, c.Timing).Advance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Advanced || !res.URLChanged || res.Method != MethodSelector {
		t.Fatalf("unexpected result %+v", res)
	}
	if !hasCall(p, "click div[jsname='OCpkoe']#1") {
		t.Fatalf("expected a pointer click on the matching button, got %v", p.Calls())
	}
	if p.Current() != 1 {
		t.Fatalf("expected the page to advance, current document %d", p.Current())
	}
}

func TestAdvanceFallsBackToScriptClick(t *testing.T) {
	c := testConfig(t)
	b := nextButton()
	b.ClickErr = errors.New("element is covered")
	p := browser.NewMockPage(
		stageDoc(0, map[string][]*browser.MockElement{"div[jsname='OCpkoe']": {b}}),
		stageDoc(1, nil),
	)
	res, err := NewAdvancer(p, c.Advance, c.Timing).Advance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.URLChanged {
		t.Fatal("expected the script click to advance the page")
	}
	if p.CallCount("click ") != 1 || p.CallCount("scriptclick ") != 1 {
		t.Fatalf("expected one pointer and one script click, got %v", p.Calls())
	}
}

func TestAdvanceUsesLastResortFallback(t *testing.T) {
	c := testConfig(t)
	back := visible("Назад")
	reset := visible("Очистить форму")
	reset.Advances = true
	p := browser.NewMockPage(
		stageDoc(0, map[string][]*browser.MockElement{"div[role='button'], button": {back, reset}}),
		stageDoc(1, nil),
	)
	res, err := NewAdvancer(p, c.Advance, c.Timing).Advance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != MethodFallback || res.Element.Index != 1 {
		t.Fatalf("expected the last interactive element via fallback, got %+v", res)
	}
}

func TestAdvanceByOwnText(t *testing.T) {
	c := testConfig(t)
	label := &browser.MockElement{
		Element:  browser.Element{Text: "Далее", OwnText: "Далее", Visible: true},
		Advances: true,
	}
	container := &browser.MockElement{Element: browser.Element{Text: "Вопрос Далее", Visible: true}}
	p := browser.NewMockPage(
		stageDoc(0, map[string][]*browser.MockElement{"body *": {container, label}}),
		stageDoc(1, nil),
	)
	res, err := NewAdvancer(p, c.Advance, c.Timing).Advance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != MethodText || res.Element.Index != 1 {
		t.Fatalf("expected the text scan to pick the element owning the text, got %+v", res)
	}
}

func TestAdvanceKeyboardFallbackReportsSuccess(t *testing.T) {
	tests := []struct {
		name        string
		enter       bool
		wantChanged bool
	}{
		{"enter advances", true, true},
		{"enter does nothing", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			doc := stageDoc(0, nil)
			doc.EnterAdvances = tt.enter
			p := browser.NewMockPage(doc, stageDoc(1, nil))
			res, err := NewAdvancer(p, c.Advance, c.Timing).Advance(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Advanced || res.Method != MethodKeyboard {
				t.Fatalf("expected advancement by keyboard, got %+v", res)
			}
			if res.URLChanged != tt.wantChanged {
				t.Fatalf("expected URLChanged=%v, got %v", tt.wantChanged, res.URLChanged)
			}
			if p.CallCount("key Enter") != 1 {
				t.Fatalf("expected exactly one key press, got %v", p.Calls())
			}
		})
	}
}

func TestAdvanceMissingSubmitControlIsSkipped(t *testing.T) {
	c := testConfig(t)
	p := browser.NewMockPage(stageDoc(0, map[string][]*browser.MockElement{
		"div[role='button'], button": {visible("Назад")},
	}))
	res, err := NewAdvancer(p, c.Submit, c.Timing).Advance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Advanced || res.URLChanged {
		t.Fatalf("expected nothing to be activated, got %+v", res)
	}
	if p.CallCount("key ") != 0 || p.Activations() != 0 {
		t.Fatalf("submit must not fall back to other controls, got %v", p.Calls())
	}
}

func TestAdvanceMissingRequiredControlFails(t *testing.T) {
	c := testConfig(t)
	c.Advance.KeyboardFallback = false
	c.Advance.FallbackSelector = ""
	p := browser.NewMockPage(stageDoc(0, nil))
	_, err := NewAdvancer(p, c.Advance, c.Timing).Advance(context.Background())
	if !errors.Is(err, locate.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceUnchangedAddressIsNotAnError(t *testing.T) {
	c := testConfig(t)
	b := visible("Далее")
	p := browser.NewMockPage(stageDoc(0, map[string][]*browser.MockElement{"div[jsname='OCpkoe']": {b}}))
	res, err := NewAdvancer(p, c.Advance, c.Timing).Advance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Advanced || res.URLChanged {
		t.Fatalf("expected an advancement without navigation, got %+v", res)
	}
	if p.CallCount("location") < 3 {
		t.Fatalf("expected the address to be checked again after the recheck delay, got %v", p.Calls())
	}
}

func TestClickElement(t *testing.T) {
	tests := []struct {
		name       string
		el         *browser.MockElement
		wantErr    error
		wantScript bool
	}{
		{
			name: "pointer click",
			el:   visible("x"),
		},
		{
			name:       "hidden after failed pointer click",
			el:         &browser.MockElement{Element: browser.Element{Visible: false}, ClickErr: errors.New("not clickable")},
			wantErr:    ErrActivationFailed,
			wantScript: true,
		},
		{
			name:    "driver failure is not retried",
			el:      &browser.MockElement{Element: browser.Element{Visible: true}, ClickErr: browser.ErrDriverFatal},
			wantErr: browser.ErrDriverFatal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := browser.NewMockPage(stageDoc(0, map[string][]*browser.MockElement{"button": {tt.el}}))
			err := clickElement(context.Background(), p, browser.Element{Selector: "button"}, Timing{})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := p.CallCount("scriptclick ") == 1; got != tt.wantScript {
				t.Fatalf("expected script click %v, calls %v", tt.wantScript, p.Calls())
			}
		})
	}
}

func TestAdvanceCanceled(t *testing.T) {
	c := testConfig(t)
	p := browser.NewMockPage(stageDoc(0, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAdvancer(p, c.Advance, c.Timing).Advance(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
