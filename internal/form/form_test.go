package form

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/jakopako/formwalk/internal/browser"
)

const formURL = "https://docs.google.com/forms/d/e/test/viewform"

func testConfig(t *testing.T) *Config {
	t.Helper()
	c := &Config{
		FormSelector: "form",
		DebugDir:     t.TempDir(),
		Choice:       ChoiceRules{StageMarker: "/forms/", PreferredID: "i85"},
	}
	c.SetDefaults()
	return c
}

func visible(text string) *browser.MockElement {
	return &browser.MockElement{Element: browser.Element{Text: text, OwnText: text, Visible: true, Interactive: true}}
}

func nextButton() *browser.MockElement {
	b := visible("Далее")
	b.Advances = true
	return b
}

func choice(id, label, value string, vis bool) *browser.MockElement {
	return &browser.MockElement{
		Element: browser.Element{ID: id, Label: label, Value: value, Visible: vis, Interactive: true},
		Toggles: true,
	}
}

func stageDoc(n int, elements map[string][]*browser.MockElement) *browser.MockDocument {
	return &browser.MockDocument{
		URL:      fmt.Sprintf("%s?pageHistory=%d", formURL, n),
		Title:    "Test form",
		HTML:     "<html><head><title>Test form</title></head><body><form></form></body></html>",
		Elements: elements,
	}
}

// formDocs returns the documents of a complete five page form followed by
// the confirmation page.
func formDocs() []*browser.MockDocument {
	return []*browser.MockDocument{
		stageDoc(0, map[string][]*browser.MockElement{
			"form":                 {visible("")},
			"div[jsname='OCpkoe']": {nextButton()},
		}),
		stageDoc(1, map[string][]*browser.MockElement{
			"div[jsname='OCpkoe']": {nextButton()},
		}),
		stageDoc(2, map[string][]*browser.MockElement{
			"[role='checkbox']": {
				choice("i80", "Кот", "cat", true),
				choice("i85", "Леопард", "leopard", true),
			},
			"div[jsname='OCpkoe']": {nextButton()},
		}),
		stageDoc(3, map[string][]*browser.MockElement{
			"div[jsname='OCpkoe']": {nextButton()},
		}),
		stageDoc(4, map[string][]*browser.MockElement{
			"div[role='button'][jsname='M2UYVd']": {func() *browser.MockElement {
				b := visible("Отправить")
				b.Advances = true
				return b
			}()},
		}),
		{URL: "https://docs.google.com/forms/d/e/test/formResponse", Title: "Done"},
	}
}

func hasCall(p *browser.MockPage, call string) bool {
	return slices.Contains(p.Calls(), call)
}

type recordingObserver struct {
	stages []string
	failed []string
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, err error) {
	o.stages = append(o.stages, stage)
	if err != nil {
		o.failed = append(o.failed, stage)
	}
}

type recordingFiller struct {
	stages []string
	data   map[string]string
}

func (f *recordingFiller) Fill(_ context.Context, _ browser.Page, stage string, data map[string]string) error {
	f.stages = append(f.stages, stage)
	f.data = data
	return nil
}
