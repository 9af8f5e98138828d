// Package browser defines the boundary to the headless browser that renders the
// form and implements it on top of chromedp and go-rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jakopako/formwalk/internal/utils"
)

var (
	// ErrTimeout is returned when a bounded wait or a driver call exceeds its deadline.
	ErrTimeout = errors.New("browser operation timed out")
	// ErrDriverFatal is returned when the connection to the browser or the page is lost.
	ErrDriverFatal = errors.New("browser driver failure")
	// ErrElementMissing is returned when an element handle no longer resolves,
	// usually because the page navigated away.
	ErrElementMissing = errors.New("element not found on page")
	// ErrElementHidden is returned when an element exists but is not rendered.
	ErrElementHidden = errors.New("element not visible")
)

// Key is a keyboard key understood by Page.PressKey.
type Key string

const (
	KeyEnter Key = "Enter"
)

// Element is a snapshot of a rendered DOM node. Selector and Index identify the
// node within the result set of the query that produced it, which makes the
// handle valid only as long as the document it was read from is loaded.
type Element struct {
	Selector    string `json:"-"`
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Label       string `json:"label"`
	Value       string `json:"value"`
	Text        string `json:"text"`
	OwnText     string `json:"ownText"`
	Tag         string `json:"tag"`
	Checked     bool   `json:"checked"`
	Visible     bool   `json:"visible"`
	Interactive bool   `json:"interactive"`
}

func (e Element) String() string {
	return fmt.Sprintf("%s[%d] <%s id=%q label=%q text=%q>", e.Selector, e.Index, e.Tag, e.ID, e.Label, utils.ShortenString(e.Text, 60))
}

// Page is one open tab of a live browser. Closing the page shuts the whole
// browser down: a session owns exactly one page.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Location returns the address of the current document.
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// Ready reports whether the document finished loading.
	Ready(ctx context.Context) (bool, error)
	// WaitVisible blocks until an element matching selector is visible or the
	// timeout elapses, in which case ErrTimeout is returned.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Query returns all elements matching the CSS selector in document order.
	Query(ctx context.Context, selector string) ([]Element, error)
	ScrollIntoView(ctx context.Context, el Element) error
	// Click dispatches a real pointer click on the element.
	Click(ctx context.Context, el Element) error
	// ScriptClick calls the element's click() from inside the page.
	ScriptClick(ctx context.Context, el Element) error
	// Checked reads the current selection state of the element.
	Checked(ctx context.Context, el Element) (bool, error)
	PressKey(ctx context.Context, key Key) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	// Alive reports whether the browser still answers.
	Alive(ctx context.Context) bool
	Close() error
}

// BackendType selects the library that drives the browser.
type BackendType string

const (
	CHROMEDP_BACKEND_TYPE BackendType = "chromedp"
	ROD_BACKEND_TYPE      BackendType = "rod"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config defines how the browser is launched.
type Config struct {
	Type         BackendType   `yaml:"type" env:"FORMWALK_BROWSER" env-default:"chromedp"`
	ExecPath     string        `yaml:"exec_path" env:"FORMWALK_CHROME_PATH"`
	ShowWindow   bool          `yaml:"show_window" env:"FORMWALK_SHOW_WINDOW"`
	UserAgent    string        `yaml:"user_agent" env:"FORMWALK_USER_AGENT"`
	WindowWidth  int           `yaml:"window_width" env-default:"1366"`
	WindowHeight int           `yaml:"window_height" env-default:"768"`
	Timeout      time.Duration `yaml:"timeout" env-default:"30s"` // per driver call
}

// SetDefaults fills in values that cannot be expressed as struct tag defaults.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = CHROMEDP_BACKEND_TYPE
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.WindowWidth == 0 {
		c.WindowWidth = 1366
	}
	if c.WindowHeight == 0 {
		c.WindowHeight = 768
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Open launches a browser with the configured backend and returns its single page.
func Open(ctx context.Context, c *Config) (Page, error) {
	switch c.Type {
	case CHROMEDP_BACKEND_TYPE:
		p, err := NewChromedpPage(ctx, c)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ROD_BACKEND_TYPE:
		p, err := NewRodPage(ctx, c)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("browser backend of type '%s' not implemented", c.Type)
	}
}

// statusError maps the status strings returned by the in-page scripts.
func statusError(status string) error {
	switch status {
	case "":
		return nil
	case statusMissing:
		return ErrElementMissing
	case statusHidden:
		return ErrElementHidden
	default:
		return fmt.Errorf("unexpected element status %q", status)
	}
}

func classifyTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

var (
	_ Page = (*ChromedpPage)(nil)
	_ Page = (*RodPage)(nil)
	_ Page = (*MockPage)(nil)
)
