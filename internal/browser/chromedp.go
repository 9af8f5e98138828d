package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/jakopako/formwalk/internal/log"
)

// ChromedpPage drives a local Chrome through chromedp.
type ChromedpPage struct {
	*Config
	allocContext context.Context
	cancelAlloc  context.CancelFunc
	tabContext   context.Context
	cancelTab    context.CancelFunc
	logger       *slog.Logger
}

// NewChromedpPage launches Chrome and opens a tab. The browser lifetime is
// bound to the returned page, not to ctx; ctx only carries the logger.
func NewChromedpPage(ctx context.Context, c *Config) (*ChromedpPage, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("browser", string(CHROMEDP_BACKEND_TYPE)))
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(c.WindowWidth, c.WindowHeight),
		chromedp.UserAgent(c.UserAgent),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "VizDisplayCompositor"),
	)
	if c.ShowWindow {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabContext, cancelTab := chromedp.NewContext(allocContext)
	p := &ChromedpPage{
		Config:       c,
		allocContext: allocContext,
		cancelAlloc:  cancelAlloc,
		tabContext:   tabContext,
		cancelTab:    cancelTab,
		logger:       logger,
	}

	logger.Info("launching browser")
	launch := []chromedp.Action{}
	if log.Debug {
		launch = append(launch, chromedp.ActionFunc(func(ctx context.Context) error {
			protocolVersion, product, revision, userAgent, jsVersion, err := cdpbrowser.GetVersion().Do(ctx)
			if err != nil {
				logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
				return nil
			}
			logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
				protocolVersion, product, revision, userAgent, jsVersion))
			return nil
		}))
	}
	// The first Run allocates the browser and ties its lifetime to the context
	// it is given, so it has to be the tab context itself.
	if err := classifyChromedp(chromedp.Run(tabContext, launch...)); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return p, nil
}

// run executes actions on the tab. It is canceled when either ctx or the tab
// goes away and is bounded by the configured per-call timeout.
func (p *ChromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	return p.runTimeout(ctx, p.Timeout, actions...)
}

func (p *ChromedpPage) runTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.tabContext, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return classifyChromedp(chromedp.Run(runCtx, actions...))
}

func (p *ChromedpPage) evaluate(ctx context.Context, res any, fn string, args ...any) error {
	expr, err := callExpr(fn, args...)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

func (p *ChromedpPage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("navigating", slog.String("url", url))
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *ChromedpPage) Location(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *ChromedpPage) Title(ctx context.Context) (string, error) {
	var t string
	err := p.run(ctx, chromedp.Title(&t))
	return t, err
}

func (p *ChromedpPage) Ready(ctx context.Context) (bool, error) {
	var ready bool
	err := p.evaluate(ctx, &ready, readyFn)
	return ready, err
}

func (p *ChromedpPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.runTimeout(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *ChromedpPage) Query(ctx context.Context, selector string) ([]Element, error) {
	var els []Element
	if err := p.evaluate(ctx, &els, queryFn, selector); err != nil {
		return nil, err
	}
	for i := range els {
		els[i].Selector = selector
	}
	return els, nil
}

func (p *ChromedpPage) ScrollIntoView(ctx context.Context, el Element) error {
	var status string
	if err := p.evaluate(ctx, &status, scrollFn, el.Selector, el.Index); err != nil {
		return err
	}
	return statusError(status)
}

func (p *ChromedpPage) Click(ctx context.Context, el Element) error {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(el.Selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return err
	}
	if el.Index >= len(nodes) {
		return ErrElementMissing
	}
	p.logger.Debug(fmt.Sprintf("clicking on node %s", el))
	return p.run(ctx, chromedp.MouseClickNode(nodes[el.Index]))
}

func (p *ChromedpPage) ScriptClick(ctx context.Context, el Element) error {
	var status string
	if err := p.evaluate(ctx, &status, clickFn, el.Selector, el.Index); err != nil {
		return err
	}
	return statusError(status)
}

func (p *ChromedpPage) Checked(ctx context.Context, el Element) (bool, error) {
	var res checkedResult
	if err := p.evaluate(ctx, &res, checkedFn, el.Selector, el.Index); err != nil {
		return false, err
	}
	return res.Checked, statusError(res.Status)
}

func (p *ChromedpPage) PressKey(ctx context.Context, key Key) error {
	switch key {
	case KeyEnter:
		return p.run(ctx, chromedp.KeyEvent(kb.Enter))
	default:
		return p.run(ctx, chromedp.KeyEvent(string(key)))
	}
}

func (p *ChromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

func (p *ChromedpPage) HTML(ctx context.Context) (string, error) {
	var body string
	err := p.run(ctx, chromedp.OuterHTML("html", &body, chromedp.ByQuery))
	return body, err
}

func (p *ChromedpPage) Alive(ctx context.Context) bool {
	if p.tabContext.Err() != nil {
		return false
	}
	var ok bool
	err := p.runTimeout(ctx, 5*time.Second, chromedp.Evaluate(`true`, &ok))
	return err == nil && ok
}

// Close closes the tab and shuts the browser process down.
func (p *ChromedpPage) Close() error {
	err := chromedp.Cancel(p.tabContext)
	p.cancelTab()
	p.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func classifyChromedp(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidTarget),
		errors.Is(err, chromedp.ErrInvalidContext):
		return fmt.Errorf("%w: %v", ErrDriverFatal, err)
	default:
		return classifyTimeout(err)
	}
}

// combineContext derives a context from primary (which carries the chromedp
// target) that is also canceled when secondary is done.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
