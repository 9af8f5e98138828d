package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/jakopako/formwalk/internal/log"
)

// RodPage drives a local Chrome through go-rod.
type RodPage struct {
	*Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	logger   *slog.Logger
}

func NewRodPage(ctx context.Context, c *Config) (*RodPage, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("browser", string(ROD_BACKEND_TYPE)))
	l := launcher.New().Headless(!c.ShowWindow).NoSandbox(true)
	if c.ExecPath != "" {
		l = l.Bin(c.ExecPath)
	}
	logger.Info("launching browser")
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	p := &RodPage{Config: c, launcher: l, browser: b, logger: logger}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	p.page = page
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.WindowWidth,
		Height:            c.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		p.Close()
		return nil, err
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.UserAgent}); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// with returns the page bound to ctx and the per-call timeout.
func (p *RodPage) with(ctx context.Context) *rod.Page {
	pg := p.page.Context(ctx)
	if p.Timeout > 0 {
		pg = pg.Timeout(p.Timeout)
	}
	return pg
}

func (p *RodPage) eval(ctx context.Context, res any, fn string, args ...any) error {
	obj, err := p.with(ctx).Eval(fn, args...)
	if err != nil {
		return classifyRod(err)
	}
	return obj.Value.Unmarshal(res)
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("navigating", slog.String("url", url))
	pg := p.with(ctx)
	if err := pg.Navigate(url); err != nil {
		return classifyRod(err)
	}
	return classifyRod(pg.WaitLoad())
}

func (p *RodPage) Location(ctx context.Context) (string, error) {
	info, err := p.with(ctx).Info()
	if err != nil {
		return "", classifyRod(err)
	}
	return info.URL, nil
}

func (p *RodPage) Title(ctx context.Context) (string, error) {
	info, err := p.with(ctx).Info()
	if err != nil {
		return "", classifyRod(err)
	}
	return info.Title, nil
}

func (p *RodPage) Ready(ctx context.Context) (bool, error) {
	var ready bool
	err := p.eval(ctx, &ready, readyFn)
	return ready, err
}

func (p *RodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	pg := p.page.Context(ctx).Timeout(timeout)
	el, err := pg.Element(selector)
	if err != nil {
		return classifyRod(err)
	}
	return classifyRod(el.WaitVisible())
}

func (p *RodPage) Query(ctx context.Context, selector string) ([]Element, error) {
	var els []Element
	if err := p.eval(ctx, &els, queryFn, selector); err != nil {
		return nil, err
	}
	for i := range els {
		els[i].Selector = selector
	}
	return els, nil
}

func (p *RodPage) ScrollIntoView(ctx context.Context, el Element) error {
	var status string
	if err := p.eval(ctx, &status, scrollFn, el.Selector, el.Index); err != nil {
		return err
	}
	return statusError(status)
}

func (p *RodPage) Click(ctx context.Context, el Element) error {
	nodes, err := p.with(ctx).Elements(el.Selector)
	if err != nil {
		return classifyRod(err)
	}
	if el.Index >= len(nodes) {
		return ErrElementMissing
	}
	p.logger.Debug(fmt.Sprintf("clicking on node %s", el))
	return classifyRod(nodes[el.Index].Click(proto.InputMouseButtonLeft, 1))
}

func (p *RodPage) ScriptClick(ctx context.Context, el Element) error {
	var status string
	if err := p.eval(ctx, &status, clickFn, el.Selector, el.Index); err != nil {
		return err
	}
	return statusError(status)
}

func (p *RodPage) Checked(ctx context.Context, el Element) (bool, error) {
	var res checkedResult
	if err := p.eval(ctx, &res, checkedFn, el.Selector, el.Index); err != nil {
		return false, err
	}
	return res.Checked, statusError(res.Status)
}

func (p *RodPage) PressKey(ctx context.Context, key Key) error {
	k := input.Enter
	if key != KeyEnter {
		return fmt.Errorf("key %q not supported by the rod backend", key)
	}
	return classifyRod(p.with(ctx).Keyboard.Press(k))
}

func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := p.with(ctx).Screenshot(true, nil)
	return buf, classifyRod(err)
}

func (p *RodPage) HTML(ctx context.Context) (string, error) {
	body, err := p.with(ctx).HTML()
	return body, classifyRod(err)
}

func (p *RodPage) Alive(ctx context.Context) bool {
	if p.page == nil {
		return false
	}
	_, err := p.page.Context(ctx).Timeout(5 * time.Second).Eval(`() => true`)
	return err == nil
}

func (p *RodPage) Close() error {
	err := p.browser.Close()
	p.launcher.Kill()
	return err
}

// classifyRod marks lost connections, lost sessions and failed navigations
// as driver failures.
func classifyRod(err error) error {
	var navErr *rod.NavigationError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cdp.ErrConnClosed),
		errors.Is(err, cdp.ErrSessionNotFound),
		errors.As(err, &navErr):
		return fmt.Errorf("%w: %v", ErrDriverFatal, err)
	default:
		return classifyTimeout(err)
	}
}
