package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockElement is an element of a MockDocument together with its scripted
// behaviour when activated.
type MockElement struct {
	Element
	// Advances moves the page to the next document when the element is activated.
	Advances bool
	// Toggles flips Checked when the element is activated.
	Toggles bool
	// ClickErr is returned by a direct pointer click.
	ClickErr error
	// Missing makes every operation on the element report ErrElementMissing.
	Missing bool
}

// MockDocument is one rendered state of a MockPage.
type MockDocument struct {
	URL      string
	Title    string
	HTML     string
	NotReady bool
	// Elements maps CSS selectors to their result sets.
	Elements map[string][]*MockElement
	// EnterAdvances moves to the next document when Enter is pressed.
	EnterAdvances bool
}

// MockPage is a scripted Page that walks through a fixed list of documents.
// It records every call so tests can assert on the driver interaction.
type MockPage struct {
	mu            sync.Mutex
	docs          []*MockDocument
	cur           int
	closed        bool
	calls         []string
	activations   int
	ScreenshotErr error
	NavigateErr   error
	QueryErr      error
}

func NewMockPage(docs ...*MockDocument) *MockPage {
	return &MockPage{docs: docs}
}

func (m *MockPage) record(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded driver calls in order.
func (m *MockPage) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount counts recorded calls starting with prefix.
func (m *MockPage) CallCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Activations counts successful clicks of any kind.
func (m *MockPage) Activations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activations
}

// Current returns the index of the document currently shown.
func (m *MockPage) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *MockPage) doc() *MockDocument {
	if len(m.docs) == 0 {
		return &MockDocument{}
	}
	return m.docs[m.cur]
}

func (m *MockPage) lookup(el Element) (*MockElement, error) {
	els := m.doc().Elements[el.Selector]
	if el.Index < 0 || el.Index >= len(els) || els[el.Index].Missing {
		return nil, ErrElementMissing
	}
	return els[el.Index], nil
}

func (m *MockPage) activate(me *MockElement) {
	m.activations++
	if me.Toggles {
		me.Checked = !me.Checked
	}
	if me.Advances && m.cur < len(m.docs)-1 {
		m.cur++
	}
}

func (m *MockPage) check(ctx context.Context) error {
	if m.closed {
		return fmt.Errorf("%w: page closed", ErrDriverFatal)
	}
	return ctx.Err()
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("navigate %s", url)
	if err := m.check(ctx); err != nil {
		return err
	}
	if m.NavigateErr != nil {
		return m.NavigateErr
	}
	m.cur = 0
	return nil
}

func (m *MockPage) Location(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("location")
	if err := m.check(ctx); err != nil {
		return "", err
	}
	return m.doc().URL, nil
}

func (m *MockPage) Title(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("title")
	if err := m.check(ctx); err != nil {
		return "", err
	}
	return m.doc().Title, nil
}

func (m *MockPage) Ready(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ready")
	if err := m.check(ctx); err != nil {
		return false, err
	}
	return !m.doc().NotReady, nil
}

func (m *MockPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("wait %s", selector)
	if err := m.check(ctx); err != nil {
		return err
	}
	for _, me := range m.doc().Elements[selector] {
		if me.Visible && !me.Missing {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not visible after %v", ErrTimeout, selector, timeout)
}

func (m *MockPage) Query(ctx context.Context, selector string) ([]Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("query %s", selector)
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var els []Element
	for i, me := range m.doc().Elements[selector] {
		if me.Missing {
			continue
		}
		el := me.Element
		el.Selector = selector
		el.Index = i
		els = append(els, el)
	}
	return els, nil
}

func (m *MockPage) ScrollIntoView(ctx context.Context, el Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("scroll %s#%d", el.Selector, el.Index)
	if err := m.check(ctx); err != nil {
		return err
	}
	_, err := m.lookup(el)
	return err
}

func (m *MockPage) Click(ctx context.Context, el Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("click %s#%d", el.Selector, el.Index)
	if err := m.check(ctx); err != nil {
		return err
	}
	me, err := m.lookup(el)
	if err != nil {
		return err
	}
	if me.ClickErr != nil {
		return me.ClickErr
	}
	m.activate(me)
	return nil
}

func (m *MockPage) ScriptClick(ctx context.Context, el Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("scriptclick %s#%d", el.Selector, el.Index)
	if err := m.check(ctx); err != nil {
		return err
	}
	me, err := m.lookup(el)
	if err != nil {
		return err
	}
	if !me.Visible {
		return ErrElementHidden
	}
	m.activate(me)
	return nil
}

func (m *MockPage) Checked(ctx context.Context, el Element) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("checked %s#%d", el.Selector, el.Index)
	if err := m.check(ctx); err != nil {
		return false, err
	}
	me, err := m.lookup(el)
	if err != nil {
		return false, err
	}
	return me.Checked, nil
}

func (m *MockPage) PressKey(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("key %s", key)
	if err := m.check(ctx); err != nil {
		return err
	}
	if m.doc().EnterAdvances && key == KeyEnter && m.cur < len(m.docs)-1 {
		m.cur++
	}
	return nil
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("screenshot")
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if m.ScreenshotErr != nil {
		return nil, m.ScreenshotErr
	}
	return []byte("\x89PNG"), nil
}

func (m *MockPage) HTML(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("html")
	if err := m.check(ctx); err != nil {
		return "", err
	}
	return m.doc().HTML, nil
}

func (m *MockPage) Alive(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *MockPage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("close")
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockPage) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
