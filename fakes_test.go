package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errNotFound = errors.New("selector not found")

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// fakeClock advances instantly on Sleep so deadline loops finish without
// serving real waits, while recording every sleep for assertions.
type fakeClock struct {
	mu      sync.Mutex
	t       time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
}

// sleepsOf counts recorded sleeps of exactly d.
func (c *fakeClock) sleepsOf(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

type fakeFrame struct {
	mu   sync.Mutex
	name string
	url  string
	html string

	present        map[string]bool
	counts         map[string]int
	clickFails     map[string]bool // present but the native click raises
	fillFails      map[string]bool // present but the native fill raises
	forceFillFails map[string]bool
	forceClickable map[string]bool

	attempts   []string // every click attempt, hit or miss
	clicks     []string
	fills      map[string]string
	forceFills map[string]string
	nthClicks  []string
}

func newFakeFrame(name, url string) *fakeFrame {
	return &fakeFrame{
		name:           name,
		url:            url,
		present:        map[string]bool{},
		counts:         map[string]int{},
		clickFails:     map[string]bool{},
		fillFails:      map[string]bool{},
		forceFillFails: map[string]bool{},
		forceClickable: map[string]bool{},
		fills:          map[string]string{},
		forceFills:     map[string]string{},
	}
}

func (f *fakeFrame) setPresent(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sel := range selectors {
		f.present[sel] = true
	}
}

func (f *fakeFrame) setAbsent(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sel := range selectors {
		delete(f.present, sel)
		delete(f.counts, sel)
	}
}

func (f *fakeFrame) Name() string { return f.name }
func (f *fakeFrame) URL() string  { return f.url }

func (f *fakeFrame) Click(selector string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, f.name+"|"+selector)
	if f.present[selector] && !f.clickFails[selector] {
		f.clicks = append(f.clicks, selector)
		return nil
	}
	return errNotFound
}

func (f *fakeFrame) Fill(selector, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.present[selector] && !f.fillFails[selector] {
		f.fills[selector] = value
		return nil
	}
	return errNotFound
}

func (f *fakeFrame) ForceClick(selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceClickable[selector] {
		f.clicks = append(f.clicks, "force:"+selector)
		return nil
	}
	return errNotFound
}

func (f *fakeFrame) ForceFill(selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.present[selector] && !f.forceFillFails[selector] {
		f.forceFills[selector] = value
		return nil
	}
	return errNotFound
}

func (f *fakeFrame) Has(selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[selector] || f.counts[selector] > 0, nil
}

func (f *fakeFrame) Count(selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[selector], nil
}

func (f *fakeFrame) ClickNth(selector string, idx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx < 0 || idx >= f.counts[selector] {
		return fmt.Errorf("index %d out of range", idx)
	}
	f.nthClicks = append(f.nthClicks, fmt.Sprintf("%s#%d", selector, idx))
	return nil
}

func (f *fakeFrame) WaitHidden(string, time.Duration) error { return nil }

func (f *fakeFrame) HTML() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, nil
}

func (f *fakeFrame) clicked(selector string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clicks {
		if c == selector {
			return true
		}
	}
	return false
}

type fakePage struct {
	frames       []*fakeFrame
	url          string
	navigated    []string
	navigateErr  error
	downloadPath string
	closed       bool
}

func newFakePage(frames ...*fakeFrame) *fakePage {
	return &fakePage{frames: frames}
}

func (p *fakePage) Navigate(url string, _ time.Duration) error {
	p.navigated = append(p.navigated, url)
	return p.navigateErr
}

func (p *fakePage) WaitLoad(time.Duration) error        { return nil }
func (p *fakePage) WaitNetworkIdle(time.Duration) error { return nil }
func (p *fakePage) URL() string                         { return p.url }

func (p *fakePage) Frames() []Frame {
	out := make([]Frame, len(p.frames))
	for i, f := range p.frames {
		out[i] = f
	}
	return out
}

func (p *fakePage) Download(_ string, _ time.Duration, trigger func() error) (string, error) {
	if err := trigger(); err != nil {
		return "", err
	}
	if p.downloadPath == "" {
		return "", errors.New("no download captured")
	}
	return p.downloadPath, nil
}

func (p *fakePage) Close() { p.closed = true }

type fakeSession struct {
	page    *fakePage
	popup   *fakePage
	pageErr error
	closed  bool
}

func (s *fakeSession) NewPage() (Page, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.page, nil
}

func (s *fakeSession) WaitPopup(timeout time.Duration) (Page, error) {
	if s.popup != nil {
		return s.popup, nil
	}
	return nil, fmt.Errorf("no new tab within %s", timeout)
}

func (s *fakeSession) Close() { s.closed = true }

type fakeBrowser struct {
	mu       sync.Mutex
	sessions []*fakeSession
	build    func() *fakeSession
}

func (b *fakeBrowser) NewSession() (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.build()
	b.sessions = append(b.sessions, s)
	return s, nil
}

func (b *fakeBrowser) Close() {}
