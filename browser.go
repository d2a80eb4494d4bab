package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Frame is one browsing context: the main document of a tab or an
// embedded iframe. A frame reference is a snapshot; once the underlying
// frame detaches every method simply returns an error and callers are
// expected to skip it and move on.
type Frame interface {
	Name() string
	URL() string
	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	// ForceClick dispatches a DOM-level click, bypassing visibility and
	// hit-target checks that make the native click raise.
	ForceClick(selector string) error
	// ForceFill sets the element value directly and fires synthetic
	// input/change events so framework listeners observe the change.
	ForceFill(selector, value string) error
	Has(selector string) (bool, error)
	Count(selector string) (int, error)
	ClickNth(selector string, idx int) error
	WaitHidden(selector string, timeout time.Duration) error
	HTML() (string, error)
}

// Page is one tab. Frames returns the currently attached frames, root
// frame first; the set is re-enumerated on every call because the widget
// replaces its DOM on each internal navigation.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	WaitLoad(timeout time.Duration) error
	WaitNetworkIdle(timeout time.Duration) error
	Frames() []Frame
	URL() string
	// Download runs trigger and captures the file download it starts,
	// saving it under the browser-suggested name inside dir.
	Download(dir string, timeout time.Duration, trigger func() error) (string, error)
	Close()
}

// Session is one isolated browser context: own cookies, own user agent.
// Each credential gets exactly one session.
type Session interface {
	NewPage() (Page, error)
	// WaitPopup waits for the site to spawn a new tab. Timing out is the
	// normal inline-widget case, not a failure.
	WaitPopup(timeout time.Duration) (Page, error)
	Close()
}

type Browser interface {
	NewSession() (Session, error)
	Close()
}

const maxFrameDepth = 3

// guard runs a browser call and converts panics from detached frames or
// a dropped connection into plain errors.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("browser call failed: %v", r)
		}
	}()
	return fn()
}

// ---- selector compilation -------------------------------------------------
//
// The catalog keeps three query forms: plain css, "text=<substring>" and
// "<css>:has-text('<substring>')". The two text forms exist because the
// widget renders many landmarks as bare text nodes with unstable classes.

var hasTextRe = regexp.MustCompile(`^(.*?):has-text\('([^']*)'\)$`)

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}

func textXPath(text string) string {
	return fmt.Sprintf(`//*[text()[contains(., %s)]]`, xpathLiteral(text))
}

// ---- rod implementation ---------------------------------------------------

type rodBrowser struct {
	cfg      *Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	rand     *rand.Rand
}

func NewRodBrowser(cfg *Config) (Browser, error) {
	// Leakless deadlocks on Windows, see go-rod/rod#853.
	l := launcher.New().
		Headless(cfg.Headless).
		Leakless(runtime.GOOS != "windows")

	if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	if cfg.Proxy.Server != "" {
		l = l.Proxy(cfg.Proxy.Server)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if cfg.Proxy.Server != "" && cfg.Proxy.Username != "" {
		go func() {
			_ = browser.HandleAuth(cfg.Proxy.Username, cfg.Proxy.Password)()
		}()
	}

	return &rodBrowser{
		cfg:      cfg,
		browser:  browser,
		launcher: l,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (b *rodBrowser) NewSession() (Session, error) {
	inc, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}

	ua := b.cfg.UserAgents[b.rand.Intn(len(b.cfg.UserAgents))]

	return &rodSession{cfg: b.cfg, browser: inc, userAgent: ua}, nil
}

func (b *rodBrowser) Close() {
	if b.browser != nil {
		b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
}

type rodSession struct {
	cfg       *Config
	browser   *rod.Browser
	userAgent string
	pages     []*rod.Page
}

func (s *rodSession) NewPage() (Page, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.userAgent}); err != nil {
		return nil, fmt.Errorf("failed to set user agent: %w", err)
	}

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	})

	s.pages = append(s.pages, page)
	return &rodPage{page: page, browser: s.browser}, nil
}

func (s *rodSession) WaitPopup(timeout time.Duration) (Page, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var targetID proto.TargetTargetID
	found := false

	err := guard(func() error {
		s.browser.Context(ctx).EachEvent(func(e *proto.TargetTargetCreated) bool {
			if e.TargetInfo.Type == "page" {
				targetID = e.TargetInfo.TargetID
				found = true
				return true
			}
			return false
		})()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no new tab within %s", timeout)
	}

	page, err := s.browser.PageFromTarget(targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to new tab: %w", err)
	}

	s.pages = append(s.pages, page)
	return &rodPage{page: page, browser: s.browser}, nil
}

func (s *rodSession) Close() {
	for _, p := range s.pages {
		_ = guard(p.Close)
	}
	_ = guard(func() error {
		return proto.TargetDisposeBrowserContext{
			BrowserContextID: s.browser.BrowserContextID,
		}.Call(s.browser)
	})
}

type rodPage struct {
	page    *rod.Page
	browser *rod.Browser
}

func (p *rodPage) Navigate(url string, timeout time.Duration) error {
	return guard(func() error {
		if err := p.page.Timeout(timeout).Navigate(url); err != nil {
			return err
		}
		return p.page.Timeout(timeout).WaitLoad()
	})
}

func (p *rodPage) WaitLoad(timeout time.Duration) error {
	return guard(func() error { return p.page.Timeout(timeout).WaitLoad() })
}

func (p *rodPage) WaitNetworkIdle(timeout time.Duration) error {
	return guard(func() error { return p.page.WaitIdle(timeout) })
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Frames() []Frame {
	var frames []Frame
	collectFrames(p.page, "page", 0, &frames)
	return frames
}

func collectFrames(page *rod.Page, name string, depth int, out *[]Frame) {
	url := ""
	_ = guard(func() error {
		res, err := page.Eval(`() => location.href`)
		if err != nil {
			return err
		}
		url = res.Value.Str()
		return nil
	})

	*out = append(*out, &rodFrame{name: name, url: url, page: page})

	if depth >= maxFrameDepth {
		return
	}

	var els rod.Elements
	if err := guard(func() error {
		var err error
		els, err = page.Elements("iframe")
		return err
	}); err != nil {
		return
	}

	for i, el := range els {
		child, err := el.Frame()
		if err != nil {
			// Detached while we were scanning; skip it.
			continue
		}
		collectFrames(child, fmt.Sprintf("%s/frame:%d", name, i), depth+1, out)
	}
}

type rodFrame struct {
	name string
	url  string
	page *rod.Page
}

func (f *rodFrame) Name() string { return f.name }
func (f *rodFrame) URL() string  { return f.url }

func (f *rodFrame) element(selector string, timeout time.Duration) (*rod.Element, error) {
	p := f.page.Timeout(timeout)
	switch {
	case strings.HasPrefix(selector, "text="):
		return p.ElementX(textXPath(strings.TrimPrefix(selector, "text=")))
	case hasTextRe.MatchString(selector):
		m := hasTextRe.FindStringSubmatch(selector)
		return p.ElementR(m[1], regexp.QuoteMeta(m[2]))
	default:
		return p.Element(selector)
	}
}

// elements resolves a selector to the current matching collection
// without waiting.
func (f *rodFrame) elements(selector string) (rod.Elements, error) {
	switch {
	case strings.HasPrefix(selector, "text="):
		return f.page.ElementsX(textXPath(strings.TrimPrefix(selector, "text=")))
	case hasTextRe.MatchString(selector):
		m := hasTextRe.FindStringSubmatch(selector)
		els, err := f.page.Elements(m[1])
		if err != nil {
			return nil, err
		}
		var matched rod.Elements
		for _, el := range els {
			text, err := el.Text()
			if err != nil {
				continue
			}
			if strings.Contains(text, m[2]) {
				matched = append(matched, el)
			}
		}
		return matched, nil
	default:
		return f.page.Elements(selector)
	}
}

func (f *rodFrame) Click(selector string, timeout time.Duration) error {
	return guard(func() error {
		el, err := f.element(selector, timeout)
		if err != nil {
			return err
		}
		return el.Timeout(timeout).Click(proto.InputMouseButtonLeft, 1)
	})
}

func (f *rodFrame) Fill(selector, value string, timeout time.Duration) error {
	return guard(func() error {
		el, err := f.element(selector, timeout)
		if err != nil {
			return err
		}
		if err := el.Timeout(timeout).SelectAllText(); err != nil {
			return err
		}
		return el.Timeout(timeout).Input(value)
	})
}

func (f *rodFrame) ForceClick(selector string) error {
	return guard(func() error {
		el, err := f.element(selector, 2*time.Second)
		if err != nil {
			return err
		}
		_, err = el.Eval(`() => this.click()`)
		return err
	})
}

func (f *rodFrame) ForceFill(selector, value string) error {
	return guard(func() error {
		el, err := f.element(selector, 2*time.Second)
		if err != nil {
			return err
		}
		_, err = el.Eval(`(val) => {
			this.focus();
			this.value = val;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
		}`, value)
		return err
	})
}

func (f *rodFrame) Has(selector string) (bool, error) {
	var ok bool
	err := guard(func() error {
		var err error
		switch {
		case strings.HasPrefix(selector, "text="):
			ok, _, err = f.page.HasX(textXPath(strings.TrimPrefix(selector, "text=")))
		case hasTextRe.MatchString(selector):
			m := hasTextRe.FindStringSubmatch(selector)
			ok, _, err = f.page.HasR(m[1], regexp.QuoteMeta(m[2]))
		default:
			ok, _, err = f.page.Has(selector)
		}
		return err
	})
	return ok, err
}

func (f *rodFrame) Count(selector string) (int, error) {
	var n int
	err := guard(func() error {
		els, err := f.elements(selector)
		if err != nil {
			return err
		}
		n = len(els)
		return nil
	})
	return n, err
}

func (f *rodFrame) ClickNth(selector string, idx int) error {
	return guard(func() error {
		els, err := f.elements(selector)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(els) {
			return fmt.Errorf("index %d out of range for %d elements", idx, len(els))
		}
		return els[idx].Timeout(5 * time.Second).Click(proto.InputMouseButtonLeft, 1)
	})
}

func (f *rodFrame) WaitHidden(selector string, timeout time.Duration) error {
	return guard(func() error {
		el, err := f.element(selector, timeout)
		if err != nil {
			return err
		}
		return el.Timeout(timeout).WaitInvisible()
	})
}

func (f *rodFrame) HTML() (string, error) {
	var html string
	err := guard(func() error {
		var err error
		html, err = f.page.HTML()
		return err
	})
	return html, err
}

func (p *rodPage) Download(dir string, timeout time.Duration, trigger func() error) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	wait := p.browser.WaitDownload(dir)

	if err := trigger(); err != nil {
		return "", err
	}

	done := make(chan *proto.PageDownloadWillBegin, 1)
	go func() {
		var info *proto.PageDownloadWillBegin
		_ = guard(func() error {
			info = wait()
			return nil
		})
		done <- info
	}()

	select {
	case info := <-done:
		if info == nil {
			return "", fmt.Errorf("download did not start")
		}
		path := filepath.Join(dir, info.GUID)
		if info.SuggestedFilename != "" {
			named := filepath.Join(dir, filepath.Base(info.SuggestedFilename))
			if err := os.Rename(path, named); err == nil {
				path = named
			}
		}
		return path, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("timed out after %s waiting for download", timeout)
	}
}

func (p *rodPage) Close() {
	_ = guard(p.page.Close)
}
