package main

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	sweepInterval     = 300 * time.Millisecond
	loaderHideTimeout = 2 * time.Second
	networkIdleGrace  = 2 * time.Second
	htmlSnippetLimit  = 5000
)

// Interactor implements the retry-across-frames-and-selectors primitives
// every flow step is built from. The widget attaches and detaches
// elements as it re-renders, so each primitive tries every (frame,
// selector) combination, swallows individual misses and only reports
// failure once the whole space is exhausted.
type Interactor struct {
	page Page
	sel  SelectorCatalog
	log  *zap.SugaredLogger

	// Swappable clock so tests do not serve real sweep intervals.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewInteractor(page Page, sel SelectorCatalog, log *zap.SugaredLogger) *Interactor {
	return &Interactor{page: page, sel: sel, log: log, now: time.Now, sleep: time.Sleep}
}

func (in *Interactor) Page() Page { return in.page }

// ClickAny clicks the first (frame, selector) combination that works.
// Frames are the outer loop on purpose: a low-priority selector in an
// earlier frame beats a high-priority selector in a later one, because
// frame order tracks where the widget actually renders.
func (in *Interactor) ClickAny(landmark string, timeout time.Duration) bool {
	selectors := in.sel.Group(landmark)
	for _, frame := range in.page.Frames() {
		for _, sel := range selectors {
			if err := frame.Click(sel, timeout); err != nil {
				continue
			}
			in.log.Infow("clicked", "selector", sel, "frame", frame.Name())
			return true
		}
	}
	in.log.Warnw("no selector clickable in any frame", "landmark", landmark, "selectors", selectors)
	return false
}

// ForceClickAny dispatches DOM-level clicks when the native click keeps
// racing against a re-render.
func (in *Interactor) ForceClickAny(landmark string) bool {
	for _, frame := range in.page.Frames() {
		for _, sel := range in.sel.Group(landmark) {
			if err := frame.ForceClick(sel); err != nil {
				continue
			}
			in.log.Infow("force-clicked", "selector", sel, "frame", frame.Name())
			return true
		}
	}
	return false
}

// FillAny locates a field the same way ClickAny does, clicks it, then
// fills it. If the native fill raises, the value is injected directly
// with synthetic input/change events; that still counts as success.
func (in *Interactor) FillAny(landmark, value string, timeout time.Duration) bool {
	selectors := in.sel.Group(landmark)
	for _, frame := range in.page.Frames() {
		for _, sel := range selectors {
			if err := frame.Click(sel, timeout); err != nil {
				continue
			}
			if err := frame.Fill(sel, value, timeout); err != nil {
				if err := frame.ForceFill(sel, value); err != nil {
					continue
				}
				in.log.Infow("force-filled", "selector", sel, "frame", frame.Name())
				return true
			}
			in.log.Infow("filled", "selector", sel, "frame", frame.Name())
			return true
		}
	}
	in.log.Warnw("no selector fillable in any frame", "landmark", landmark, "selectors", selectors)
	return false
}

// FillInFrame fills a field within one specific frame, retrying until
// the deadline. Used for the login form, which must land in the widget
// frame and nowhere else.
func (in *Interactor) FillInFrame(frame Frame, landmark, value string, timeout time.Duration) bool {
	selectors := in.sel.Group(landmark)
	deadline := in.now().Add(timeout)
	for {
		for _, sel := range selectors {
			if err := frame.Click(sel, loaderHideTimeout); err == nil {
				if err := frame.Fill(sel, value, 5*time.Second); err == nil {
					in.log.Infow("filled", "selector", sel, "frame", frame.URL())
					return true
				}
			}
			if ok, _ := frame.Has(sel); ok {
				if err := frame.ForceFill(sel, value); err == nil {
					in.log.Infow("force-filled", "selector", sel, "frame", frame.URL())
					return true
				}
			}
		}
		if in.now().After(deadline) {
			break
		}
		in.sleep(sweepInterval)
	}
	in.log.Warnw("could not fill field in frame", "landmark", landmark, "frame", frame.URL())
	return false
}

// WaitAny polls every attached frame for presence (not visibility) of
// any selector in the group, sweeping until found or the timeout lapses.
func (in *Interactor) WaitAny(landmark string, timeout time.Duration) bool {
	return in.WaitAnySelectors(in.sel.Group(landmark), timeout)
}

func (in *Interactor) WaitAnySelectors(selectors []string, timeout time.Duration) bool {
	deadline := in.now().Add(timeout)
	for {
		for _, frame := range in.page.Frames() {
			for _, sel := range selectors {
				if ok, err := frame.Has(sel); err == nil && ok {
					return true
				}
			}
		}
		if in.now().After(deadline) {
			break
		}
		in.sleep(sweepInterval)
	}
	in.log.Warnw("timed out waiting for selectors in any frame", "selectors", selectors)
	return false
}

// AnyPresent is a single non-waiting sweep of all frames.
func (in *Interactor) AnyPresent(landmark string) bool {
	for _, frame := range in.page.Frames() {
		for _, sel := range in.sel.Group(landmark) {
			if ok, err := frame.Has(sel); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// WaitLoadingEnd sweeps every frame for known loader elements and waits
// for each one found to hide. A sweep that finds no loaders anywhere
// ends the wait early after a short network-idle grace; otherwise the
// sweeps continue until the deadline.
func (in *Interactor) WaitLoadingEnd(timeout time.Duration) bool {
	loaders := in.sel.Group("loaders")
	deadline := in.now().Add(timeout)

	for {
		loaderFound := false
		for _, frame := range in.page.Frames() {
			for _, sel := range loaders {
				ok, err := frame.Has(sel)
				if err != nil || !ok {
					continue
				}
				loaderFound = true
				// Bounded; a stuck loader falls through to the next sweep.
				_ = frame.WaitHidden(sel, loaderHideTimeout)
			}
		}
		if !loaderFound {
			_ = in.page.WaitNetworkIdle(networkIdleGrace)
			return true
		}
		if in.now().After(deadline) {
			break
		}
		in.sleep(sweepInterval)
	}
	in.log.Warnw("timed out waiting for loading to end")
	return false
}

// PageContainsText reports whether any of the given texts appears in the
// HTML of any attached frame, case-insensitively.
func (in *Interactor) PageContainsText(texts ...string) bool {
	for _, frame := range in.page.Frames() {
		html, err := frame.HTML()
		if err != nil {
			continue
		}
		lower := strings.ToLower(html)
		for _, txt := range texts {
			if strings.Contains(lower, strings.ToLower(txt)) {
				return true
			}
		}
	}
	return false
}

// DumpFrames logs a truncated HTML snapshot of every frame. Best-effort
// diagnostics for the cases where the widget never produced the form we
// were looking for.
func (in *Interactor) DumpFrames() {
	for idx, frame := range in.page.Frames() {
		html, err := frame.HTML()
		if err != nil {
			in.log.Warnw("could not read frame HTML", "frame", idx, "error", err)
			continue
		}
		if len(html) > htmlSnippetLimit {
			html = html[:htmlSnippetLimit]
		}
		in.log.Warnw("frame snapshot", "frame", idx, "url", frame.URL(), "html", html)
	}
}
