package main

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

var errNoPrintButton = errors.New("print button not clickable in any frame")

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Outcome is the terminal classification of one credential's booking
// attempt. Exactly one is produced per credential per run.
type Outcome int

const (
	// OutcomeOK means a slot was reserved and confirmed.
	OutcomeOK Outcome = iota
	// OutcomeNoSlots means no appointments were available, or they
	// vanished before the reservation could be confirmed.
	OutcomeNoSlots
	// OutcomeBlocked means the site signaled rate limiting or an
	// account/IP block. Different remediation than plain no-slots.
	OutcomeBlocked
	// OutcomeError is any other unrecoverable failure, for example
	// login fields that never appeared.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeNoSlots:
		return "SIN_TURNOS"
	case OutcomeBlocked:
		return "BLOQUEADO"
	case OutcomeError:
		return "ERROR"
	default:
		return "ERROR"
	}
}

const (
	navigateTimeout      = 60 * time.Second
	popupWaitTimeout     = 15 * time.Second
	continueWaitTimeout  = 20 * time.Second
	continueRetryTimeout = 10 * time.Second
	loginFieldTimeout    = 12 * time.Second
	loginErrorTimeout    = 5 * time.Second
	slotTableTimeout     = 20 * time.Second
	confirmTimeout       = 10 * time.Second
	bannerTimeout        = 20 * time.Second
	receiptTimeout       = 20 * time.Second
)

// Booker drives one credential from a fresh page to a terminal outcome.
type Booker struct {
	cfg *Config
	log *zap.SugaredLogger

	now   func() time.Time
	sleep func(time.Duration)
}

func NewBooker(cfg *Config, log *zap.SugaredLogger) *Booker {
	return &Booker{cfg: cfg, log: log, now: time.Now, sleep: time.Sleep}
}

func (b *Booker) interactor(page Page) *Interactor {
	in := NewInteractor(page, b.cfg.Selectors, b.log)
	in.now, in.sleep = b.now, b.sleep
	return in
}

// Book runs the whole flow: navigate, open the widget, log in, poll for
// availability, pick a slot, confirm, and try to capture the receipt.
func (b *Booker) Book(session Session, usuario, password string, targetSlot int) Outcome {
	page, err := session.NewPage()
	if err != nil {
		b.log.Errorw("could not open page", "error", err)
		return OutcomeError
	}
	defer page.Close()

	if err := page.Navigate(b.cfg.URL, navigateTimeout); err != nil {
		b.log.Errorw("navigation failed", "url", b.cfg.URL, "error", err)
		return OutcomeError
	}

	in := b.interactor(page)
	in.ClickAny("datetime_link", 30*time.Second)
	in.ClickAny("popup_accept", 5*time.Second) // popup may not exist

	work := b.resolveWorkPage(session, page)
	in = b.interactor(work)
	for idx, frame := range work.Frames() {
		b.log.Infow("frame", "idx", idx, "url", frame.URL())
	}

	// The continue button usually lives inside the widget iframe and
	// attaches late; one retry with an extra wait covers the stragglers.
	in.WaitAny("continue_button", continueWaitTimeout)
	if !in.ClickAny("continue_button", continueWaitTimeout) {
		b.log.Infow("retrying continue click with extra wait")
		in.WaitAny("continue_button", continueRetryTimeout)
		in.ClickAny("continue_button", continueWaitTimeout)
	}
	_ = work.WaitLoad(30 * time.Second)
	in.WaitLoadingEnd(25 * time.Second)

	widget := b.widgetFrame(work)

	if !b.login(in, widget, usuario, password) {
		return OutcomeError
	}

	if in.WaitAny("login_error", loginErrorTimeout) {
		b.log.Warnw("login rejected by the widget")
		return OutcomeError
	}

	poller := NewPoller(in, b.cfg, b.log)
	poller.sleep = b.sleep
	if !poller.WaitForSlots(b.cfg.MaxPollCycles) {
		return OutcomeNoSlots
	}

	if !in.WaitAny("slot_table", slotTableTimeout) {
		if !in.WaitAny("service_card", slotTableTimeout) {
			if in.PageContainsText(b.cfg.BlockedTexts...) {
				return OutcomeBlocked
			}
			return OutcomeNoSlots
		}
		in.ClickAny("service_card", 10*time.Second)
		in.WaitLoadingEnd(20 * time.Second)

		if !in.WaitAny("slot_container", slotTableTimeout) {
			// The slot list sometimes streams in behind one more
			// loading round; probe once more before giving up.
			in.WaitLoadingEnd(10 * time.Second)
			in.WaitAny("slot_container", continueRetryTimeout)
		}
	}

	outcome := b.selectSlot(in, targetSlot)
	if outcome != OutcomeOK {
		return outcome
	}

	if !in.ClickAny("confirm_button", confirmTimeout) {
		b.log.Warnw("confirm button missing after slot click")
		return OutcomeError
	}
	in.WaitLoadingEnd(15 * time.Second)

	b.downloadReceipt(in, work)

	return OutcomeOK
}

// resolveWorkPage picks the page the widget actually rendered into:
// a freshly spawned tab when one shows up in time, the original page
// otherwise. The widget rendering inline is the normal case, not an
// error.
func (b *Booker) resolveWorkPage(session Session, page Page) Page {
	popup, err := session.WaitPopup(popupWaitTimeout)
	if err != nil {
		_ = page.WaitLoad(30 * time.Second)
		b.log.Infow("no new tab, staying on current page", "url", page.URL())
		return page
	}
	_ = popup.WaitLoad(30 * time.Second)
	b.log.Infow("widget opened a new tab", "url", popup.URL())
	return popup
}

// widgetFrame finds the first attached frame served from a known widget
// host, falling back to the root frame.
func (b *Booker) widgetFrame(page Page) Frame {
	frames := page.Frames()
	for _, frame := range frames {
		for _, host := range b.cfg.WidgetHosts {
			if host != "" && containsFold(frame.URL(), host) {
				return frame
			}
		}
	}
	return frames[0]
}

// login goes in through the "cancel or consult my bookings" view, which
// is the one screen of the widget that always exposes the credential
// form. Field-location timeouts dump every frame's HTML before bailing.
func (b *Booker) login(in *Interactor, widget Frame, usuario, password string) bool {
	in.WaitAny("consult_link", continueWaitTimeout)
	in.ClickAny("consult_link", loginFieldTimeout)
	in.WaitLoadingEnd(pollLoadingTimeout)

	if !in.FillInFrame(widget, "login_user", FormatDNI(usuario), loginFieldTimeout) {
		b.log.Warnw("could not locate the user field")
		in.DumpFrames()
		return false
	}
	if !in.FillInFrame(widget, "login_password", password, loginFieldTimeout) {
		b.log.Warnw("could not locate the password field")
		in.DumpFrames()
		return false
	}

	in.ClickAny("login_submit", loginFieldTimeout)
	return true
}

// selectSlot enumerates the rendered slot buttons, trying each selector
// in the group until one yields a non-empty collection, and clicks the
// one at min(targetSlot, count-1). Pointing different credentials at
// different indices spreads the load across the offered times.
func (b *Booker) selectSlot(in *Interactor, targetSlot int) Outcome {
	frame, selector, count := b.findSlotButtons(in)
	if count == 0 {
		if in.PageContainsText(b.cfg.BlockedTexts...) {
			return OutcomeBlocked
		}
		return OutcomeNoSlots
	}

	idx := targetSlot
	if idx > count-1 {
		idx = count - 1
	}
	if idx < 0 {
		idx = 0
	}

	if err := frame.ClickNth(selector, idx); err != nil {
		// The slot vanished between render and click.
		b.log.Warnw("slot click failed", "selector", selector, "idx", idx, "error", err)
		return OutcomeNoSlots
	}
	b.log.Infow("slot selected", "selector", selector, "idx", idx, "rendered", count)
	return OutcomeOK
}

func (b *Booker) findSlotButtons(in *Interactor) (Frame, string, int) {
	for _, frame := range in.Page().Frames() {
		for _, sel := range b.cfg.Selectors.Group("slot_buttons") {
			if n, err := frame.Count(sel); err == nil && n > 0 {
				return frame, sel, n
			}
		}
	}
	return nil, "", 0
}

// downloadReceipt is best effort end to end: a missing banner or an
// unclickable print button is logged and the outcome stays OK.
func (b *Booker) downloadReceipt(in *Interactor, work Page) {
	if !in.WaitAny("confirmation_banner", bannerTimeout) {
		b.log.Warnw("confirmation banner not seen, skipping receipt")
	}

	for _, sel := range b.cfg.Selectors.Group("print_button") {
		path, err := work.Download(b.cfg.DownloadDir, receiptTimeout, func() error {
			for _, frame := range work.Frames() {
				if err := frame.Click(sel, 3*time.Second); err == nil {
					return nil
				}
			}
			return errNoPrintButton
		})
		if err != nil {
			continue
		}
		b.log.Infow("receipt saved", "path", path)
		return
	}
	b.log.Warnw("could not capture the receipt download")
}
