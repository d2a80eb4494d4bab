package main

import (
	"time"

	"go.uber.org/zap"
)

const (
	arrowClickTimeout   = 8 * time.Second
	historyClickTimeout = 8 * time.Second
	pollLoadingTimeout  = 12 * time.Second
)

// Poller cycles the widget between its history view and the "book a new
// appointment" view until a slot table or service card shows up, or a
// definitive "no slots" message is read off the page. This loop is the
// backpressure mechanism against a server that only opens inventory
// periodically.
type Poller struct {
	in  *Interactor
	cfg *Config
	log *zap.SugaredLogger

	// sleep is swappable so tests do not serve real cooldowns.
	sleep func(time.Duration)
}

func NewPoller(in *Interactor, cfg *Config, log *zap.SugaredLogger) *Poller {
	return &Poller{in: in, cfg: cfg, log: log, sleep: time.Sleep}
}

// WaitForSlots runs up to maxCycles polling cycles and reports whether
// availability was ever observed. The availability check is live: it
// looks at the DOM in the current cycle and never carries a stale
// positive over from an earlier one.
func (p *Poller) WaitForSlots(maxCycles int) bool {
	for cycle := 0; cycle < maxCycles; cycle++ {
		p.cycleWidget()

		p.in.WaitLoadingEnd(pollLoadingTimeout)

		if p.in.AnyPresent("slot_table") || p.in.AnyPresent("service_card") {
			p.log.Infow("availability detected", "cycle", cycle+1)
			return true
		}

		if p.in.PageContainsText(p.cfg.NoSlotsTexts...) {
			p.log.Infow("no slots yet, cooling down",
				"cycle", cycle+1, "max_cycles", maxCycles,
				"cooldown_seconds", p.cfg.NoSlotsCooldownSeconds)
			p.sleep(time.Duration(p.cfg.NoSlotsCooldownSeconds) * time.Second)
			p.in.ClickAny("view_history", historyClickTimeout)
			p.in.WaitLoadingEnd(pollLoadingTimeout)
			continue
		}

		// Neither a slot table nor the no-slots message: ambiguous
		// state, give the widget a moment and go around again.
		p.sleep(time.Duration(p.cfg.PollIntervalSeconds) * time.Second)
	}

	p.log.Warnw("gave up polling without seeing availability", "cycles", maxCycles)
	return false
}

// cycleWidget pushes the widget back to the booking view via the back
// arrow, escalating from a native click to a forced DOM click to a
// detour through the history view.
func (p *Poller) cycleWidget() {
	if p.in.ClickAny("back_arrow", arrowClickTimeout) {
		return
	}
	if p.in.ForceClickAny("back_arrow") {
		return
	}

	p.log.Infow("back arrow not clickable, cycling through history view")
	p.in.ClickAny("view_history", historyClickTimeout)
	p.in.WaitLoadingEnd(historyClickTimeout)
	p.in.ClickAny("back_arrow", arrowClickTimeout)

	if p.cfg.HistoryBackoffSeconds > 0 {
		p.sleep(time.Duration(p.cfg.HistoryBackoffSeconds) * time.Second)
	}
}
