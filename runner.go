package main

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner fans the credential rows out over a bounded worker pool. Each
// worker gets its own browser context, runs one credential to a terminal
// outcome, and never takes a sibling down with it.
type Runner struct {
	cfg     *Config
	log     *zap.SugaredLogger
	browser Browser
	store   *RecordStore

	stopped atomic.Bool

	// Swappable clock, threaded into every worker's flow.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewRunner(cfg *Config, log *zap.SugaredLogger, browser Browser, store *RecordStore) *Runner {
	return &Runner{cfg: cfg, log: log, browser: browser, store: store, now: time.Now, sleep: time.Sleep}
}

func (r *Runner) Run() {
	if r.cfg.WaitForOpening {
		target, err := nextOpening(r.now(), r.cfg.OpeningTimes)
		if err != nil {
			r.log.Warnw("invalid opening schedule, starting immediately", "error", err)
		} else {
			r.log.Infow("waiting for the next opening", "at", target.Format(time.RFC3339))
			waitUntil(target)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.MaxWorkers)

	for idx, rec := range r.store.Records() {
		idx, rec := idx, rec
		g.Go(func() error {
			r.processRecord(idx, rec)
			return nil
		})
	}

	_ = g.Wait()
}

func (r *Runner) processRecord(idx int, rec Record) {
	log := r.log.With("user", rec.Usuario)

	if r.stopped.Load() {
		log.Infow("batch stopped, skipping")
		return
	}
	if rec.Usuario == "" || rec.Password == "" {
		r.log.Warnw("empty user or password, skipping row", "row", rec.Row)
		return
	}
	if rec.Done() {
		log.Infow("slot already obtained, skipping")
		return
	}

	log.Infow("=== attempting to book a slot ===")

	outcome := r.attempt(idx, rec, log)
	log.Infow("attempt finished", "outcome", outcome.String())

	switch outcome {
	case OutcomeOK:
		r.store.MarkObtained(rec.Row)
	case OutcomeNoSlots:
		if r.cfg.StopOnNoSlots {
			log.Infow("no slots and stop_on_no_slots is set, stopping the batch")
			r.stopped.Store(true)
		}
	}
}

// attempt isolates one credential's run: any panic below this point is
// logged with its stack and becomes an ERROR outcome for this row only.
func (r *Runner) attempt(idx int, rec Record, log *zap.SugaredLogger) (outcome Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("unhandled panic during booking", "panic", p, "stack", string(debug.Stack()))
			outcome = OutcomeError
		}
	}()

	session, err := r.browser.NewSession()
	if err != nil {
		log.Errorw("could not create browser context", "error", err)
		return OutcomeError
	}
	defer session.Close()

	booker := NewBooker(r.cfg, log)
	booker.now, booker.sleep = r.now, r.sleep
	return booker.Book(session, rec.Usuario, rec.Password, targetSlotForIndex(idx, r.cfg.MaxSlotIndex))
}
