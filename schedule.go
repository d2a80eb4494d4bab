package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// targetSlotForIndex spreads credentials across the offered slot times:
// the first credentials aim at slot 0, later ones at progressively
// higher indices, saturating at maxSlot. This keeps a batch of workers
// from all fighting over the first rendered slot.
func targetSlotForIndex(idx, maxSlot int) int {
	if idx <= 0 {
		return 0
	}
	slot := int(math.Log2(float64(idx + 1)))
	if slot > maxSlot {
		return maxSlot
	}
	return slot
}

// parseOpening parses an "HH:MM" schedule entry.
func parseOpening(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid opening time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in opening time %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in opening time %q", s)
	}
	return hour, minute, nil
}

// nextOpening returns the next moment the widget opens inventory
// according to the configured schedule. When every opening of the day
// has passed it rolls over to tomorrow's first one.
func nextOpening(now time.Time, openings []string) (time.Time, error) {
	if len(openings) == 0 {
		return time.Time{}, fmt.Errorf("no opening times configured")
	}

	var candidates []time.Time
	for _, entry := range openings {
		h, m, err := parseOpening(entry)
		if err != nil {
			return time.Time{}, err
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
		if at.After(now) {
			candidates = append(candidates, at)
		}
	}

	if len(candidates) > 0 {
		earliest := candidates[0]
		for _, c := range candidates[1:] {
			if c.Before(earliest) {
				earliest = c
			}
		}
		return earliest, nil
	}

	h, m, err := parseOpening(openings[0])
	if err != nil {
		return time.Time{}, err
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), h, m, 0, 0, now.Location()), nil
}

// waitUntil blocks until the target time, sleeping in blocks that
// shrink as the target approaches.
func waitUntil(target time.Time) {
	for {
		diff := time.Until(target)
		if diff <= 0 {
			return
		}
		switch {
		case diff > time.Minute:
			time.Sleep(30 * time.Second)
		case diff > 10*time.Second:
			time.Sleep(5 * time.Second)
		default:
			time.Sleep(500 * time.Millisecond)
		}
	}
}
