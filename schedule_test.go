package main

import (
	"testing"
	"time"
)

func TestTargetSlotForIndex(t *testing.T) {
	cases := []struct {
		idx, maxSlot, want int
	}{
		{0, 3, 0},
		{1, 3, 1},
		{2, 3, 1},
		{3, 3, 2},
		{6, 3, 2},
		{7, 3, 3},
		{100, 3, 3}, // saturates at the cap
		{100, 5, 5},
		{-1, 3, 0},
	}
	for _, tc := range cases {
		if got := targetSlotForIndex(tc.idx, tc.maxSlot); got != tc.want {
			t.Errorf("targetSlotForIndex(%d, %d) = %d, want %d", tc.idx, tc.maxSlot, got, tc.want)
		}
	}
}

func TestTargetSlotForIndexIsMonotonic(t *testing.T) {
	prev := 0
	for idx := 0; idx < 200; idx++ {
		slot := targetSlotForIndex(idx, 3)
		if slot < prev {
			t.Fatalf("slot dropped from %d to %d at index %d", prev, slot, idx)
		}
		if slot > 3 {
			t.Fatalf("slot %d exceeds cap at index %d", slot, idx)
		}
		prev = slot
	}
}

func TestWaitUntilPastTargetReturnsImmediately(t *testing.T) {
	start := time.Now()
	waitUntil(start.Add(-time.Second))
	if time.Since(start) > time.Second {
		t.Error("waitUntil blocked on a target in the past")
	}
}

func TestParseOpening(t *testing.T) {
	cases := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"00:10", 0, 10, false},
		{"23:59", 23, 59, false},
		{" 01:10 ", 1, 10, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"1210", 0, 0, true},
		{"ab:cd", 0, 0, true},
	}
	for _, tc := range cases {
		h, m, err := parseOpening(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseOpening(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && (h != tc.hour || m != tc.minute) {
			t.Errorf("parseOpening(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.hour, tc.minute)
		}
	}
}

func TestNextOpening(t *testing.T) {
	loc := time.UTC
	openings := []string{"00:10", "01:10", "02:10", "03:10"}

	t.Run("picks the earliest future opening today", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 0, 30, 0, 0, loc)
		got, err := nextOpening(now, openings)
		if err != nil {
			t.Fatal(err)
		}
		want := time.Date(2025, 6, 1, 1, 10, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("nextOpening = %s, want %s", got, want)
		}
	})

	t.Run("rolls over to tomorrow after the last opening", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 22, 0, 0, 0, loc)
		got, err := nextOpening(now, openings)
		if err != nil {
			t.Fatal(err)
		}
		want := time.Date(2025, 6, 2, 0, 10, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("nextOpening = %s, want %s", got, want)
		}
	})

	t.Run("unordered schedule still yields the earliest", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 0, 0, 0, 0, loc)
		got, err := nextOpening(now, []string{"03:10", "00:10", "01:10"})
		if err != nil {
			t.Fatal(err)
		}
		want := time.Date(2025, 6, 1, 0, 10, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("nextOpening = %s, want %s", got, want)
		}
	})

	t.Run("empty schedule is an error", func(t *testing.T) {
		if _, err := nextOpening(time.Now(), nil); err == nil {
			t.Error("nextOpening with no entries returned no error")
		}
	})

	t.Run("malformed entry is an error", func(t *testing.T) {
		if _, err := nextOpening(time.Now(), []string{"25:99"}); err == nil {
			t.Error("nextOpening with a malformed entry returned no error")
		}
	})
}
