package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Wednesday, 2026-02-18 12:00:00 UTC
var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func TestParseDateFrom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		// exact
		{"2026-03-01", "2026-03-01"},
		{"01/03/2026", "2026-03-01"},
		{"5/4/2025", "2025-04-05"},
		// keywords
		{"today", "2026-02-18"},
		{"Yesterday", "2026-02-17"},
		// relative
		{"-0d", "2026-02-18"},
		{"-3d", "2026-02-15"},
		{"-18d", "2026-01-31"},
		{"-2w", "2026-02-04"},
		{"-1m", "2026-01-18"},
		// weekdays look back and never return today
		{"tuesday", "2026-02-17"},
		{"monday", "2026-02-16"},
		{"wednesday", "2026-02-11"},
		{"thursday", "2026-02-12"},
		{"last-friday", "2026-02-13"},
		{"  SATURDAY  ", "2026-02-14"},
	}
	for _, tt := range tests {
		got, err := ParseDateFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseDateFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDateFrom(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDate_MonthEndOverflow(t *testing.T) {
	// Go normalises 2026-02-31 to 2026-03-03.
	now := time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
	got, err := ParseDateFrom("-1m", now)
	if err != nil {
		t.Fatal(err)
	}
	if got != "2026-03-03" {
		t.Errorf("-1m from 2026-03-31 = %q", got)
	}
}

func TestParseDate_Errors(t *testing.T) {
	for _, input := range []string{"", "   ", "+3d", "-3y", "soon", "2026-13-01", "last-someday"} {
		if got, err := ParseDateFrom(input, testNow); err == nil {
			t.Errorf("ParseDateFrom(%q) = %q, want error", input, got)
		}
	}
}

func TestParseDate_UsesCurrentTime(t *testing.T) {
	got, err := ParseDate("today")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Now().Format("2006-01-02"); got != want {
		t.Errorf("ParseDate(today) = %q, want %q", got, want)
	}
}
