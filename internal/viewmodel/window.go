package viewmodel

import (
	"fmt"
	"strings"
	"time"
)

// Window selects how far back the signal feed reaches.
type Window string

const (
	WindowToday     Window = "today"
	WindowLast7Days Window = "last_7_days"
	WindowAllTime   Window = "all_time"
)

// ParseWindow accepts the canonical names plus a few short aliases. Blank
// means all time.
func ParseWindow(value string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "all", "all_time", "alltime":
		return WindowAllTime, nil
	case "today":
		return WindowToday, nil
	case "7d", "week", "last_7_days", "last7days":
		return WindowLast7Days, nil
	default:
		return "", fmt.Errorf("unknown window %q", value)
	}
}

// Since returns the inclusive lower bound for the window, or nil for all time.
// Today starts at local midnight of now.
func (w Window) Since(now time.Time) *time.Time {
	switch w {
	case WindowToday:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &start
	case WindowLast7Days:
		start := now.AddDate(0, 0, -7)
		return &start
	default:
		return nil
	}
}
