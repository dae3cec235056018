package history

import (
	"fmt"
	"strconv"
	"time"
)

// Window is a "last N months" query scope, N in [1, 6]. A month is
// approximated as 30 days; that approximation is a documented
// policy of the history API, not an oversight.
type Window int

const (
	// MinWindow is the narrowest query scope, one month.
	MinWindow Window = 1
	// MaxWindow is the widest query scope, six months.
	MaxWindow Window = 6
)

// ParseWindow parses a month query parameter. The empty string
// means the default window of one month.
func ParseWindow(s string) (Window, error) {
	if s == "" {
		return MinWindow, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || Window(n) < MinWindow || Window(n) > MaxWindow {
		return 0, fmt.Errorf("month must be an integer between %d and %d", MinWindow, MaxWindow)
	}
	return Window(n), nil
}

// CutoffAt returns the window's inclusive lower bound as epoch
// seconds, relative to the given current time.
func (w Window) CutoffAt(now time.Time) float64 {
	cutoff := now.Add(-time.Duration(w) * 30 * 24 * time.Hour)
	return float64(cutoff.UnixNano()) / float64(time.Second)
}
