// Package timeutil converts the tracker's epoch-seconds timestamps
// into display dates and times.
package timeutil

import (
	"math"
	"time"
)

const (
	// DateLayout is the display date format.
	DateLayout = "2006-01-02"
	// TimeLayout is the display time-of-day format. Trailing
	// fractional zeroes are trimmed on output.
	TimeLayout = "15:04:05.999999"
)

// FromSeconds converts epoch seconds (float, sub-second precision)
// to a UTC time.Time.
func FromSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// Seconds converts a time.Time back to epoch seconds.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// DateOf formats the date component of an epoch-seconds timestamp.
func DateOf(ts float64) string {
	return FromSeconds(ts).Format(DateLayout)
}

// TimeOf formats the time-of-day component of an epoch-seconds
// timestamp, keeping sub-second precision when present.
func TimeOf(ts float64) string {
	return FromSeconds(ts).Format(TimeLayout)
}

// Recombine parses a DateOf/TimeOf pair back into epoch seconds.
// The result is approximate to the formatted resolution.
func Recombine(date, tod string) (float64, error) {
	t, err := time.Parse(DateLayout+" "+TimeLayout, date+" "+tod)
	if err != nil {
		return 0, err
	}
	return Seconds(t), nil
}
