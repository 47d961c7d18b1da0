package experiment

import (
	"fmt"
	"math"
	"time"
)

// TimeRange is a named reporting window.
type TimeRange string

// Supported windows.
const (
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
	RangeAll TimeRange = "all"
)

// DefaultRange is used when a caller does not pick a window.
const DefaultRange = Range7d

const day = 24 * time.Hour

// ParseTimeRange accepts one of the supported window names. An empty string
// yields DefaultRange.
func ParseTimeRange(s string) (TimeRange, error) {
	switch r := TimeRange(s); r {
	case "":
		return DefaultRange, nil
	case Range24h, Range7d, Range30d, RangeAll:
		return r, nil
	}
	return "", fmt.Errorf("unknown time range %q (want 24h, 7d, 30d or all)", s)
}

// maxAgeDays is the largest whole-day age kept by the window, or -1 for no
// bound.
func (r TimeRange) maxAgeDays() int {
	switch r {
	case Range24h:
		return 0
	case Range7d:
		return 7
	case Range30d:
		return 30
	}
	return -1
}

// Contains reports whether an event stamped ts falls in the window as seen
// at now. Age is counted in whole elapsed days, floored, so "7d" keeps
// events up to just under eight days old. A future stamp has a negative age:
// "7d" and "30d" keep it, "24h" only keeps age zero and drops it.
func (r TimeRange) Contains(ts, now time.Time) bool {
	limit := r.maxAgeDays()
	if limit < 0 {
		return true
	}
	days := int(math.Floor(float64(now.Sub(ts)) / float64(day)))
	if r == Range24h {
		return days == 0
	}
	return days <= limit
}

// Since is the earliest timestamp the window can contain at now, for
// narrowing store queries. The zero time means unbounded.
func (r TimeRange) Since(now time.Time) time.Time {
	limit := r.maxAgeDays()
	if limit < 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(limit+1) * day)
}

// Window is a TimeRange anchored at a reference time.
type Window struct {
	Range TimeRange
	Now   time.Time
}

// Contains reports whether ts falls inside w.
func (w Window) Contains(ts time.Time) bool {
	return w.Range.Contains(ts, w.Now)
}
