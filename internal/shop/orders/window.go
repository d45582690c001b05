package orders

import (
	"errors"
	"fmt"
	"time"
)

// DefaultZone is the business day used when none is configured (UTC+7).
var DefaultZone = time.FixedZone("UTC+7", 7*60*60)

// ErrInvalidWindow is returned for a window whose end is not after its start.
var ErrInvalidWindow = errors.New("orders: window end must be after start")

// Window is a half-open creation time range [Ge, Lt) in unix seconds.
type Window struct {
	Ge int64
	Lt int64
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts int64) bool {
	return ts >= w.Ge && ts < w.Lt
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d)", w.Ge, w.Lt)
}

// Range builds a window from explicit bounds.
func Range(ge, lt int64) (Window, error) {
	if lt <= ge {
		return Window{}, fmt.Errorf("%w: ge=%d lt=%d", ErrInvalidWindow, ge, lt)
	}
	return Window{Ge: ge, Lt: lt}, nil
}

// Today covers local midnight to the next midnight in loc.
func Today(now time.Time, loc *time.Location) Window {
	start := startOfDay(now, loc)
	return Window{Ge: start.Unix(), Lt: start.AddDate(0, 0, 1).Unix()}
}

// LastDays covers the n days before today plus all of today, ending at
// tomorrow's midnight in loc.
func LastDays(now time.Time, loc *time.Location, n int) Window {
	start := startOfDay(now, loc)
	return Window{Ge: start.AddDate(0, 0, -n).Unix(), Lt: start.AddDate(0, 0, 1).Unix()}
}

func startOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultZone
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
