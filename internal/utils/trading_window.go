package utils

import (
	"fmt"
	"time"
)

// TradingWindow is the weekday session during which the monitor runs.
// Start and End are offsets from local midnight; both bounds are inclusive.
type TradingWindow struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// NewTradingWindow builds a window from "HH:MM:SS" strings.
func NewTradingWindow(start, end string, loc *time.Location) (TradingWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TradingWindow{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TradingWindow{}, err
	}
	if e < s {
		return TradingWindow{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	if loc == nil {
		loc = time.Local
	}
	return TradingWindow{Start: s, End: e, Location: loc}, nil
}

// IsWeekday reports whether t falls Monday through Friday in the window's zone.
func (w TradingWindow) IsWeekday(t time.Time) bool {
	switch t.In(w.Location).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// InHours reports whether t's local time of day is within [Start, End].
func (w TradingWindow) InHours(t time.Time) bool {
	local := t.In(w.Location)
	offset := local.Sub(StartOfDay(local, w.Location))
	return offset >= w.Start && offset <= w.End
}

// Contains reports whether the monitor should run at t.
func (w TradingWindow) Contains(t time.Time) bool {
	return w.IsWeekday(t) && w.InHours(t)
}

func (w TradingWindow) String() string {
	return fmt.Sprintf("Mon-Fri %s-%s %s", clock(w.Start), clock(w.End), w.Location)
}

func clock(d time.Duration) string {
	return time.Time{}.Add(d).Format(time.TimeOnly)
}
