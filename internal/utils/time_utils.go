package utils

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DefaultMarketTimezone is where NSE sessions and calendar days are measured.
const DefaultMarketTimezone = "Asia/Kolkata"

// LoadLocation resolves a time zone name. An empty name means the default
// market time zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultMarketTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns 00:00:00 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// LookbackRange returns the half-open interval [from, to) covering the
// calendar days today-days through today, inclusive, in loc.
func LookbackRange(now time.Time, days int, loc *time.Location) (from, to time.Time) {
	today := StartOfDay(now, loc)
	return today.AddDate(0, 0, -days), today.AddDate(0, 0, 1)
}

// ParseClock parses "HH:MM:SS" or "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	for _, layout := range []string{time.TimeOnly, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q (want HH:MM:SS)", s)
}
