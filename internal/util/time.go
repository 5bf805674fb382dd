package util

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const marketTimezone = "America/New_York"

func marketLocation() *time.Location {
	loc, err := time.LoadLocation(marketTimezone)
	if err != nil {
		log.Errorf("Failed to load location '%s': %v. Falling back to UTC.", marketTimezone, err)
		return time.UTC
	}
	return loc
}

// CalendarDate returns the calendar date of t as seen in loc, at UTC midnight.
// A nil loc uses t's own location.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MarketToday returns today's calendar date in New York, at UTC midnight.
func MarketToday(now time.Time) time.Time {
	return CalendarDate(now, marketLocation())
}

// NextMarketDate predicts the date of the next stock market update.
// It handles timezone conversion, business day logic.
// It returns the next valid market date (a weekday) at 4:30 PM New York time, in UTC.
func NextMarketDate(input time.Time) time.Time {
	loc := marketLocation()
	nowET := input.In(loc)

	// Start with today at 4:30 PM ET
	next := time.Date(nowET.Year(), nowET.Month(), nowET.Day(), 16, 30, 0, 0, loc)

	// If it's already past 4:30 PM, move to the next day
	if nowET.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends to find the next business day
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next.UTC()
}
