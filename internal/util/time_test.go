package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextMarketDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("should have loaded timezone America/New_York: %v", err)
	}

	testCases := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "Weekday before 4:30 PM",
			input:    time.Date(2024, 7, 23, 10, 0, 0, 0, ny), // Tuesday 10:00 AM
			expected: time.Date(2024, 7, 23, 16, 30, 0, 0, ny),
		},
		{
			name:     "Weekday after 4:30 PM",
			input:    time.Date(2024, 7, 23, 17, 0, 0, 0, ny), // Tuesday 5:00 PM
			expected: time.Date(2024, 7, 24, 16, 30, 0, 0, ny),
		},
		{
			name:     "Friday after 4:30 PM",
			input:    time.Date(2024, 7, 26, 18, 0, 0, 0, ny),  // Friday 6:00 PM
			expected: time.Date(2024, 7, 29, 16, 30, 0, 0, ny), // Monday 4:30 PM
		},
		{
			name:     "Sunday",
			input:    time.Date(2024, 7, 28, 12, 0, 0, 0, ny),
			expected: time.Date(2024, 7, 29, 16, 30, 0, 0, ny),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := NextMarketDate(tc.input)
			assert.Equal(t, tc.expected.UTC(), actual)
		})
	}
}

func TestCalendarDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("should have loaded timezone America/New_York: %v", err)
	}

	// 02:30 UTC on the 5th is still the 4th in New York
	ts := time.Date(2024, 3, 5, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), CalendarDate(ts, ny))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), CalendarDate(ts, nil))
}

func TestMarketToday(t *testing.T) {
	now := time.Date(2024, 7, 23, 3, 0, 0, 0, time.UTC) // 11 PM on the 22nd in New York
	assert.Equal(t, time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC), MarketToday(now))
}
