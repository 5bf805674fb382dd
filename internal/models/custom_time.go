package models

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the only date format written to the API and the store
const DateLayout = "2006-01-02"

// Date is a calendar date that marshals as "YYYY-MM-DD" and unmarshals both
// RFC3339 and "YYYY-MM-DD" formats
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date (in t's own location) at UTC midnight.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}

	// Try parsing as RFC3339 full timestamp first
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		*d = NewDate(t)
		return nil
	}

	t, err = time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

// String returns the date as YYYY-MM-DD
func (d Date) String() string {
	return d.Format(DateLayout)
}
