package queue

import (
	"fmt"
	"time"

	"clinicq/queue-service/internal/store"
)

// Calendar maps instants to queue dates in the clinic's time zone. Queue dates
// are represented as midnight UTC of the local calendar date.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(name string) (Calendar, error) {
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, fmt.Errorf("load clinic timezone %q: %w", name, err)
	}
	return Calendar{loc: loc}, nil
}

func (c Calendar) location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c Calendar) Day(t time.Time) time.Time {
	y, m, d := t.In(c.location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD queue date.
func (c Calendar) ParseDay(value string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, store.ErrInvalidDate
	}
	return day, nil
}
