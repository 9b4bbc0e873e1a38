package clock

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultTimezone is used when no timezone is configured.
	DefaultTimezone = "UTC"
	// DateLayout formats the logical day bucket attendance is grouped by.
	DateLayout = "2006-01-02"
	// TimeLayout formats the time stamped into attendance cells.
	TimeLayout = "15:04"
)

// Clock reports wall time in the gym's configured timezone.
type Clock struct {
	location *time.Location
	now      func() time.Time
}

// New resolves the timezone and returns a clock. A nil now defaults to time.Now.
func New(timezone string, now func() time.Time) (*Clock, error) {
	name := strings.TrimSpace(timezone)
	if name == "" {
		name = DefaultTimezone
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("clock: invalid timezone %q: %w", name, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{location: location, now: now}, nil
}

// Location exposes the configured timezone.
func (c *Clock) Location() *time.Location {
	return c.location
}

// Now returns the current instant in the configured timezone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.location)
}

// Today returns the local calendar date, e.g. "2024-03-01".
func (c *Clock) Today() string {
	return c.Now().Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD date string.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: invalid date %q: %w", value, err)
	}
	return parsed, nil
}
