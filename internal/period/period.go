// Package period defines the reporting window every aggregation query is
// scoped by: one business, one half-open [start, end) interval.
package period

import (
	"errors"
	"fmt"
	"time"
)

// Named presets accepted by the HTTP layer.
const (
	PresetToday     = "today"
	PresetYesterday = "yesterday"
	PresetThisWeek  = "this_week"
	PresetLastWeek  = "last_week"
	PresetThisMonth = "this_month"
	PresetLastMonth = "last_month"
	PresetThisYear  = "this_year"
)

// ErrInvalidPeriod is the sentinel for any period validation failure.
var ErrInvalidPeriod = errors.New("invalid reporting period")

// ValidationError describes a rejected period or parameter set. It is
// detected before any query runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidPeriod }

// ReportingPeriod is a half-open interval [Start, End) for one business.
type ReportingPeriod struct {
	BusinessID string    `json:"business_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Validate rejects empty tenants and inverted or empty intervals.
func (p ReportingPeriod) Validate() error {
	if p.BusinessID == "" {
		return ValidationError{Field: "businessId", Message: "business id is required"}
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return ValidationError{Field: "period", Message: "start and end are required"}
	}
	if !p.Start.Before(p.End) {
		return ValidationError{Field: "period", Message: "start must be before end"}
	}
	return nil
}

// Contains reports whether ts falls inside the half-open interval.
func (p ReportingPeriod) Contains(ts time.Time) bool {
	return !ts.Before(p.Start) && ts.Before(p.End)
}

// Days returns the number of whole calendar days covered, minimum 1.
func (p ReportingPeriod) Days() int {
	d := int(p.End.Sub(p.Start).Hours() / 24)
	if d < 1 {
		return 1
	}
	return d
}

// FromPreset resolves a named preset relative to now in the given location.
func FromPreset(businessID, preset string, now time.Time, loc *time.Location) (ReportingPeriod, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var start, end time.Time
	switch preset {
	case PresetToday:
		start, end = midnight, midnight.AddDate(0, 0, 1)
	case PresetYesterday:
		start, end = midnight.AddDate(0, 0, -1), midnight
	case PresetThisWeek:
		start = startOfWeek(midnight)
		end = start.AddDate(0, 0, 7)
	case PresetLastWeek:
		end = startOfWeek(midnight)
		start = end.AddDate(0, 0, -7)
	case PresetThisMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case PresetLastMonth:
		end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		start = end.AddDate(0, -1, 0)
	case PresetThisYear:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	default:
		return ReportingPeriod{}, ValidationError{Field: "period", Message: fmt.Sprintf("unknown preset %q", preset)}
	}

	p := ReportingPeriod{BusinessID: businessID, Start: start, End: end}
	return p, p.Validate()
}

// ForDate returns the single business-day window containing date in loc.
func ForDate(businessID string, date time.Time, loc *time.Location) ReportingPeriod {
	if loc == nil {
		loc = time.UTC
	}
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return ReportingPeriod{BusinessID: businessID, Start: start, End: start.AddDate(0, 0, 1)}
}

// FromRange builds an explicit period from parsed timestamps.
func FromRange(businessID string, start, end time.Time) (ReportingPeriod, error) {
	p := ReportingPeriod{BusinessID: businessID, Start: start, End: end}
	return p, p.Validate()
}

// startOfWeek returns the Monday midnight at or before d.
func startOfWeek(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
