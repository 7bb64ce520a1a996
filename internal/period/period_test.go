package period

import (
	"errors"
	"testing"
	"time"
)

func TestFromPreset_Windows(t *testing.T) {
	loc := time.UTC
	// Wednesday 2025-06-18 14:30 UTC
	now := time.Date(2025, 6, 18, 14, 30, 0, 0, loc)

	testCases := []struct {
		preset    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{PresetToday, time.Date(2025, 6, 18, 0, 0, 0, 0, loc), time.Date(2025, 6, 19, 0, 0, 0, 0, loc)},
		{PresetYesterday, time.Date(2025, 6, 17, 0, 0, 0, 0, loc), time.Date(2025, 6, 18, 0, 0, 0, 0, loc)},
		{PresetThisWeek, time.Date(2025, 6, 16, 0, 0, 0, 0, loc), time.Date(2025, 6, 23, 0, 0, 0, 0, loc)},
		{PresetLastWeek, time.Date(2025, 6, 9, 0, 0, 0, 0, loc), time.Date(2025, 6, 16, 0, 0, 0, 0, loc)},
		{PresetThisMonth, time.Date(2025, 6, 1, 0, 0, 0, 0, loc), time.Date(2025, 7, 1, 0, 0, 0, 0, loc)},
		{PresetLastMonth, time.Date(2025, 5, 1, 0, 0, 0, 0, loc), time.Date(2025, 6, 1, 0, 0, 0, 0, loc)},
		{PresetThisYear, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), time.Date(2026, 1, 1, 0, 0, 0, 0, loc)},
	}

	for _, tc := range testCases {
		t.Run(tc.preset, func(t *testing.T) {
			p, err := FromPreset("biz-1", tc.preset, now, loc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !p.Start.Equal(tc.wantStart) {
				t.Errorf("start: got %v, want %v", p.Start, tc.wantStart)
			}
			if !p.End.Equal(tc.wantEnd) {
				t.Errorf("end: got %v, want %v", p.End, tc.wantEnd)
			}
		})
	}
}

func TestFromPreset_UnknownPreset(t *testing.T) {
	_, err := FromPreset("biz-1", "fortnight", time.Now(), time.UTC)
	if err == nil {
		t.Fatal("expected error for unknown preset")
	}
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name    string
		p       ReportingPeriod
		wantErr bool
	}{
		{"valid", ReportingPeriod{BusinessID: "b", Start: now, End: now.Add(time.Hour)}, false},
		{"missing business", ReportingPeriod{Start: now, End: now.Add(time.Hour)}, true},
		{"inverted", ReportingPeriod{BusinessID: "b", Start: now.Add(time.Hour), End: now}, true},
		{"empty interval", ReportingPeriod{BusinessID: "b", Start: now, End: now}, true},
		{"zero times", ReportingPeriod{BusinessID: "b"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPeriod) {
				t.Errorf("expected ErrInvalidPeriod, got %v", err)
			}
		})
	}
}

func TestContains_HalfOpen(t *testing.T) {
	loc := time.UTC
	p := ForDate("b", time.Date(2025, 3, 10, 12, 0, 0, 0, loc), loc)

	if !p.Contains(p.Start) {
		t.Error("start must be inside the interval")
	}
	if p.Contains(p.End) {
		t.Error("end must be outside the interval (half-open)")
	}
	if !p.Contains(p.End.Add(-time.Nanosecond)) {
		t.Error("instant before end must be inside")
	}
}

func TestDays(t *testing.T) {
	loc := time.UTC
	day := ForDate("b", time.Date(2025, 3, 10, 0, 0, 0, 0, loc), loc)
	if got := day.Days(); got != 1 {
		t.Errorf("single day period: got %d days", got)
	}

	week, _ := FromRange("b", day.Start, day.Start.AddDate(0, 0, 7))
	if got := week.Days(); got != 7 {
		t.Errorf("week period: got %d days", got)
	}
}
