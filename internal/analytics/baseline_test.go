package analytics

import (
	"testing"
	"time"
)

// TestBuildBaseline verifies the trailing comparisons on a simple series.
func TestBuildBaseline(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	trailing := revenueSeries(start, []float64{100, 100, 100, 100, 100, 100, 200})

	b := BuildBaseline(250, trailing)

	if b.PreviousDay != 200 {
		t.Errorf("previous day = %.2f, want 200", b.PreviousDay)
	}
	if b.PreviousDayPct != 25 {
		t.Errorf("previous day pct = %.2f, want 25", b.PreviousDayPct)
	}
	// Trailing 7: (6*100 + 200) / 7.
	if b.SevenDayAvg != 114.29 {
		t.Errorf("seven day avg = %.2f, want 114.29", b.SevenDayAvg)
	}
}

// TestBuildBaselineZeroBaseline verifies percent changes against a zero
// baseline report zero instead of dividing by zero.
func TestBuildBaselineZeroBaseline(t *testing.T) {
	b := BuildBaseline(500, nil)

	if b.PreviousDay != 0 || b.SevenDayAvg != 0 || b.ThirtyDayAvg != 0 {
		t.Errorf("empty trailing should zero the baselines: %+v", b)
	}
	if b.PreviousDayPct != 0 || b.SevenDayAvgPct != 0 || b.ThirtyDayAvgPct != 0 {
		t.Errorf("zero baselines should yield zero pct change: %+v", b)
	}
}
