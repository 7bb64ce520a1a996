package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"pos-analytics/internal/database"
)

func revenueSeries(start time.Time, revenues []float64) []database.DailyRevenue {
	out := make([]database.DailyRevenue, len(revenues))
	for i, rev := range revenues {
		out[i] = database.DailyRevenue{Date: start.AddDate(0, 0, i), Revenue: rev}
	}
	return out
}

// TestBuildForecastInsufficientHistory verifies short series are rejected.
func TestBuildForecastInsufficientHistory(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	series := revenueSeries(start, make([]float64, 13))

	_, err := BuildForecast(series, 14, 2.0, 0)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
}

// TestBuildForecastConfiguredMinimum verifies the configured minimum wins
// over the built-in floor.
func TestBuildForecastConfiguredMinimum(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	series := revenueSeries(start, make([]float64, 15))

	if _, err := BuildForecast(series, 14, 2.0, 20); !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("15 days against a minimum of 20 should be rejected, got %v", err)
	}
	if _, err := BuildForecast(series, 14, 2.0, 10); err != nil {
		t.Errorf("15 days against a minimum of 10 should fit, got %v", err)
	}
}

// TestBuildForecastIncreasingTrend verifies a steadily growing series is
// labeled increasing and projected upward.
func TestBuildForecastIncreasingTrend(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	revenues := make([]float64, 30)
	for i := range revenues {
		revenues[i] = 100 + float64(i)*10
	}

	result, err := BuildForecast(revenueSeries(start, revenues), 14, 2.0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Trend != TrendIncreasing {
		t.Errorf("trend = %s, want increasing (trend pct %.2f)", result.Trend, result.TrendPercentage)
	}
	if len(result.Forecast) != 14 {
		t.Fatalf("forecast length = %d, want 14", len(result.Forecast))
	}

	// A perfect line projects exactly: day 31 of the 100+10i series.
	first := result.Forecast[0]
	if math.Abs(first.PredictedRevenue-400) > 0.01 {
		t.Errorf("first projected revenue = %.2f, want 400.00", first.PredictedRevenue)
	}
	if !first.Date.Equal(start.AddDate(0, 0, 30)) {
		t.Errorf("first forecast date = %v, want %v", first.Date, start.AddDate(0, 0, 30))
	}
	for _, p := range result.Forecast {
		if p.LowerBound > p.PredictedRevenue || p.UpperBound < p.PredictedRevenue {
			t.Errorf("confidence band inverted at %v: [%.2f %.2f] around %.2f",
				p.Date, p.LowerBound, p.UpperBound, p.PredictedRevenue)
		}
	}
}

// TestBuildForecastStableTrend verifies noise below the threshold is not
// flagged as a trend.
func TestBuildForecastStableTrend(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	revenues := make([]float64, 30)
	for i := range revenues {
		revenues[i] = 500
		if i%2 == 0 {
			revenues[i] = 505
		}
	}

	result, err := BuildForecast(revenueSeries(start, revenues), 14, 2.0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Trend != TrendStable {
		t.Errorf("trend = %s, want stable (trend pct %.2f)", result.Trend, result.TrendPercentage)
	}
}

// TestBuildForecastDecreasingTrend verifies a falling series is labeled
// decreasing and predictions never go negative.
func TestBuildForecastDecreasingTrend(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	revenues := make([]float64, 20)
	for i := range revenues {
		revenues[i] = 200 - float64(i)*10
	}

	result, err := BuildForecast(revenueSeries(start, revenues), 30, 2.0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Trend != TrendDecreasing {
		t.Errorf("trend = %s, want decreasing", result.Trend)
	}
	for _, p := range result.Forecast {
		if p.PredictedRevenue < 0 || p.LowerBound < 0 {
			t.Errorf("negative projection at %v: %.2f / %.2f", p.Date, p.PredictedRevenue, p.LowerBound)
		}
	}
}

// TestBuildForecastWeekdayPattern verifies the strongest and weakest
// weekdays are identified from the series.
func TestBuildForecastWeekdayPattern(t *testing.T) {
	// 2026-05-04 is a Monday. Four full weeks; Saturdays spike, Mondays sag.
	start := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	revenues := make([]float64, 28)
	for i := range revenues {
		switch start.AddDate(0, 0, i).Weekday() {
		case time.Saturday:
			revenues[i] = 900
		case time.Monday:
			revenues[i] = 100
		default:
			revenues[i] = 500
		}
	}

	result, err := BuildForecast(revenueSeries(start, revenues), 14, 2.0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := result.SeasonalPattern
	if len(p.BestDays) != 1 || p.BestDays[0] != "Saturday" {
		t.Errorf("best days = %v, want [Saturday]", p.BestDays)
	}
	if len(p.WorstDays) != 1 || p.WorstDays[0] != "Monday" {
		t.Errorf("worst days = %v, want [Monday]", p.WorstDays)
	}
}

// TestTrailingAverage verifies window clamping on short series.
func TestTrailingAverage(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	series := revenueSeries(start, []float64{10, 20, 30})

	if avg := trailingAverage(series, 2); avg != 25 {
		t.Errorf("trailing 2 = %.2f, want 25", avg)
	}
	if avg := trailingAverage(series, 30); avg != 20 {
		t.Errorf("trailing 30 over 3 days = %.2f, want 20", avg)
	}
	if avg := trailingAverage(nil, 7); avg != 0 {
		t.Errorf("trailing over empty = %.2f, want 0", avg)
	}
}
