package analytics

import (
	"errors"
	"math"
	"sort"
	"time"

	"pos-analytics/internal/database"
	"pos-analytics/internal/money"
)

// Trend classifications.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// DefaultForecastHorizonDays is how far the fitted line is projected.
const DefaultForecastHorizonDays = 14

// minForecastDays is the floor applied when no minimum is configured.
const minForecastDays = 14

// ErrInsufficientHistory signals too little revenue history to forecast.
var ErrInsufficientHistory = errors.New("insufficient revenue history for forecast")

// ForecastPoint is one projected day with its confidence band.
type ForecastPoint struct {
	Date             time.Time `json:"date"`
	PredictedRevenue float64   `json:"predicted_revenue"`
	LowerBound       float64   `json:"lower_bound"`
	UpperBound       float64   `json:"upper_bound"`
}

// HistoricalPoint is one observed day of revenue.
type HistoricalPoint struct {
	Date    time.Time `json:"date"`
	Revenue float64   `json:"revenue"`
}

// SeasonalPattern names the strongest and weakest weekdays.
type SeasonalPattern struct {
	BestDays   []string           `json:"best_days"`
	WorstDays  []string           `json:"worst_days"`
	WeekdayAvg map[string]float64 `json:"weekday_avg"`
}

// ForecastResult is the full output of the demand forecaster. It is purely
// derived from the historical series and safe to cache.
type ForecastResult struct {
	Historical         []HistoricalPoint `json:"historical"`
	Forecast           []ForecastPoint   `json:"forecast"`
	MovingAverage7Day  float64           `json:"moving_average_7_day"`
	MovingAverage30Day float64           `json:"moving_average_30_day"`
	Trend              string            `json:"trend"`
	TrendPercentage    float64           `json:"trend_percentage"`
	SeasonalPattern    SeasonalPattern   `json:"seasonal_pattern"`
}

// BuildForecast fits an ordinary-least-squares line over the daily revenue
// series and projects it horizonDays forward. The trend label applies a
// threshold (percent of mean daily revenue per day) so noise is not
// flagged as a trend, and the confidence band is one standard deviation of
// the fit residuals.
// minDays is the shortest history accepted; zero or below falls back to
// the built-in floor.
func BuildForecast(series []database.DailyRevenue, horizonDays int, trendThresholdPct float64, minDays int) (*ForecastResult, error) {
	if minDays <= 0 {
		minDays = minForecastDays
	}
	if len(series) < minDays {
		return nil, ErrInsufficientHistory
	}
	if horizonDays <= 0 {
		horizonDays = DefaultForecastHorizonDays
	}

	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX float64
	for i, d := range series {
		x := float64(i)
		sumX += x
		sumY += d.Revenue
		sumXY += x * d.Revenue
		sumXX += x * x
	}

	mean := sumY / n
	denom := n*sumXX - sumX*sumX
	var slope, intercept float64
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / n
	} else {
		intercept = mean
	}

	// Residual standard deviation around the fitted line.
	var ssr float64
	for i, d := range series {
		resid := d.Revenue - (intercept + slope*float64(i))
		ssr += resid * resid
	}
	sigma := math.Sqrt(ssr / n)

	var trendPct float64
	if mean != 0 {
		trendPct = slope / mean * 100
	}
	trend := TrendStable
	switch {
	case trendPct > trendThresholdPct:
		trend = TrendIncreasing
	case trendPct < -trendThresholdPct:
		trend = TrendDecreasing
	}

	lastDate := series[len(series)-1].Date
	forecast := make([]ForecastPoint, 0, horizonDays)
	for d := 1; d <= horizonDays; d++ {
		x := float64(len(series) - 1 + d)
		predicted := intercept + slope*x
		if predicted < 0 {
			predicted = 0
		}
		lower := predicted - sigma
		if lower < 0 {
			lower = 0
		}
		forecast = append(forecast, ForecastPoint{
			Date:             lastDate.AddDate(0, 0, d),
			PredictedRevenue: money.Round2(predicted),
			LowerBound:       money.Round2(lower),
			UpperBound:       money.Round2(predicted + sigma),
		})
	}

	historical := make([]HistoricalPoint, len(series))
	for i, d := range series {
		historical[i] = HistoricalPoint{Date: d.Date, Revenue: money.Round2(d.Revenue)}
	}

	return &ForecastResult{
		Historical:         historical,
		Forecast:           forecast,
		MovingAverage7Day:  money.Round2(trailingAverage(series, 7)),
		MovingAverage30Day: money.Round2(trailingAverage(series, 30)),
		Trend:              trend,
		TrendPercentage:    money.Round2(trendPct),
		SeasonalPattern:    weekdayPattern(series),
	}, nil
}

// trailingAverage averages the last window days, or the whole series when
// it is shorter than the window.
func trailingAverage(series []database.DailyRevenue, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	if window > len(series) {
		window = len(series)
	}
	var sum float64
	for _, d := range series[len(series)-window:] {
		sum += d.Revenue
	}
	return sum / float64(window)
}

// weekdayPattern averages revenue per weekday and names the strongest and
// weakest days. Ties include every tied weekday.
func weekdayPattern(series []database.DailyRevenue) SeasonalPattern {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, d := range series {
		day := d.Date.Weekday().String()
		sums[day] += d.Revenue
		counts[day]++
	}

	avg := make(map[string]float64, len(sums))
	best, worst := math.Inf(-1), math.Inf(1)
	for day, sum := range sums {
		a := money.Round2(sum / float64(counts[day]))
		avg[day] = a
		if a > best {
			best = a
		}
		if a < worst {
			worst = a
		}
	}

	var bestDays, worstDays []string
	for day, a := range avg {
		if a == best {
			bestDays = append(bestDays, day)
		}
		if a == worst {
			worstDays = append(worstDays, day)
		}
	}
	sort.Strings(bestDays)
	sort.Strings(worstDays)

	return SeasonalPattern{BestDays: bestDays, WorstDays: worstDays, WeekdayAvg: avg}
}
