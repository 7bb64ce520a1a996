package analytics

import (
	"pos-analytics/internal/database"
	"pos-analytics/internal/money"
)

// Baseline contextualizes one day's revenue against its trailing history.
type Baseline struct {
	Revenue          float64 `json:"revenue"`
	PreviousDay      float64 `json:"previous_day"`
	PreviousDayPct   float64 `json:"previous_day_pct"`
	SevenDayAvg      float64 `json:"seven_day_avg"`
	SevenDayAvgPct   float64 `json:"seven_day_avg_pct"`
	ThirtyDayAvg     float64 `json:"thirty_day_avg"`
	ThirtyDayAvgPct  float64 `json:"thirty_day_avg_pct"`
}

// BuildBaseline compares revenue against the trailing series, which must
// be ordered oldest first and must not include the day being compared.
// Percent changes against a zero baseline report 0 rather than exploding.
func BuildBaseline(revenue float64, trailing []database.DailyRevenue) Baseline {
	b := Baseline{Revenue: money.Round2(revenue)}

	if len(trailing) > 0 {
		b.PreviousDay = money.Round2(trailing[len(trailing)-1].Revenue)
		b.SevenDayAvg = money.Round2(trailingAverage(trailing, 7))
		b.ThirtyDayAvg = money.Round2(trailingAverage(trailing, 30))
	}

	b.PreviousDayPct = changePct(revenue, b.PreviousDay)
	b.SevenDayAvgPct = changePct(revenue, b.SevenDayAvg)
	b.ThirtyDayAvgPct = changePct(revenue, b.ThirtyDayAvg)
	return b
}

func changePct(current, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return money.Round2((current - baseline) / baseline * 100)
}
