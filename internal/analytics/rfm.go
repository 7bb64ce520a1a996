package analytics

import (
	"sort"
	"time"

	"pos-analytics/internal/database"
	"pos-analytics/internal/money"
)

// RFM segment names. The rule table below is priority ordered: the first
// matching rule wins, and the final catch-all makes the mapping total over
// every (r,f,m) triple.
const (
	SegmentChampions          = "Champions"
	SegmentLoyalCustomers     = "Loyal Customers"
	SegmentAtRisk             = "At Risk"
	SegmentNewCustomers       = "New Customers"
	SegmentPotentialLoyalists = "Potential Loyalists"
	SegmentLost               = "Lost"
	SegmentHibernating        = "Hibernating"
	SegmentBigSpenders        = "Big Spenders"
	SegmentPromising          = "Promising"
	SegmentNeedAttention      = "Need Attention"
)

// RFMRecord is one customer's scores and segment.
type RFMRecord struct {
	CustomerID string  `json:"customer_id"`
	Name       string  `json:"name"`
	Recency    int     `json:"recency"`
	Frequency  int     `json:"frequency"`
	Monetary   float64 `json:"monetary"`
	RScore     int     `json:"r_score"`
	FScore     int     `json:"f_score"`
	MScore     int     `json:"m_score"`
	Segment    string  `json:"segment"`
}

// RFMSummary is the per-segment rollup returned alongside records.
type RFMSummary struct {
	Segment       string  `json:"segment"`
	CustomerCount int     `json:"customer_count"`
	TotalSpend    float64 `json:"total_spend"`
}

type rfmRule struct {
	segment string
	match   func(r, f, m int) bool
}

// Priority-ordered segment rules. Order matters: Lost must beat Big
// Spenders for an r=1,f=1 high spender, and Champions must beat every
// weaker rule its triple also satisfies.
var rfmRules = []rfmRule{
	{SegmentChampions, func(r, f, m int) bool { return r >= 4 && f >= 4 && m >= 4 }},
	{SegmentLoyalCustomers, func(r, f, m int) bool { return r >= 3 && f >= 4 }},
	{SegmentAtRisk, func(r, f, m int) bool { return r <= 2 && f >= 4 }},
	{SegmentNewCustomers, func(r, f, m int) bool { return r == 5 && f == 1 }},
	{SegmentPotentialLoyalists, func(r, f, m int) bool { return r >= 4 && f >= 2 && f <= 3 }},
	{SegmentLost, func(r, f, m int) bool { return r == 1 && f == 1 }},
	{SegmentHibernating, func(r, f, m int) bool { return r <= 2 && f <= 2 }},
	{SegmentBigSpenders, func(r, f, m int) bool { return m >= 4 }},
	{SegmentPromising, func(r, f, m int) bool { return r >= 3 && f == 1 }},
}

// SegmentFor maps an (r,f,m) triple to its segment. Pure and total: the
// same triple always yields the same segment.
func SegmentFor(r, f, m int) string {
	for _, rule := range rfmRules {
		if rule.match(r, f, m) {
			return rule.segment
		}
	}
	return SegmentNeedAttention
}

// ScoreRFM converts raw customer activity into scored, segmented records.
// Quintile boundaries are recomputed from the current population on every
// call; they are never fixed constants, because the population shape
// drifts over time. Recency scores inversely: the most recent purchasers
// get 5.
func ScoreRFM(rows []database.CustomerActivity, asOf time.Time) []RFMRecord {
	if len(rows) == 0 {
		return []RFMRecord{}
	}

	recencies := make([]float64, len(rows))
	frequencies := make([]float64, len(rows))
	monetaries := make([]float64, len(rows))
	for i, row := range rows {
		recencies[i] = asOf.Sub(row.LastPurchase).Hours() / 24
		if recencies[i] < 0 {
			recencies[i] = 0
		}
		frequencies[i] = float64(row.OrderCount)
		monetaries[i] = row.TotalSpend
	}

	rScorer := newQuintileScorer(recencies, true)
	fScorer := newQuintileScorer(frequencies, false)
	mScorer := newQuintileScorer(monetaries, false)

	out := make([]RFMRecord, len(rows))
	for i, row := range rows {
		r := rScorer.score(recencies[i])
		f := fScorer.score(frequencies[i])
		m := mScorer.score(monetaries[i])
		out[i] = RFMRecord{
			CustomerID: row.CustomerID,
			Name:       row.Name,
			Recency:    int(recencies[i]),
			Frequency:  row.OrderCount,
			Monetary:   money.Round2(row.TotalSpend),
			RScore:     r,
			FScore:     f,
			MScore:     m,
			Segment:    SegmentFor(r, f, m),
		}
	}
	return out
}

// SummarizeRFM rolls scored records up by segment, largest spend first.
func SummarizeRFM(records []RFMRecord) []RFMSummary {
	bySegment := make(map[string]*RFMSummary)
	for _, rec := range records {
		s, ok := bySegment[rec.Segment]
		if !ok {
			s = &RFMSummary{Segment: rec.Segment}
			bySegment[rec.Segment] = s
		}
		s.CustomerCount++
		s.TotalSpend += rec.Monetary
	}

	out := make([]RFMSummary, 0, len(bySegment))
	for _, s := range bySegment {
		s.TotalSpend = money.Round2(s.TotalSpend)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSpend != out[j].TotalSpend {
			return out[i].TotalSpend > out[j].TotalSpend
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}

// quintileScorer maps a value to a 1..5 score by its rank in the observed
// population. Equal values always get equal scores.
type quintileScorer struct {
	sorted  []float64
	inverse bool
}

func newQuintileScorer(values []float64, inverse bool) *quintileScorer {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return &quintileScorer{sorted: sorted, inverse: inverse}
}

func (q *quintileScorer) score(v float64) int {
	n := len(q.sorted)
	if n == 0 {
		return 1
	}
	// Inclusive percentile rank: for normal metrics, the share of the
	// population at or below v; for inverse metrics (recency), the share
	// at or above it, so the smallest value ranks highest.
	var rank int
	if q.inverse {
		rank = n - sort.SearchFloat64s(q.sorted, v-1e-9)
	} else {
		rank = sort.SearchFloat64s(q.sorted, v+1e-9)
	}
	s := (rank*5 + n - 1) / n
	if s < 1 {
		s = 1
	}
	if s > 5 {
		s = 5
	}
	return s
}
