// Package analytics holds the stateless classification and forecasting
// engines: revenue-contribution (ABC) classification, RFM customer
// segmentation, demand forecasting, and inventory velocity analysis.
// Each engine is a pure computation over aggregated rows so it can be
// tested without a database.
package analytics

import (
	"sort"

	"pos-analytics/internal/database"
	"pos-analytics/internal/money"
)

// ABC classification tiers.
const (
	ClassA = "A"
	ClassB = "B"
	ClassC = "C"
)

// Cumulative revenue-share boundaries for the A and B tiers.
const (
	abcBoundaryA = 80.0
	abcBoundaryB = 95.0
)

// ABCRecord is one product's revenue-contribution classification.
type ABCRecord struct {
	ProductID                string  `json:"product_id"`
	SKU                      string  `json:"sku"`
	Name                     string  `json:"name"`
	Revenue                  float64 `json:"revenue"`
	RevenuePercent           float64 `json:"revenue_percent"`
	CumulativeRevenuePercent float64 `json:"cumulative_revenue_percent"`
	Classification           string  `json:"classification"`
	Rank                     int     `json:"rank"`
}

// ClassifyABC assigns Pareto tiers: products are sorted by revenue
// descending (ties broken by product ID so output is deterministic),
// then classified A while the running revenue share stays at or below
// 80%, B through 95%, C beyond. Products with zero revenue are excluded;
// zero total revenue yields an empty result rather than a division error.
func ClassifyABC(rows []database.ProductSales) []ABCRecord {
	var total float64
	items := make([]database.ProductSales, 0, len(rows))
	for _, row := range rows {
		if row.Revenue > 0 {
			items = append(items, row)
			total += row.Revenue
		}
	}
	if total == 0 {
		return []ABCRecord{}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Revenue != items[j].Revenue {
			return items[i].Revenue > items[j].Revenue
		}
		return items[i].ProductID < items[j].ProductID
	})

	out := make([]ABCRecord, 0, len(items))
	var cumulative float64
	for i, item := range items {
		cumulative += item.Revenue
		cumPct := cumulative / total * 100

		class := ClassC
		switch {
		case cumPct <= abcBoundaryA:
			class = ClassA
		case cumPct <= abcBoundaryB:
			class = ClassB
		}

		out = append(out, ABCRecord{
			ProductID:                item.ProductID,
			SKU:                      item.SKU,
			Name:                     item.Name,
			Revenue:                  money.Round2(item.Revenue),
			RevenuePercent:           money.Pct(item.Revenue, total),
			CumulativeRevenuePercent: money.Round2(cumPct),
			Classification:           class,
			Rank:                     i + 1,
		})
	}
	return out
}
