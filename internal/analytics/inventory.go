package analytics

import (
	"math"
	"sort"

	"pos-analytics/internal/database"
	"pos-analytics/internal/money"
)

// Velocity classes.
const (
	VelocityFast   = "fast"
	VelocityNormal = "normal"
	VelocitySlow   = "slow"
	VelocityDead   = "dead"
)

// Fixed velocity band boundaries (avg daily units sold per unit of stock).
const (
	velocityFastMin   = 0.1
	velocityNormalMin = 0.03
	velocitySlowMin   = 0.01
)

// ReorderParams tunes the reorder-point math.
type ReorderParams struct {
	WindowDays        int
	LeadTimeDays      float64
	SafetyStock       float64
	ReorderPeriodDays float64
}

// DefaultReorderParams returns conservative defaults for the reorder math.
func DefaultReorderParams() ReorderParams {
	return ReorderParams{
		WindowDays:        30,
		LeadTimeDays:      7,
		SafetyStock:       5,
		ReorderPeriodDays: 14,
	}
}

// InventoryRecord is one product's velocity and reorder analysis.
// DaysUntilStockout is nil when nothing is selling.
type InventoryRecord struct {
	ProductID          string   `json:"product_id"`
	SKU                string   `json:"sku"`
	Name               string   `json:"name"`
	StockLevel         int      `json:"stock_level"`
	AvgDailySales      float64  `json:"avg_daily_sales"`
	Velocity           float64  `json:"velocity"`
	VelocityClass      string   `json:"velocity_class"`
	DaysUntilStockout  *float64 `json:"days_until_stockout"`
	ReorderPoint       float64  `json:"reorder_point"`
	SuggestedReorderQty float64 `json:"suggested_reorder_qty"`
	NeedsReorder       bool     `json:"needs_reorder"`
}

// AnalyzeInventory computes velocity bands and reorder suggestions from
// trailing sales. A product with zero stock but positive sales is classed
// fast by convention: that shape signals a stockout driven by demand, not
// a division error. Fast-selling products sort first.
func AnalyzeInventory(rows []database.ProductVelocity, params ReorderParams) []InventoryRecord {
	if params.WindowDays <= 0 {
		params.WindowDays = 30
	}

	out := make([]InventoryRecord, 0, len(rows))
	for _, row := range rows {
		avgDaily := float64(row.UnitsSold) / float64(params.WindowDays)

		var velocity float64
		var class string
		switch {
		case row.StockQuantity <= 0 && avgDaily > 0:
			// Zero stock with sales means demand outran supply.
			velocity = avgDaily
			class = VelocityFast
		case row.StockQuantity <= 0:
			velocity = 0
			class = VelocityDead
		default:
			velocity = avgDaily / float64(row.StockQuantity)
			class = classifyVelocity(velocity)
		}

		var stockoutDays *float64
		if avgDaily > 0 {
			d := money.Round2(math.Max(float64(row.StockQuantity), 0) / avgDaily)
			stockoutDays = &d
		}

		reorderPoint := avgDaily*params.LeadTimeDays + params.SafetyStock

		rec := InventoryRecord{
			ProductID:           row.ProductID,
			SKU:                 row.SKU,
			Name:                row.Name,
			StockLevel:          row.StockQuantity,
			AvgDailySales:       money.Round2(avgDaily),
			VelocityClass:       class,
			DaysUntilStockout:   stockoutDays,
			ReorderPoint:        money.Round2(reorderPoint),
			SuggestedReorderQty: money.Round2(avgDaily * params.ReorderPeriodDays),
			NeedsReorder:        float64(row.StockQuantity) <= reorderPoint && avgDaily > 0,
			Velocity:            money.Round2(velocity),
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].VelocityClass != out[j].VelocityClass {
			return classRank(out[i].VelocityClass) < classRank(out[j].VelocityClass)
		}
		if out[i].Velocity != out[j].Velocity {
			return out[i].Velocity > out[j].Velocity
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

func classRank(class string) int {
	switch class {
	case VelocityFast:
		return 0
	case VelocityNormal:
		return 1
	case VelocitySlow:
		return 2
	default:
		return 3
	}
}

func classifyVelocity(v float64) string {
	switch {
	case v > velocityFastMin:
		return VelocityFast
	case v >= velocityNormalMin:
		return VelocityNormal
	case v >= velocitySlowMin:
		return VelocitySlow
	default:
		return VelocityDead
	}
}
