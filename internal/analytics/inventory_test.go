package analytics

import (
	"testing"

	"pos-analytics/internal/database"
)

// TestAnalyzeInventoryStockoutFromDemand verifies the zero-stock,
// positive-sales shape is classed fast with zero days until stockout.
func TestAnalyzeInventoryStockoutFromDemand(t *testing.T) {
	rows := []database.ProductVelocity{
		{ProductID: "p1", SKU: "SOLD-OUT", StockQuantity: 0, UnitsSold: 150},
	}

	out := AnalyzeInventory(rows, DefaultReorderParams())
	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}

	rec := out[0]
	if rec.VelocityClass != VelocityFast {
		t.Errorf("velocity class = %s, want fast", rec.VelocityClass)
	}
	if rec.AvgDailySales != 5 {
		t.Errorf("avg daily sales = %.2f, want 5.00", rec.AvgDailySales)
	}
	if rec.DaysUntilStockout == nil || *rec.DaysUntilStockout != 0 {
		t.Errorf("days until stockout = %v, want 0", rec.DaysUntilStockout)
	}
	if !rec.NeedsReorder {
		t.Error("sold-out product with demand should need reorder")
	}
}

// TestAnalyzeInventoryDeadStock verifies zero stock and zero sales is dead
// with a nil stockout horizon.
func TestAnalyzeInventoryDeadStock(t *testing.T) {
	rows := []database.ProductVelocity{
		{ProductID: "p1", StockQuantity: 0, UnitsSold: 0},
		{ProductID: "p2", StockQuantity: 500, UnitsSold: 0},
	}

	out := AnalyzeInventory(rows, DefaultReorderParams())
	for _, rec := range out {
		if rec.VelocityClass != VelocityDead {
			t.Errorf("product %s class = %s, want dead", rec.ProductID, rec.VelocityClass)
		}
		if rec.DaysUntilStockout != nil {
			t.Errorf("product %s stockout days = %v, want nil", rec.ProductID, *rec.DaysUntilStockout)
		}
		if rec.NeedsReorder {
			t.Errorf("product %s with no sales should not need reorder", rec.ProductID)
		}
	}
}

// TestAnalyzeInventoryVelocityBands checks each fixed band boundary.
func TestAnalyzeInventoryVelocityBands(t *testing.T) {
	params := DefaultReorderParams()
	cases := []struct {
		name      string
		stock     int
		unitsSold int
		want      string
	}{
		// velocity = (unitsSold/30) / stock
		{"fast", 10, 60, VelocityFast},      // 2/10 = 0.2
		{"normal", 100, 150, VelocityNormal}, // 5/100 = 0.05
		{"slow", 100, 60, VelocitySlow},      // 2/100 = 0.02
		{"dead", 1000, 15, VelocityDead},     // 0.5/1000 = 0.0005
	}

	for _, tc := range cases {
		out := AnalyzeInventory([]database.ProductVelocity{
			{ProductID: "p", StockQuantity: tc.stock, UnitsSold: tc.unitsSold},
		}, params)
		if out[0].VelocityClass != tc.want {
			t.Errorf("%s: class = %s (velocity %.4f), want %s",
				tc.name, out[0].VelocityClass, out[0].Velocity, tc.want)
		}
	}
}

// TestAnalyzeInventoryReorderMath verifies the reorder point and suggested
// quantity formulas.
func TestAnalyzeInventoryReorderMath(t *testing.T) {
	params := ReorderParams{WindowDays: 30, LeadTimeDays: 7, SafetyStock: 5, ReorderPeriodDays: 14}
	rows := []database.ProductVelocity{
		{ProductID: "p1", StockQuantity: 20, UnitsSold: 90}, // 3/day
	}

	out := AnalyzeInventory(rows, params)
	rec := out[0]

	if rec.ReorderPoint != 26 { // 3*7 + 5
		t.Errorf("reorder point = %.2f, want 26.00", rec.ReorderPoint)
	}
	if rec.SuggestedReorderQty != 42 { // 3*14
		t.Errorf("suggested reorder qty = %.2f, want 42.00", rec.SuggestedReorderQty)
	}
	if !rec.NeedsReorder { // stock 20 <= reorder point 26
		t.Error("product below reorder point should need reorder")
	}
	if rec.DaysUntilStockout == nil || *rec.DaysUntilStockout != 6.67 {
		t.Errorf("days until stockout = %v, want 6.67", rec.DaysUntilStockout)
	}
}

// TestAnalyzeInventorySortOrder verifies fast movers sort ahead of slower
// classes regardless of input order.
func TestAnalyzeInventorySortOrder(t *testing.T) {
	rows := []database.ProductVelocity{
		{ProductID: "dead", StockQuantity: 1000, UnitsSold: 0},
		{ProductID: "slow", StockQuantity: 100, UnitsSold: 60},
		{ProductID: "fast", StockQuantity: 10, UnitsSold: 90},
		{ProductID: "normal", StockQuantity: 100, UnitsSold: 150},
	}

	out := AnalyzeInventory(rows, DefaultReorderParams())
	want := []string{"fast", "normal", "slow", "dead"}
	for i, rec := range out {
		if rec.ProductID != want[i] {
			t.Errorf("position %d: %s, want %s", i, rec.ProductID, want[i])
		}
	}
}
