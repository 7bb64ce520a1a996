package analytics

import (
	"testing"

	"pos-analytics/internal/database"
)

func abcRows(revenues ...float64) []database.ProductSales {
	rows := make([]database.ProductSales, len(revenues))
	for i, rev := range revenues {
		rows[i] = database.ProductSales{
			ProductID: string(rune('a' + i)),
			SKU:       "SKU",
			Name:      "product",
			Revenue:   rev,
		}
	}
	return rows
}

// TestClassifyABCBoundaries checks the 80/95 cumulative boundaries on a
// known revenue distribution.
func TestClassifyABCBoundaries(t *testing.T) {
	// Total 1000: cumulative shares 50, 80, 90, 94, 97, 99, 99.5, 99.8, 99.9, 100.
	out := ClassifyABC(abcRows(500, 300, 100, 40, 30, 20, 5, 3, 1, 1))

	if len(out) != 10 {
		t.Fatalf("expected 10 records, got %d", len(out))
	}

	want := []string{"A", "A", "B", "B", "C", "C", "C", "C", "C", "C"}
	for i, rec := range out {
		if rec.Classification != want[i] {
			t.Errorf("rank %d: classification %s, want %s (cum %.2f%%)",
				rec.Rank, rec.Classification, want[i], rec.CumulativeRevenuePercent)
		}
	}

	// A product landing exactly on 80% cumulative is still class A.
	if out[1].CumulativeRevenuePercent != 80.0 {
		t.Errorf("rank 2 cumulative = %.2f, want 80.00", out[1].CumulativeRevenuePercent)
	}
}

// TestClassifyABCExcludesZeroRevenue verifies products with no sales never
// appear in the classification.
func TestClassifyABCExcludesZeroRevenue(t *testing.T) {
	rows := abcRows(100, 0, 50)
	out := ClassifyABC(rows)

	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	for _, rec := range out {
		if rec.Revenue == 0 {
			t.Errorf("zero-revenue product %s classified as %s", rec.ProductID, rec.Classification)
		}
	}
}

// TestClassifyABCZeroTotal verifies a period with no revenue yields an
// empty result, not a division error.
func TestClassifyABCZeroTotal(t *testing.T) {
	out := ClassifyABC(abcRows(0, 0, 0))
	if len(out) != 0 {
		t.Errorf("expected empty result, got %d records", len(out))
	}

	out = ClassifyABC(nil)
	if out == nil || len(out) != 0 {
		t.Errorf("expected non-nil empty result for nil input")
	}
}

// TestClassifyABCTieBreak verifies equal revenues rank deterministically
// by product ID.
func TestClassifyABCTieBreak(t *testing.T) {
	rows := []database.ProductSales{
		{ProductID: "p2", Revenue: 100},
		{ProductID: "p1", Revenue: 100},
	}
	out := ClassifyABC(rows)

	if out[0].ProductID != "p1" || out[1].ProductID != "p2" {
		t.Errorf("tie broke as [%s %s], want [p1 p2]", out[0].ProductID, out[1].ProductID)
	}
	if out[0].Rank != 1 || out[1].Rank != 2 {
		t.Errorf("ranks = [%d %d], want [1 2]", out[0].Rank, out[1].Rank)
	}
}

// TestClassifyABCSingleProduct verifies the cumulative rule applies even
// when one product carries the whole distribution.
func TestClassifyABCSingleProduct(t *testing.T) {
	out := ClassifyABC(abcRows(250))
	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	// 100% cumulative exceeds both boundaries, so a lone product is C by
	// the cumulative rule.
	if out[0].Classification != ClassC {
		t.Errorf("single product classification = %s, want C", out[0].Classification)
	}
	if out[0].RevenuePercent != 100.0 {
		t.Errorf("revenue percent = %.2f, want 100.00", out[0].RevenuePercent)
	}
}
