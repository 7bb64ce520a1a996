package analytics

import (
	"testing"
	"time"

	"pos-analytics/internal/database"
)

// TestSegmentForRules exercises the priority-ordered rule table on the
// triples each rule is meant to catch.
func TestSegmentForRules(t *testing.T) {
	cases := []struct {
		r, f, m int
		want    string
	}{
		{5, 5, 5, SegmentChampions},
		{4, 4, 4, SegmentChampions},
		{3, 5, 2, SegmentLoyalCustomers},
		{2, 5, 3, SegmentAtRisk},
		{1, 4, 5, SegmentAtRisk},
		{5, 1, 1, SegmentNewCustomers},
		{4, 2, 2, SegmentPotentialLoyalists},
		{4, 3, 1, SegmentPotentialLoyalists},
		{1, 1, 5, SegmentLost},
		{2, 2, 1, SegmentHibernating},
		{3, 2, 5, SegmentBigSpenders},
		{3, 1, 2, SegmentPromising},
		{3, 3, 3, SegmentNeedAttention},
		{3, 2, 2, SegmentNeedAttention},
	}

	for _, tc := range cases {
		got := SegmentFor(tc.r, tc.f, tc.m)
		if got != tc.want {
			t.Errorf("SegmentFor(%d,%d,%d) = %s, want %s", tc.r, tc.f, tc.m, got, tc.want)
		}
	}
}

// TestSegmentForDeterministic verifies the same triple always yields the
// same segment.
func TestSegmentForDeterministic(t *testing.T) {
	for r := 1; r <= 5; r++ {
		for f := 1; f <= 5; f++ {
			for m := 1; m <= 5; m++ {
				first := SegmentFor(r, f, m)
				if first == "" {
					t.Fatalf("SegmentFor(%d,%d,%d) returned empty segment", r, f, m)
				}
				if again := SegmentFor(r, f, m); again != first {
					t.Errorf("SegmentFor(%d,%d,%d) unstable: %s then %s", r, f, m, first, again)
				}
			}
		}
	}
}

// TestScoreRFMScoreRange verifies every score lands in 1..5.
func TestScoreRFMScoreRange(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []database.CustomerActivity{
		{CustomerID: "c1", LastPurchase: asOf.AddDate(0, 0, -2), OrderCount: 40, TotalSpend: 5000},
		{CustomerID: "c2", LastPurchase: asOf.AddDate(0, 0, -30), OrderCount: 10, TotalSpend: 900},
		{CustomerID: "c3", LastPurchase: asOf.AddDate(0, 0, -90), OrderCount: 3, TotalSpend: 150},
		{CustomerID: "c4", LastPurchase: asOf.AddDate(0, 0, -200), OrderCount: 1, TotalSpend: 40},
		{CustomerID: "c5", LastPurchase: asOf.AddDate(0, 0, -350), OrderCount: 1, TotalSpend: 10},
	}

	out := ScoreRFM(rows, asOf)
	if len(out) != len(rows) {
		t.Fatalf("expected %d records, got %d", len(rows), len(out))
	}
	for _, rec := range out {
		for name, s := range map[string]int{"r": rec.RScore, "f": rec.FScore, "m": rec.MScore} {
			if s < 1 || s > 5 {
				t.Errorf("customer %s: %s score %d out of range", rec.CustomerID, name, s)
			}
		}
		if rec.Segment == "" {
			t.Errorf("customer %s has no segment", rec.CustomerID)
		}
	}
}

// TestScoreRFMRecencyInverse verifies the most recent purchaser outranks
// the least recent on the r score.
func TestScoreRFMRecencyInverse(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []database.CustomerActivity{
		{CustomerID: "recent", LastPurchase: asOf.AddDate(0, 0, -1), OrderCount: 5, TotalSpend: 100},
		{CustomerID: "mid", LastPurchase: asOf.AddDate(0, 0, -100), OrderCount: 5, TotalSpend: 100},
		{CustomerID: "stale", LastPurchase: asOf.AddDate(0, 0, -300), OrderCount: 5, TotalSpend: 100},
	}

	out := ScoreRFM(rows, asOf)
	byID := make(map[string]RFMRecord)
	for _, rec := range out {
		byID[rec.CustomerID] = rec
	}

	if byID["recent"].RScore != 5 {
		t.Errorf("most recent purchaser r score = %d, want 5", byID["recent"].RScore)
	}
	if byID["stale"].RScore >= byID["recent"].RScore {
		t.Errorf("stale r score %d should be below recent %d",
			byID["stale"].RScore, byID["recent"].RScore)
	}
}

// TestScoreRFMEqualValuesEqualScores verifies customers with identical raw
// metrics always receive identical scores.
func TestScoreRFMEqualValuesEqualScores(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []database.CustomerActivity{
		{CustomerID: "a", LastPurchase: asOf.AddDate(0, 0, -10), OrderCount: 4, TotalSpend: 200},
		{CustomerID: "b", LastPurchase: asOf.AddDate(0, 0, -10), OrderCount: 4, TotalSpend: 200},
		{CustomerID: "c", LastPurchase: asOf.AddDate(0, 0, -60), OrderCount: 1, TotalSpend: 20},
	}

	out := ScoreRFM(rows, asOf)
	byID := make(map[string]RFMRecord)
	for _, rec := range out {
		byID[rec.CustomerID] = rec
	}

	a, b := byID["a"], byID["b"]
	if a.RScore != b.RScore || a.FScore != b.FScore || a.MScore != b.MScore {
		t.Errorf("identical customers scored differently: a=(%d,%d,%d) b=(%d,%d,%d)",
			a.RScore, a.FScore, a.MScore, b.RScore, b.FScore, b.MScore)
	}
	if a.Segment != b.Segment {
		t.Errorf("identical customers segmented differently: %s vs %s", a.Segment, b.Segment)
	}
}

// TestScoreRFMEmpty verifies an empty population returns an empty slice.
func TestScoreRFMEmpty(t *testing.T) {
	out := ScoreRFM(nil, time.Now())
	if out == nil || len(out) != 0 {
		t.Errorf("expected non-nil empty result, got %v", out)
	}
}

// TestSummarizeRFM verifies the per-segment rollup counts and spend.
func TestSummarizeRFM(t *testing.T) {
	records := []RFMRecord{
		{CustomerID: "a", Monetary: 100, Segment: SegmentChampions},
		{CustomerID: "b", Monetary: 200, Segment: SegmentChampions},
		{CustomerID: "c", Monetary: 50, Segment: SegmentLost},
	}

	out := SummarizeRFM(records)
	if len(out) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(out))
	}
	if out[0].Segment != SegmentChampions || out[0].CustomerCount != 2 || out[0].TotalSpend != 300 {
		t.Errorf("champions rollup = %+v", out[0])
	}
	if out[1].Segment != SegmentLost || out[1].TotalSpend != 50 {
		t.Errorf("lost rollup = %+v", out[1])
	}
}
