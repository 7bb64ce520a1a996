package eod

import (
	"errors"
	"testing"
	"time"

	"pos-analytics/internal/database"
)

func fptr(v float64) *float64 { return &v }

// TestReconcileCashAllCounted verifies the report-level variance when every
// shift recorded a physical count.
func TestReconcileCashAllCounted(t *testing.T) {
	shifts := []ShiftSummary{
		{ShiftID: "s1", OpeningFloat: 100, CashIn: 500, CashOut: 50,
			ExpectedCash: fptr(550), ActualCash: fptr(545)},
		{ShiftID: "s2", OpeningFloat: 100, CashIn: 300, CashOut: 20,
			ExpectedCash: fptr(380), ActualCash: fptr(382)},
	}

	rec := ReconcileCash(shifts)

	if rec.OpeningFloat != 200 || rec.CashIn != 800 || rec.CashOut != 70 {
		t.Errorf("totals = %+v", rec)
	}
	if rec.ExpectedCash == nil || *rec.ExpectedCash != 930 {
		t.Errorf("expected cash = %v, want 930", rec.ExpectedCash)
	}
	if rec.ActualCash == nil || *rec.ActualCash != 927 {
		t.Errorf("actual cash = %v, want 927", rec.ActualCash)
	}
	if rec.Variance == nil || *rec.Variance != -3 {
		t.Errorf("variance = %v, want -3", rec.Variance)
	}

	// Per-shift variances are filled in place.
	if shifts[0].Variance == nil || *shifts[0].Variance != -5 {
		t.Errorf("shift 1 variance = %v, want -5", shifts[0].Variance)
	}
	if shifts[1].Variance == nil || *shifts[1].Variance != 2 {
		t.Errorf("shift 2 variance = %v, want 2", shifts[1].Variance)
	}
}

// TestReconcileCashUncountedShift verifies one uncounted shift suppresses
// the report-level actual and variance entirely.
func TestReconcileCashUncountedShift(t *testing.T) {
	shifts := []ShiftSummary{
		{ShiftID: "s1", OpeningFloat: 100, ExpectedCash: fptr(200), ActualCash: fptr(198)},
		{ShiftID: "s2", OpeningFloat: 100, ExpectedCash: fptr(150)},
	}

	rec := ReconcileCash(shifts)

	if rec.ActualCash != nil {
		t.Errorf("actual cash = %v, want nil when a shift is uncounted", *rec.ActualCash)
	}
	if rec.Variance != nil {
		t.Errorf("variance = %v, want nil when a shift is uncounted", *rec.Variance)
	}
	// Expected still sums across all shifts.
	if rec.ExpectedCash == nil || *rec.ExpectedCash != 350 {
		t.Errorf("expected cash = %v, want 350", rec.ExpectedCash)
	}
	// The counted shift still gets its own variance.
	if shifts[0].Variance == nil || *shifts[0].Variance != -2 {
		t.Errorf("counted shift variance = %v, want -2", shifts[0].Variance)
	}
}

// TestReconcileCashNoShifts verifies an empty day yields an all-nil block.
func TestReconcileCashNoShifts(t *testing.T) {
	rec := ReconcileCash(nil)
	if rec.ExpectedCash != nil || rec.ActualCash != nil || rec.Variance != nil {
		t.Errorf("empty day reconciliation should be all nil: %+v", rec)
	}
}

// TestBreakdownCategoriesPercents verifies percentages are against the
// breakdown's own total and sum to 100.
func TestBreakdownCategoriesPercents(t *testing.T) {
	rows := []database.CategorySales{
		{Category: "drinks", Revenue: 600, Quantity: 60},
		{Category: "food", Revenue: 300, Quantity: 20},
		{Category: "retail", Revenue: 100, Quantity: 5},
	}

	out := BreakdownCategories(rows)
	if len(out) != 3 {
		t.Fatalf("expected 3 slices, got %d", len(out))
	}

	var sum float64
	for _, slice := range out {
		sum += slice.Percent
	}
	if sum != 100 {
		t.Errorf("percents sum to %.2f, want 100", sum)
	}
	if out[0].Percent != 60 || out[1].Percent != 30 || out[2].Percent != 10 {
		t.Errorf("percents = [%.2f %.2f %.2f], want [60 30 10]",
			out[0].Percent, out[1].Percent, out[2].Percent)
	}
}

// TestNormalizePayments verifies unknown methods fold into "other" while
// known ones pass through.
func TestNormalizePayments(t *testing.T) {
	rows := []database.PaymentMethodTotal{
		{Method: "cash", Amount: 400, Count: 20},
		{Method: "card", Amount: 900, Count: 45},
		{Method: "crypto", Amount: 50, Count: 2},
		{Method: "store_credit", Amount: 25, Count: 1},
	}

	out := NormalizePayments(rows)
	if len(out) != 3 {
		t.Fatalf("expected 3 methods, got %d", len(out))
	}

	byMethod := make(map[string]database.PaymentMethodTotal)
	for _, p := range out {
		byMethod[p.Method] = p
	}
	if byMethod["cash"].Amount != 400 || byMethod["card"].Amount != 900 {
		t.Errorf("known methods changed: %+v", byMethod)
	}
	other := byMethod["other"]
	if other.Amount != 75 || other.Count != 3 {
		t.Errorf("other bucket = %+v, want amount 75 count 3", other)
	}
}

// TestDeriveAlertsVarianceSeverity checks the two-threshold escalation.
func TestDeriveAlertsVarianceSeverity(t *testing.T) {
	thresholds := AlertThresholds{Discrepancy: 10, VarianceError: 50}

	cases := []struct {
		name     string
		variance *float64
		wantCode string
	}{
		{"uncounted", nil, ""},
		{"within threshold", fptr(-8), ""},
		{"warning band", fptr(-15), "cash_variance"},
		{"error band", fptr(60), "cash_variance_high"},
		{"negative error band", fptr(-75), "cash_variance_high"},
	}

	for _, tc := range cases {
		r := &Report{}
		r.Cash.Variance = tc.variance
		alerts := DeriveAlerts(r, thresholds)

		var got string
		for _, a := range alerts {
			if a.Code == "cash_variance" || a.Code == "cash_variance_high" {
				got = a.Code
			}
		}
		if got != tc.wantCode {
			t.Errorf("%s: alert code %q, want %q", tc.name, got, tc.wantCode)
		}
		for _, a := range alerts {
			if a.Code == tc.wantCode && a.Category != CategoryCash {
				t.Errorf("%s: category %q, want %q", tc.name, a.Category, CategoryCash)
			}
		}
	}
}

// TestDeriveAlertsRefundRate verifies the refund-rate alert fires above
// 10% of gross sales and stays quiet on a zero-sales day.
func TestDeriveAlertsRefundRate(t *testing.T) {
	r := &Report{}
	r.Sales.GrossSales = 1000
	r.Sales.RefundTotal = 150

	if !hasAlert(DeriveAlerts(r, AlertThresholds{}), "refund_rate_high") {
		t.Error("15% refund rate should alert")
	}

	r.Sales.RefundTotal = 50
	if hasAlert(DeriveAlerts(r, AlertThresholds{}), "refund_rate_high") {
		t.Error("5% refund rate should not alert")
	}

	zero := &Report{}
	if hasAlert(DeriveAlerts(zero, AlertThresholds{}), "refund_rate_high") {
		t.Error("zero-sales day should not alert on refund rate")
	}
}

// TestDeriveAlertsPartialData verifies degraded builds are flagged.
func TestDeriveAlertsPartialData(t *testing.T) {
	r := &Report{Partial: true, DegradedSteps: []string{"inventory_snapshot"}}
	if !hasAlert(DeriveAlerts(r, AlertThresholds{}), "partial_data") {
		t.Error("partial report should carry a partial_data alert")
	}
}

func hasAlert(alerts []Alert, code string) bool {
	for _, a := range alerts {
		if a.Code == code {
			return true
		}
	}
	return false
}

// TestResolveStatus verifies only a counted variance beyond the threshold
// forces the discrepancy status.
func TestResolveStatus(t *testing.T) {
	thresholds := AlertThresholds{Discrepancy: 10, VarianceError: 50}

	cases := []struct {
		name     string
		variance *float64
		want     string
	}{
		{"uncounted resolves completed", nil, StatusCompleted},
		{"small variance completes", fptr(4), StatusCompleted},
		{"at threshold completes", fptr(10), StatusCompleted},
		{"over threshold flags discrepancy", fptr(-12), StatusDiscrepancy},
	}

	for _, tc := range cases {
		r := &Report{}
		r.Cash.Variance = tc.variance
		if got := ResolveStatus(r, thresholds); got != tc.want {
			t.Errorf("%s: status %s, want %s", tc.name, got, tc.want)
		}
	}
}

// TestCanRegenerate verifies which statuses a rebuild may overwrite.
func TestCanRegenerate(t *testing.T) {
	allowed := map[string]bool{
		StatusPending:     true,
		StatusInProgress:  false,
		StatusCompleted:   false,
		StatusDiscrepancy: true,
		StatusReviewed:    false,
	}
	for status, want := range allowed {
		if got := canRegenerate(status); got != want {
			t.Errorf("canRegenerate(%s) = %v, want %v", status, got, want)
		}
	}
}

// TestRegenerateConflictUnwraps verifies the conflict error matches the
// sentinel through errors.Is.
func TestRegenerateConflictUnwraps(t *testing.T) {
	err := regenerateConflict("biz", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), StatusCompleted)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("conflict error does not unwrap to ErrConflict: %v", err)
	}
}
