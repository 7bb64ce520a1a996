// Package eod builds and manages end-of-day reports: one durable aggregate
// record per (business, date) with a small state machine around human
// review of cash discrepancies.
package eod

import (
	"errors"
	"fmt"
	"time"

	"pos-analytics/internal/database"
	"pos-analytics/internal/money"
)

// Report statuses. Lifecycle:
// pending -> in_progress -> (completed | discrepancy) -> reviewed.
const (
	StatusPending     = "pending"
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
	StatusDiscrepancy = "discrepancy"
	StatusReviewed    = "reviewed"
)

// ErrConflict is the sentinel for rejected state transitions: regenerating
// a finalized report, or reviewing one that is not in discrepancy.
var ErrConflict = errors.New("conflict")

// ConflictError carries the rejected transition detail.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

func (e ConflictError) Unwrap() error { return ErrConflict }

// Alert severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Alert categories.
const (
	CategoryCash       = "cash"
	CategoryInventory  = "inventory"
	CategorySales      = "sales"
	CategoryCompliance = "compliance"
)

// Alert is one threshold-derived flag on a report. Alerts are recomputed
// from report fields on every derivation, never stored on their own.
type Alert struct {
	Code      string   `json:"code"`
	Severity  string   `json:"severity"`
	Category  string   `json:"category"`
	Message   string   `json:"message"`
	Value     *float64 `json:"value,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// ShiftSummary is one register shift's totals within a report.
type ShiftSummary struct {
	ShiftID      string     `json:"shift_id"`
	RegisterID   string     `json:"register_id"`
	StaffName    string     `json:"staff_name"`
	OpeningFloat float64    `json:"opening_float"`
	CashIn       float64    `json:"cash_in"`
	CashOut      float64    `json:"cash_out"`
	ExpectedCash *float64   `json:"expected_cash"`
	ActualCash   *float64   `json:"actual_cash"`
	Variance     *float64   `json:"variance"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at"`
}

// CashReconciliation sums the cash position across all shifts. ActualCash
// and Variance stay nil unless every shift recorded a physical count; a
// nil variance is "uncounted", never zero, and must not be alerted on.
type CashReconciliation struct {
	OpeningFloat float64  `json:"opening_float"`
	CashIn       float64  `json:"cash_in"`
	CashOut      float64  `json:"cash_out"`
	ExpectedCash *float64 `json:"expected_cash"`
	ActualCash   *float64 `json:"actual_cash"`
	Variance     *float64 `json:"variance"`
}

// CategoryBreakdown is one category slice. Percent is computed against
// the breakdown's own total so the slices always sum to 100.
type CategoryBreakdown struct {
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
	Quantity int     `json:"quantity"`
	Percent  float64 `json:"percent"`
}

// Report is the full end-of-day aggregate for one business day.
type Report struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	ReportDate time.Time `json:"report_date"`
	Status     string    `json:"status"`

	Sales          database.SalesSummary         `json:"sales"`
	OrderCounts    database.OrderStatusCounts    `json:"order_counts"`
	AvgTicket      float64                       `json:"avg_ticket"`
	ItemsPerTicket float64                       `json:"items_per_ticket"`
	Payments       []database.PaymentMethodTotal `json:"payments"`
	Cash           CashReconciliation            `json:"cash"`
	Shifts         []ShiftSummary                `json:"shifts"`
	Categories     []CategoryBreakdown           `json:"categories"`
	TopProducts    []database.ProductSales       `json:"top_products"`
	HourlySales    []database.HourlyBucket       `json:"hourly_sales"`
	Inventory      database.InventorySnapshot    `json:"inventory"`
	Customers      database.CustomerCounts       `json:"customers"`
	Alerts         []Alert                       `json:"alerts,omitempty"`
	Notes          string                        `json:"notes,omitempty"`

	Partial       bool       `json:"partial"`
	DegradedSteps []string   `json:"degraded_steps,omitempty"`
	GeneratedAt   time.Time  `json:"generated_at"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

// ReconcileCash folds per-shift cash figures into the report-level block
// and fills in per-shift variances along the way.
func ReconcileCash(shifts []ShiftSummary) CashReconciliation {
	var rec CashReconciliation
	if len(shifts) == 0 {
		return rec
	}

	var expected float64
	haveExpected := false
	allCounted := true
	var actual float64

	for i := range shifts {
		s := &shifts[i]
		rec.OpeningFloat += s.OpeningFloat
		rec.CashIn += s.CashIn
		rec.CashOut += s.CashOut
		if s.ExpectedCash != nil {
			expected += *s.ExpectedCash
			haveExpected = true
		}
		if s.ActualCash == nil {
			allCounted = false
		} else {
			actual += *s.ActualCash
			if s.ExpectedCash != nil {
				v := money.Round2(*s.ActualCash - *s.ExpectedCash)
				s.Variance = &v
			}
		}
	}

	rec.OpeningFloat = money.Round2(rec.OpeningFloat)
	rec.CashIn = money.Round2(rec.CashIn)
	rec.CashOut = money.Round2(rec.CashOut)
	if haveExpected {
		e := money.Round2(expected)
		rec.ExpectedCash = &e
	}
	if allCounted {
		a := money.Round2(actual)
		rec.ActualCash = &a
		if haveExpected {
			v := money.Round2(a - *rec.ExpectedCash)
			rec.Variance = &v
		}
	}
	return rec
}

// BreakdownCategories converts raw category sums to percentage slices.
// Percentages are against the breakdown's own total so they sum to 100
// even when some revenue is uncategorized.
func BreakdownCategories(rows []database.CategorySales) []CategoryBreakdown {
	var total float64
	for _, row := range rows {
		total += row.Revenue
	}

	out := make([]CategoryBreakdown, 0, len(rows))
	for _, row := range rows {
		out = append(out, CategoryBreakdown{
			Category: row.Category,
			Revenue:  money.Round2(row.Revenue),
			Quantity: row.Quantity,
			Percent:  money.Pct(row.Revenue, total),
		})
	}
	return out
}

// Recognized payment methods; anything else buckets into "other".
var knownPaymentMethods = map[string]bool{
	"cash":          true,
	"card":          true,
	"mobile":        true,
	"voucher":       true,
	"bank_transfer": true,
}

// NormalizePayments folds unrecognized payment methods into "other".
func NormalizePayments(rows []database.PaymentMethodTotal) []database.PaymentMethodTotal {
	var out []database.PaymentMethodTotal
	var other database.PaymentMethodTotal
	other.Method = "other"

	for _, row := range rows {
		if knownPaymentMethods[row.Method] {
			row.Amount = money.Round2(row.Amount)
			out = append(out, row)
			continue
		}
		other.Amount += row.Amount
		other.Count += row.Count
	}
	if other.Count > 0 {
		other.Amount = money.Round2(other.Amount)
		out = append(out, other)
	}
	return out
}

// canRegenerate reports whether a build may overwrite the existing status.
func canRegenerate(status string) bool {
	return status == StatusPending || status == StatusDiscrepancy
}

// regenerateConflict builds the rejection for finalized reports.
func regenerateConflict(businessID string, date time.Time, status string) error {
	return ConflictError{Message: fmt.Sprintf(
		"report for %s on %s is %s and cannot be regenerated",
		businessID, date.Format("2006-01-02"), status)}
}
