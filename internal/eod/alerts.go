package eod

import (
	"fmt"
	"math"
)

// AlertThresholds are the two cash-variance constants. They are separate
// on purpose: the discrepancy threshold flips report status, the variance
// error threshold only escalates alert severity. Conflating them changes
// behavior.
type AlertThresholds struct {
	Discrepancy   float64
	VarianceError float64
}

// DeriveAlerts is a pure function from a built report to its alert list.
// A nil cash variance means no shift count happened and never alerts.
func DeriveAlerts(r *Report, t AlertThresholds) []Alert {
	var alerts []Alert

	if r.Cash.Variance != nil {
		v := math.Abs(*r.Cash.Variance)
		switch {
		case v > t.VarianceError:
			alerts = append(alerts, Alert{
				Code:      "cash_variance_high",
				Severity:  SeverityError,
				Category:  CategoryCash,
				Message:   fmt.Sprintf("cash variance %.2f exceeds error threshold %.2f", *r.Cash.Variance, t.VarianceError),
				Value:     r.Cash.Variance,
				Threshold: &t.VarianceError,
			})
		case v > t.Discrepancy:
			alerts = append(alerts, Alert{
				Code:      "cash_variance",
				Severity:  SeverityWarning,
				Category:  CategoryCash,
				Message:   fmt.Sprintf("cash variance %.2f exceeds threshold %.2f", *r.Cash.Variance, t.Discrepancy),
				Value:     r.Cash.Variance,
				Threshold: &t.Discrepancy,
			})
		}
	}

	if r.Sales.GrossSales > 0 && r.Sales.RefundTotal/r.Sales.GrossSales > 0.1 {
		rate := r.Sales.RefundTotal / r.Sales.GrossSales * 100
		alerts = append(alerts, Alert{
			Code:     "refund_rate_high",
			Severity: SeverityWarning,
			Category: CategorySales,
			Message:  fmt.Sprintf("refunds are %.1f%% of gross sales", rate),
			Value:    &rate,
		})
	}

	if r.Inventory.OutOfStock > 0 {
		count := float64(r.Inventory.OutOfStock)
		alerts = append(alerts, Alert{
			Code:     "out_of_stock",
			Severity: SeverityWarning,
			Category: CategoryInventory,
			Message:  fmt.Sprintf("%d products are out of stock", r.Inventory.OutOfStock),
			Value:    &count,
		})
	}

	if r.Partial {
		alerts = append(alerts, Alert{
			Code:     "partial_data",
			Severity: SeverityWarning,
			Category: CategoryCompliance,
			Message:  fmt.Sprintf("%d aggregation steps degraded to defaults", len(r.DegradedSteps)),
		})
	}

	return alerts
}

// ResolveStatus picks the terminal build status. Only a counted variance
// beyond the discrepancy threshold forces review; a nil variance resolves
// through the variance-independent path to completed.
func ResolveStatus(r *Report, t AlertThresholds) string {
	if r.Cash.Variance != nil && math.Abs(*r.Cash.Variance) > t.Discrepancy {
		return StatusDiscrepancy
	}
	return StatusCompleted
}
