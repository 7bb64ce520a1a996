package database

import "testing"

// TestSalesSummaryRound verifies summed monetary fields are normalized to
// two decimals before the summary leaves the aggregation layer.
func TestSalesSummaryRound(t *testing.T) {
	s := SalesSummary{
		GrossSales:    100.0 + 0.1 + 0.2, // 100.30000000000001 in binary floats
		RefundTotal:   10.005,
		TaxTotal:      8.3333333,
		TipTotal:      2.675,
		DiscountTotal: 1.994999,
		CostOfGoods:   40.119,
		OrderCount:    3,
	}
	s.NetSales = s.GrossSales - s.RefundTotal
	s.GrossMargin = s.NetSales - s.CostOfGoods
	s.AvgOrderValue = s.GrossSales / float64(s.OrderCount)

	s.Round()

	if s.GrossSales != 100.3 {
		t.Errorf("gross sales = %v, want 100.3", s.GrossSales)
	}
	if s.RefundTotal != 10.01 {
		t.Errorf("refund total = %v, want 10.01", s.RefundTotal)
	}
	if s.NetSales != 90.3 {
		t.Errorf("net sales = %v, want 90.3", s.NetSales)
	}
	if s.TaxTotal != 8.33 {
		t.Errorf("tax total = %v, want 8.33", s.TaxTotal)
	}
	if s.TipTotal != 2.68 {
		t.Errorf("tip total = %v, want 2.68", s.TipTotal)
	}
	if s.DiscountTotal != 1.99 {
		t.Errorf("discount total = %v, want 1.99", s.DiscountTotal)
	}
	if s.CostOfGoods != 40.12 {
		t.Errorf("cost of goods = %v, want 40.12", s.CostOfGoods)
	}
	if s.GrossMargin != 50.18 {
		t.Errorf("gross margin = %v, want 50.18", s.GrossMargin)
	}
	if s.AvgOrderValue != 33.43 {
		t.Errorf("avg order value = %v, want 33.43", s.AvgOrderValue)
	}
	if s.OrderCount != 3 {
		t.Errorf("order count changed: %d", s.OrderCount)
	}
}
