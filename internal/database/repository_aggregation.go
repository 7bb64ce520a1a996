package database

import (
	"context"
	"fmt"
	"time"

	"pos-analytics/internal/money"
	"pos-analytics/internal/period"
)

// Aggregation row types. Every query here filters by business_id first and
// scopes timestamps to the half-open [start, end) window, so tenants can
// never see each other's rows and midnight boundaries never double count.

// SalesSummary is the headline revenue block for a period.
type SalesSummary struct {
	GrossSales    float64 `json:"gross_sales"`
	RefundTotal   float64 `json:"refund_total"`
	NetSales      float64 `json:"net_sales"`
	TaxTotal      float64 `json:"tax_total"`
	TipTotal      float64 `json:"tip_total"`
	DiscountTotal float64 `json:"discount_total"`
	CostOfGoods   float64 `json:"cost_of_goods"`
	GrossMargin   float64 `json:"gross_margin"`
	OrderCount    int     `json:"order_count"`
	RefundCount   int     `json:"refund_count"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// Round normalizes every monetary field to two decimals so summed values
// leave the aggregation layer without accumulated floating error.
func (s *SalesSummary) Round() {
	s.GrossSales = money.Round2(s.GrossSales)
	s.RefundTotal = money.Round2(s.RefundTotal)
	s.NetSales = money.Round2(s.NetSales)
	s.TaxTotal = money.Round2(s.TaxTotal)
	s.TipTotal = money.Round2(s.TipTotal)
	s.DiscountTotal = money.Round2(s.DiscountTotal)
	s.CostOfGoods = money.Round2(s.CostOfGoods)
	s.GrossMargin = money.Round2(s.GrossMargin)
	s.AvgOrderValue = money.Round2(s.AvgOrderValue)
}

// PaymentMethodTotal is one slice of the payment breakdown.
type PaymentMethodTotal struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

// CategorySales is revenue attributed to one product category.
type CategorySales struct {
	Category  string  `json:"category"`
	Revenue   float64 `json:"revenue"`
	Quantity  int     `json:"quantity"`
	OrderSpan int     `json:"order_span"`
}

// ProductSales is per-product revenue and units for a period.
type ProductSales struct {
	ProductID string  `json:"product_id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Revenue   float64 `json:"revenue"`
	Quantity  int     `json:"quantity"`
	Cost      float64 `json:"cost"`
}

// HourlyBucket is one hour of the sales histogram.
type HourlyBucket struct {
	Hour       int     `json:"hour"`
	Revenue    float64 `json:"revenue"`
	OrderCount int     `json:"order_count"`
}

// CustomerCounts splits period buyers into new and returning.
type CustomerCounts struct {
	Total     int `json:"total"`
	New       int `json:"new"`
	Returning int `json:"returning"`
	Anonymous int `json:"anonymous"`
}

// DailyRevenue is one day of the revenue series the forecaster consumes.
type DailyRevenue struct {
	Date       time.Time `json:"date"`
	Revenue    float64   `json:"revenue"`
	OrderCount int       `json:"order_count"`
}

// CustomerActivity is the raw material for RFM scoring.
type CustomerActivity struct {
	CustomerID    string    `json:"customer_id"`
	Name          string    `json:"name"`
	LastPurchase  time.Time `json:"last_purchase"`
	OrderCount    int       `json:"order_count"`
	TotalSpend    float64   `json:"total_spend"`
}

// ProductVelocity is the raw material for inventory velocity banding.
type ProductVelocity struct {
	ProductID     string  `json:"product_id"`
	SKU           string  `json:"sku"`
	Name          string  `json:"name"`
	StockQuantity int     `json:"stock_quantity"`
	UnitsSold     int     `json:"units_sold"`
}

// OrderStatusCounts tallies orders by terminal status for a period.
type OrderStatusCounts struct {
	Completed int `json:"completed"`
	Refunded  int `json:"refunded"`
	Voided    int `json:"voided"`
	Cancelled int `json:"cancelled"`
}

// StaffSales is per-staff performance for a period.
type StaffSales struct {
	StaffID    string  `json:"staff_id"`
	Revenue    float64 `json:"revenue"`
	OrderCount int     `json:"order_count"`
	ItemsSold  int     `json:"items_sold"`
}

// GetSalesSummary aggregates the headline revenue numbers for the period.
// An empty period yields zeros, not an error.
func (r *Repository) GetSalesSummary(ctx context.Context, p period.ReportingPeriod) (*SalesSummary, error) {
	var s SalesSummary
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total), 0),
			COALESCE(SUM(tax_total), 0),
			COALESCE(SUM(tip_total), 0),
			COALESCE(SUM(discount_total), 0),
			COUNT(*)
		FROM orders
		WHERE business_id = $1
		  AND completed_at >= $2 AND completed_at < $3
		  AND status IN ('completed','partially_refunded')`,
		p.BusinessID, p.Start, p.End,
	).Scan(&s.GrossSales, &s.TaxTotal, &s.TipTotal, &s.DiscountTotal, &s.OrderCount)
	if err != nil {
		return nil, fmt.Errorf("sales summary: %w", err)
	}

	err = r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM refunds
		WHERE business_id = $1 AND refunded_at >= $2 AND refunded_at < $3`,
		p.BusinessID, p.Start, p.End,
	).Scan(&s.RefundTotal, &s.RefundCount)
	if err != nil {
		return nil, fmt.Errorf("refund totals: %w", err)
	}

	err = r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(oi.unit_cost * oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.business_id = $1
		  AND o.completed_at >= $2 AND o.completed_at < $3
		  AND o.status IN ('completed','partially_refunded')`,
		p.BusinessID, p.Start, p.End,
	).Scan(&s.CostOfGoods)
	if err != nil {
		return nil, fmt.Errorf("cost of goods: %w", err)
	}

	s.NetSales = s.GrossSales - s.RefundTotal
	s.GrossMargin = s.NetSales - s.CostOfGoods
	if s.OrderCount > 0 {
		s.AvgOrderValue = s.GrossSales / float64(s.OrderCount)
	}
	s.Round()
	return &s, nil
}

// GetOrderStatusCounts tallies period orders by status. Partially refunded
// orders count as completed; the refund itself shows up in the refund
// totals, not here.
func (r *Repository) GetOrderStatusCounts(ctx context.Context, p period.ReportingPeriod) (*OrderStatusCounts, error) {
	var c OrderStatusCounts
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('completed','partially_refunded')),
			COUNT(*) FILTER (WHERE status = 'refunded'),
			COUNT(*) FILTER (WHERE status = 'voided'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM orders
		WHERE business_id = $1
		  AND completed_at >= $2 AND completed_at < $3`,
		p.BusinessID, p.Start, p.End,
	).Scan(&c.Completed, &c.Refunded, &c.Voided, &c.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("order status counts: %w", err)
	}
	return &c, nil
}

// GetItemsSold sums item quantities over the period's sales orders.
func (r *Repository) GetItemsSold(ctx context.Context, p period.ReportingPeriod) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.business_id = $1
		  AND o.completed_at >= $2 AND o.completed_at < $3
		  AND o.status IN ('completed','partially_refunded')`,
		p.BusinessID, p.Start, p.End).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("items sold: %w", err)
	}
	return n, nil
}

// InventorySnapshot is the stock position at query time.
type InventorySnapshot struct {
	TotalValue    float64 `json:"total_value"`
	TotalUnits    int     `json:"total_units"`
	LowStockCount int     `json:"low_stock_count"`
	OutOfStock    int     `json:"out_of_stock"`
}

// GetInventorySnapshot values current stock at cost and counts low and
// out-of-stock products. lowStockThreshold is in units.
func (r *Repository) GetInventorySnapshot(ctx context.Context, businessID string, lowStockThreshold int) (*InventorySnapshot, error) {
	var s InventorySnapshot
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(unit_cost * GREATEST(stock_quantity, 0)), 0),
			COALESCE(SUM(GREATEST(stock_quantity, 0)), 0),
			COUNT(*) FILTER (WHERE stock_quantity > 0 AND stock_quantity <= $2),
			COUNT(*) FILTER (WHERE stock_quantity <= 0)
		FROM products
		WHERE business_id = $1 AND active`,
		businessID, lowStockThreshold,
	).Scan(&s.TotalValue, &s.TotalUnits, &s.LowStockCount, &s.OutOfStock)
	if err != nil {
		return nil, fmt.Errorf("inventory snapshot: %w", err)
	}
	return &s, nil
}

// GetPaymentBreakdown totals captured payments per method.
func (r *Repository) GetPaymentBreakdown(ctx context.Context, p period.ReportingPeriod) ([]PaymentMethodTotal, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT method, COALESCE(SUM(amount), 0), COUNT(*)
		FROM payments
		WHERE business_id = $1 AND captured_at >= $2 AND captured_at < $3
		GROUP BY method
		ORDER BY SUM(amount) DESC`,
		p.BusinessID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("payment breakdown: %w", err)
	}
	defer rows.Close()

	var out []PaymentMethodTotal
	for rows.Next() {
		var m PaymentMethodTotal
		if err := rows.Scan(&m.Method, &m.Amount, &m.Count); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetShiftsForPeriod returns every shift opened inside the window.
func (r *Repository) GetShiftsForPeriod(ctx context.Context, p period.ReportingPeriod) ([]Shift, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, business_id, register_id, staff_id, staff_name,
			opening_float, cash_in, cash_out, expected_cash, actual_cash, opened_at, closed_at
		FROM shifts
		WHERE business_id = $1 AND opened_at >= $2 AND opened_at < $3
		ORDER BY opened_at`,
		p.BusinessID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("shifts for period: %w", err)
	}
	defer rows.Close()

	var out []Shift
	for rows.Next() {
		var s Shift
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.RegisterID, &s.StaffID, &s.StaffName,
			&s.OpeningFloat, &s.CashIn, &s.CashOut, &s.ExpectedCash, &s.ActualCash, &s.OpenedAt, &s.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetCategoryBreakdown attributes item revenue to product categories.
func (r *Repository) GetCategoryBreakdown(ctx context.Context, p period.ReportingPeriod) ([]CategorySales, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT pr.category,
			COALESCE(SUM(oi.line_total), 0),
			COALESCE(SUM(oi.quantity), 0),
			COUNT(DISTINCT o.id)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products pr ON pr.id = oi.product_id
		WHERE o.business_id = $1
		  AND o.completed_at >= $2 AND o.completed_at < $3
		  AND o.status IN ('completed','partially_refunded')
		GROUP BY pr.category
		ORDER BY SUM(oi.line_total) DESC`,
		p.BusinessID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	defer rows.Close()

	var out []CategorySales
	for rows.Next() {
		var c CategorySales
		if err := rows.Scan(&c.Category, &c.Revenue, &c.Quantity, &c.OrderSpan); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetProductSales returns per-product revenue ordered by revenue descending
// then product ID ascending so ranking ties break deterministically.
func (r *Repository) GetProductSales(ctx context.Context, p period.ReportingPeriod, limit int) ([]ProductSales, error) {
	q := `
		SELECT pr.id, pr.sku, pr.name, pr.category,
			COALESCE(SUM(oi.line_total), 0),
			COALESCE(SUM(oi.quantity), 0),
			COALESCE(SUM(oi.unit_cost * oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products pr ON pr.id = oi.product_id
		WHERE o.business_id = $1
		  AND o.completed_at >= $2 AND o.completed_at < $3
		  AND o.status IN ('completed','partially_refunded')
		GROUP BY pr.id, pr.sku, pr.name, pr.category
		ORDER BY SUM(oi.line_total) DESC, pr.id ASC`
	args := []interface{}{p.BusinessID, p.Start, p.End}
	if limit > 0 {
		q += " LIMIT $4"
		args = append(args, limit)
	}

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("product sales: %w", err)
	}
	defer rows.Close()

	var out []ProductSales
	for rows.Next() {
		var ps ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.SKU, &ps.Name, &ps.Category,
			&ps.Revenue, &ps.Quantity, &ps.Cost); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// GetHourlyHistogram buckets orders by hour in the tenant's timezone.
func (r *Repository) GetHourlyHistogram(ctx context.Context, p period.ReportingPeriod, tz string) ([]HourlyBucket, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT EXTRACT(HOUR FROM completed_at AT TIME ZONE $4)::int AS hr,
			COALESCE(SUM(total), 0), COUNT(*)
		FROM orders
		WHERE business_id = $1
		  AND completed_at >= $2 AND completed_at < $3
		  AND status IN ('completed','partially_refunded')
		GROUP BY hr
		ORDER BY hr`,
		p.BusinessID, p.Start, p.End, tz)
	if err != nil {
		return nil, fmt.Errorf("hourly histogram: %w", err)
	}
	defer rows.Close()

	buckets := make([]HourlyBucket, 24)
	for i := range buckets {
		buckets[i].Hour = i
	}
	for rows.Next() {
		var b HourlyBucket
		if err := rows.Scan(&b.Hour, &b.Revenue, &b.OrderCount); err != nil {
			return nil, err
		}
		if b.Hour >= 0 && b.Hour < 24 {
			buckets[b.Hour] = b
		}
	}
	return buckets, rows.Err()
}

// GetCustomerCounts splits the period's buyers into new and returning.
// A customer is new when their profile was first seen inside the window;
// returning is unique minus new, floored at zero by construction.
func (r *Repository) GetCustomerCounts(ctx context.Context, p period.ReportingPeriod) (*CustomerCounts, error) {
	var c CustomerCounts
	err := r.db.Pool.QueryRow(ctx, `
		WITH period_orders AS (
			SELECT customer_id
			FROM orders
			WHERE business_id = $1
			  AND completed_at >= $2 AND completed_at < $3
			  AND status IN ('completed','partially_refunded')
		),
		known AS (
			SELECT DISTINCT c.id, c.first_seen_at
			FROM period_orders po
			JOIN customers c ON c.id = po.customer_id
			WHERE c.business_id = $1
		)
		SELECT
			(SELECT COUNT(*) FROM known),
			(SELECT COUNT(*) FROM known WHERE first_seen_at >= $2 AND first_seen_at < $3),
			(SELECT COUNT(*) FROM period_orders WHERE customer_id IS NULL)`,
		p.BusinessID, p.Start, p.End,
	).Scan(&c.Total, &c.New, &c.Anonymous)
	if err != nil {
		return nil, fmt.Errorf("customer counts: %w", err)
	}
	c.Returning = c.Total - c.New
	if c.Returning < 0 {
		c.Returning = 0
	}
	return &c, nil
}

// GetDailyRevenueSeries returns one row per calendar day in the window,
// including zero rows for days with no sales, so the forecaster sees a
// gapless series.
func (r *Repository) GetDailyRevenueSeries(ctx context.Context, p period.ReportingPeriod, tz string) ([]DailyRevenue, error) {
	rows, err := r.db.Pool.Query(ctx, `
		WITH days AS (
			SELECT generate_series(
				($2 AT TIME ZONE $4)::date,
				(($3 AT TIME ZONE $4)::date - INTERVAL '1 day')::date,
				'1 day'
			)::date AS day
		),
		sales AS (
			SELECT (completed_at AT TIME ZONE $4)::date AS day,
				SUM(total) AS revenue, COUNT(*) AS cnt
			FROM orders
			WHERE business_id = $1
			  AND completed_at >= $2 AND completed_at < $3
			  AND status IN ('completed','partially_refunded')
			GROUP BY 1
		)
		SELECT d.day, COALESCE(s.revenue, 0), COALESCE(s.cnt, 0)
		FROM days d
		LEFT JOIN sales s ON s.day = d.day
		ORDER BY d.day`,
		p.BusinessID, p.Start, p.End, tz)
	if err != nil {
		return nil, fmt.Errorf("daily revenue series: %w", err)
	}
	defer rows.Close()

	var out []DailyRevenue
	for rows.Next() {
		var d DailyRevenue
		if err := rows.Scan(&d.Date, &d.Revenue, &d.OrderCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetCustomerActivity returns recency/frequency/monetary raw rows for every
// identified customer with at least one order in the window.
func (r *Repository) GetCustomerActivity(ctx context.Context, p period.ReportingPeriod) ([]CustomerActivity, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id, c.name,
			MAX(o.completed_at),
			COUNT(o.id),
			COALESCE(SUM(o.total), 0)
		FROM customers c
		JOIN orders o ON o.customer_id = c.id
		WHERE c.business_id = $1
		  AND o.business_id = $1
		  AND o.completed_at >= $2 AND o.completed_at < $3
		  AND o.status IN ('completed','partially_refunded')
		GROUP BY c.id, c.name
		ORDER BY c.id`,
		p.BusinessID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("customer activity: %w", err)
	}
	defer rows.Close()

	var out []CustomerActivity
	for rows.Next() {
		var a CustomerActivity
		if err := rows.Scan(&a.CustomerID, &a.Name, &a.LastPurchase, &a.OrderCount, &a.TotalSpend); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetProductVelocityRows returns current stock plus units sold in the
// window for every active product, including products with zero sales.
func (r *Repository) GetProductVelocityRows(ctx context.Context, p period.ReportingPeriod) ([]ProductVelocity, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT pr.id, pr.sku, pr.name, pr.stock_quantity,
			COALESCE(SUM(oi.quantity) FILTER (
				WHERE o.completed_at >= $2 AND o.completed_at < $3
				  AND o.status IN ('completed','partially_refunded')
			), 0)
		FROM products pr
		LEFT JOIN order_items oi ON oi.product_id = pr.id
		LEFT JOIN orders o ON o.id = oi.order_id AND o.business_id = $1
		WHERE pr.business_id = $1 AND pr.active
		GROUP BY pr.id, pr.sku, pr.name, pr.stock_quantity
		ORDER BY pr.id`,
		p.BusinessID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("product velocity: %w", err)
	}
	defer rows.Close()

	var out []ProductVelocity
	for rows.Next() {
		var v ProductVelocity
		if err := rows.Scan(&v.ProductID, &v.SKU, &v.Name, &v.StockQuantity, &v.UnitsSold); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetStaffSales aggregates revenue per staff member for the window.
func (r *Repository) GetStaffSales(ctx context.Context, p period.ReportingPeriod) ([]StaffSales, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT o.staff_id,
			COALESCE(SUM(o.total), 0),
			COUNT(DISTINCT o.id),
			COALESCE(SUM(oi.quantity), 0)
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.business_id = $1
		  AND o.completed_at >= $2 AND o.completed_at < $3
		  AND o.status IN ('completed','partially_refunded')
		  AND o.staff_id IS NOT NULL
		GROUP BY o.staff_id
		ORDER BY SUM(o.total) DESC`,
		p.BusinessID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("staff sales: %w", err)
	}
	defer rows.Close()

	var out []StaffSales
	for rows.Next() {
		var s StaffSales
		if err := rows.Scan(&s.StaffID, &s.Revenue, &s.OrderCount, &s.ItemsSold); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
