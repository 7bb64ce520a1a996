package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pos-analytics/internal/logging"
)

// Repository provides persistence for the transactional POS entities and
// the read queries the analytics engines are built on.
type Repository struct {
	db  *DB
	log *logging.Logger
}

// NewRepository creates a repository over the given pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, log: logging.WithComponent("repository")}
}

// GetBusiness loads one tenant.
func (r *Repository) GetBusiness(ctx context.Context, businessID string) (*Business, error) {
	var b Business
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, timezone, currency, created_at
		FROM businesses WHERE id = $1`, businessID,
	).Scan(&b.ID, &b.Name, &b.Timezone, &b.Currency, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Entity: "business", ID: businessID}
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

// ListBusinesses returns all tenants, used by the nightly scheduler.
func (r *Repository) ListBusinesses(ctx context.Context) ([]Business, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, timezone, currency, created_at
		FROM businesses ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var out []Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Timezone, &b.Currency, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateOrder inserts an order with its items and decrements stock in one
// transaction. The order ID is filled in on success.
func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, business_id, shift_id, customer_id, staff_id, status,
			subtotal, discount_total, tax_total, tip_total, total, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		order.ID, order.BusinessID, order.ShiftID, order.CustomerID, order.StaffID, order.Status,
		order.Subtotal, order.DiscountTotal, order.TaxTotal, order.TipTotal, order.Total, order.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, unit_cost, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitCost, item.LineTotal,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = NOW()
			WHERE id = $2 AND business_id = $3`,
			item.Quantity, item.ProductID, order.BusinessID)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// RecordPayment captures one payment against an order.
func (r *Repository) RecordPayment(ctx context.Context, p *Payment) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO payments (business_id, order_id, method, amount, captured_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.BusinessID, p.OrderID, p.Method, p.Amount, p.CapturedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

// RecordRefund inserts a refund and flips the order status when the order
// is refunded in full.
func (r *Repository) RecordRefund(ctx context.Context, ref *Refund) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO refunds (business_id, order_id, amount, reason, refunded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ref.BusinessID, ref.OrderID, ref.Amount, ref.Reason, ref.RefundedAt,
	).Scan(&ref.ID)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = CASE
			WHEN total <= (SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE order_id = $1)
				THEN $2
			ELSE $3
		END
		WHERE id = $1`,
		ref.OrderID, OrderStatusRefunded, OrderStatusPartiallyRefunded)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	return tx.Commit(ctx)
}

// OpenShift starts a register session.
func (r *Repository) OpenShift(ctx context.Context, s *Shift) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO shifts (id, business_id, register_id, staff_id, staff_name, opening_float, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.BusinessID, s.RegisterID, s.StaffID, s.StaffName, s.OpeningFloat, s.OpenedAt)
	if err != nil {
		return fmt.Errorf("open shift: %w", err)
	}
	return nil
}

// CloseShift records the closing count. ActualCash may be nil when the
// operator skipped the count; the variance step handles that downstream.
func (r *Repository) CloseShift(ctx context.Context, shiftID string, cashIn, cashOut float64, expectedCash, actualCash *float64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE shifts SET cash_in = $1, cash_out = $2, expected_cash = $3, actual_cash = $4, closed_at = NOW()
		WHERE id = $5 AND closed_at IS NULL`,
		cashIn, cashOut, expectedCash, actualCash, shiftID)
	if err != nil {
		return fmt.Errorf("close shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Entity: "open shift", ID: shiftID}
	}
	return nil
}

// UpsertProduct inserts or updates a product keyed by (business, sku).
func (r *Repository) UpsertProduct(ctx context.Context, p *Product) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO products (business_id, sku, name, category, unit_price, unit_cost, stock_quantity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (business_id, sku) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			unit_price = EXCLUDED.unit_price,
			unit_cost = EXCLUDED.unit_cost,
			stock_quantity = EXCLUDED.stock_quantity,
			active = EXCLUDED.active,
			updated_at = NOW()
		RETURNING id`,
		p.BusinessID, p.SKU, p.Name, p.Category, p.UnitPrice, p.UnitCost, p.StockQuantity, p.Active,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// GetProduct loads one product scoped to its tenant.
func (r *Repository) GetProduct(ctx context.Context, businessID, productID string) (*Product, error) {
	var p Product
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, business_id, sku, name, category, unit_price, unit_cost,
			stock_quantity, active, created_at, updated_at
		FROM products WHERE business_id = $1 AND id = $2`,
		businessID, productID,
	).Scan(&p.ID, &p.BusinessID, &p.SKU, &p.Name, &p.Category, &p.UnitPrice, &p.UnitCost,
		&p.StockQuantity, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Entity: "product", ID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// UpsertCustomer inserts a customer, or refreshes the profile fields when
// the email already exists for the tenant. Customers without an email are
// always inserted fresh since there is nothing to match on.
func (r *Repository) UpsertCustomer(ctx context.Context, c *Customer) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO customers (business_id, name, email, phone, first_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, email) WHERE email IS NOT NULL DO UPDATE SET
			name = EXCLUDED.name,
			phone = COALESCE(EXCLUDED.phone, customers.phone)
		RETURNING id`,
		c.BusinessID, c.Name, c.Email, c.Phone, c.FirstSeenAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}
