package database

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is the sentinel returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// Order statuses. Completed and partially refunded orders count toward
// gross sales; refunded, voided and cancelled orders do not.
const (
	OrderStatusCompleted         = "completed"
	OrderStatusPartiallyRefunded = "partially_refunded"
	OrderStatusRefunded          = "refunded"
	OrderStatusVoided            = "voided"
	OrderStatusCancelled         = "cancelled"
)

// Business is a tenant of the analytics engine.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// Location returns the tenant's time.Location, UTC on failure.
func (b Business) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Product is a sellable item with current stock on hand.
type Product struct {
	ID            string    `json:"id"`
	BusinessID    string    `json:"business_id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	UnitPrice     float64   `json:"unit_price"`
	UnitCost      float64   `json:"unit_cost"`
	StockQuantity int       `json:"stock_quantity"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Customer is a known buyer, used by the RFM engine.
type Customer struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	Name        string    `json:"name"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Shift is one register session. ActualCash stays nil until the closing
// count is recorded.
type Shift struct {
	ID           string     `json:"id"`
	BusinessID   string     `json:"business_id"`
	RegisterID   string     `json:"register_id"`
	StaffID      *string    `json:"staff_id,omitempty"`
	StaffName    string     `json:"staff_name"`
	OpeningFloat float64    `json:"opening_float"`
	CashIn       float64    `json:"cash_in"`
	CashOut      float64    `json:"cash_out"`
	ExpectedCash *float64   `json:"expected_cash,omitempty"`
	ActualCash   *float64   `json:"actual_cash,omitempty"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// Order is a completed sale.
type Order struct {
	ID            string    `json:"id"`
	BusinessID    string    `json:"business_id"`
	ShiftID       *string   `json:"shift_id,omitempty"`
	CustomerID    *string   `json:"customer_id,omitempty"`
	StaffID       *string   `json:"staff_id,omitempty"`
	Status        string    `json:"status"`
	Subtotal      float64   `json:"subtotal"`
	DiscountTotal float64   `json:"discount_total"`
	TaxTotal      float64   `json:"tax_total"`
	TipTotal      float64   `json:"tip_total"`
	Total         float64   `json:"total"`
	CompletedAt   time.Time `json:"completed_at"`
	Items         []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order. UnitCost is captured at sale time so
// margin math survives later price changes.
type OrderItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	UnitCost  float64 `json:"unit_cost"`
	LineTotal float64 `json:"line_total"`
}

// Payment is a captured payment against an order.
type Payment struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	OrderID    string    `json:"order_id"`
	Method     string    `json:"method"`
	Amount     float64   `json:"amount"`
	CapturedAt time.Time `json:"captured_at"`
}

// Refund is money returned against a completed order.
type Refund struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	OrderID    string    `json:"order_id"`
	Amount     float64   `json:"amount"`
	Reason     string    `json:"reason"`
	RefundedAt time.Time `json:"refunded_at"`
}

// EODReportRow is the persisted form of an end-of-day report. Payload holds
// the full report JSON; the columns alongside carry the workflow state.
type EODReportRow struct {
	ID               string     `json:"id"`
	BusinessID       string     `json:"business_id"`
	ReportDate       time.Time  `json:"report_date"`
	Status           string     `json:"status"`
	Payload          []byte     `json:"payload,omitempty"`
	DiscrepancyNotes *string    `json:"discrepancy_notes,omitempty"`
	ReviewedBy       *string    `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	GeneratedAt      *time.Time `json:"generated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
