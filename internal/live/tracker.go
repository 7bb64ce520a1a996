// Package live maintains the low-latency "today" counters: sales total,
// order count and current-hour sales per business. The path is purely
// incremental — atomic redis increments on each order event, never a
// recompute — and is reconciled against the authoritative end-of-day
// figures once the day's report finalizes.
package live

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"pos-analytics/internal/cache"
	"pos-analytics/internal/database"
	"pos-analytics/internal/eod"
	"pos-analytics/internal/events"
	"pos-analytics/internal/money"
)

// counterTTL keeps yesterday's counters around long enough for the EOD
// reconcile, then lets them expire.
const counterTTL = 48 * time.Hour

// Metrics is the live counter snapshot pushed to subscribers.
type Metrics struct {
	BusinessID       string  `json:"business_id"`
	TodaySales       float64 `json:"today_sales"`
	TodayOrders      int64   `json:"today_orders"`
	CurrentHourSales float64 `json:"current_hour_sales"`
}

// Tracker owns the live counters and their event wiring.
type Tracker struct {
	cache  *cache.CacheService
	repo   *database.Repository
	bus    *events.Bus
	logger zerolog.Logger
}

// NewTracker creates the tracker and subscribes it to the order and
// report lifecycle events.
func NewTracker(cs *cache.CacheService, repo *database.Repository, bus *events.Bus, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		cache:  cs,
		repo:   repo,
		bus:    bus,
		logger: logger.With().Str("component", "LiveTracker").Logger(),
	}
	bus.Subscribe(events.OrderCompleted, t.onOrderCompleted)
	bus.Subscribe(events.OrderRefunded, t.onOrderRefunded)
	bus.Subscribe(events.EODCompleted, t.onEODCompleted)
	return t
}

func salesKey(businessID, date string) string {
	return fmt.Sprintf("live:%s:%s:sales", businessID, date)
}

func ordersKey(businessID, date string) string {
	return fmt.Sprintf("live:%s:%s:orders", businessID, date)
}

func hourKey(businessID, date string, hour int) string {
	return fmt.Sprintf("live:%s:%s:%02d:sales", businessID, date, hour)
}

// RecordSale atomically bumps the day and hour counters. Atomic INCRs,
// never read-modify-write, so concurrent completions cannot lose updates.
func (t *Tracker) RecordSale(ctx context.Context, businessID string, amount float64, at time.Time) error {
	client := t.cache.Client()
	if client == nil {
		return cache.ErrUnavailable
	}

	date := at.Format("2006-01-02")
	pipe := client.TxPipeline()
	sales := pipe.IncrByFloat(ctx, salesKey(businessID, date), amount)
	orders := pipe.Incr(ctx, ordersKey(businessID, date))
	hour := pipe.IncrByFloat(ctx, hourKey(businessID, date, at.Hour()), amount)
	pipe.Expire(ctx, salesKey(businessID, date), counterTTL)
	pipe.Expire(ctx, ordersKey(businessID, date), counterTTL)
	pipe.Expire(ctx, hourKey(businessID, date, at.Hour()), counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("live increment: %w", err)
	}

	t.bus.Publish(events.Event{
		Type:       events.MetricsUpdate,
		BusinessID: businessID,
		Payload: Metrics{
			BusinessID:       businessID,
			TodaySales:       money.Round2(sales.Val()),
			TodayOrders:      orders.Val(),
			CurrentHourSales: money.Round2(hour.Val()),
		},
	})
	return nil
}

// Snapshot reads the current counters for a business day.
func (t *Tracker) Snapshot(ctx context.Context, businessID string, at time.Time) (*Metrics, error) {
	client := t.cache.Client()
	if client == nil {
		return nil, cache.ErrUnavailable
	}

	date := at.Format("2006-01-02")
	vals, err := client.MGet(ctx,
		salesKey(businessID, date),
		ordersKey(businessID, date),
		hourKey(businessID, date, at.Hour()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("live snapshot: %w", err)
	}

	m := &Metrics{BusinessID: businessID}
	m.TodaySales = money.Round2(parseFloat(vals[0]))
	m.TodayOrders = int64(parseFloat(vals[1]))
	m.CurrentHourSales = money.Round2(parseFloat(vals[2]))
	return m, nil
}

func (t *Tracker) onOrderCompleted(evt events.Event) {
	order, ok := evt.Payload.(*database.Order)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.RecordSale(ctx, evt.BusinessID, order.Total, order.CompletedAt); err != nil {
		t.logger.Warn().
			Str("business_id", evt.BusinessID).
			Err(err).
			Msg("live counter update failed")
	}
}

func (t *Tracker) onOrderRefunded(evt events.Event) {
	ref, ok := evt.Payload.(*database.Refund)
	if !ok {
		return
	}
	client := t.cache.Client()
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	date := ref.RefundedAt.Format("2006-01-02")
	if err := client.IncrByFloat(ctx, salesKey(evt.BusinessID, date), -ref.Amount).Err(); err != nil {
		t.logger.Warn().
			Str("business_id", evt.BusinessID).
			Err(err).
			Msg("live refund adjustment failed")
	}
}

// onEODCompleted reconciles the day's counters against the authoritative
// report: the incremental figures are overwritten, not merged.
func (t *Tracker) onEODCompleted(evt events.Event) {
	report, ok := evt.Payload.(*eod.Report)
	if !ok {
		return
	}
	client := t.cache.Client()
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	date := report.ReportDate.Format("2006-01-02")

	pipe := client.TxPipeline()
	pipe.Set(ctx, salesKey(evt.BusinessID, date), report.Sales.NetSales, counterTTL)
	pipe.Set(ctx, ordersKey(evt.BusinessID, date), report.Sales.OrderCount, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn().
			Str("business_id", evt.BusinessID).
			Str("date", date).
			Err(err).
			Msg("live reconcile failed")
		return
	}
	t.logger.Info().
		Str("business_id", evt.BusinessID).
		Str("date", date).
		Float64("net_sales", report.Sales.NetSales).
		Msg("live counters reconciled against eod report")
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
