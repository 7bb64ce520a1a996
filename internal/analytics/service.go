package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pos-analytics/config"
	"pos-analytics/internal/cache"
	"pos-analytics/internal/database"
	"pos-analytics/internal/logging"
	"pos-analytics/internal/money"
	"pos-analytics/internal/period"
)

// Service orchestrates the engines: it runs aggregation queries, feeds the
// classifiers, and fronts everything with the cache tier. Database errors
// propagate loudly; individual dashboard steps degrade to defaults with a
// recorded warning instead of failing the whole response.
type Service struct {
	repo  *database.Repository
	cache *cache.CacheService
	cfg   config.AnalyticsConfig
	log   *logging.Logger
}

// NewService creates the analytics service.
func NewService(repo *database.Repository, cs *cache.CacheService, cfg config.AnalyticsConfig) *Service {
	return &Service{
		repo:  repo,
		cache: cs,
		cfg:   cfg,
		log:   logging.WithComponent("analytics"),
	}
}

// Dashboard is the period overview the storefront screens poll. Partial is
// set when any metric fell back to a default; DegradedMetrics names them.
type Dashboard struct {
	BusinessID       string                        `json:"business_id"`
	PeriodStart      time.Time                     `json:"period_start"`
	PeriodEnd        time.Time                     `json:"period_end"`
	Sales            database.SalesSummary         `json:"sales"`
	OrderCounts      database.OrderStatusCounts    `json:"order_counts"`
	Payments         []database.PaymentMethodTotal `json:"payments"`
	Customers        database.CustomerCounts       `json:"customers"`
	HourlyBreakdown  []database.HourlyBucket       `json:"hourly_breakdown"`
	TopProducts      []database.ProductSales       `json:"top_products"`
	Partial          bool                          `json:"partial"`
	DegradedMetrics  []string                      `json:"degraded_metrics,omitempty"`
	GeneratedAt      time.Time                     `json:"generated_at"`
}

// GetDashboard builds the dashboard for a period, cache-first unless
// refresh is set. Each aggregation step that fails is logged and replaced
// with zeros so the rest of the dashboard still renders.
func (s *Service) GetDashboard(ctx context.Context, p period.ReportingPeriod, refresh bool) (*Dashboard, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(p.BusinessID, cache.MetricDashboard, periodParams(p))
	if !refresh {
		var cached Dashboard
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	biz, err := s.repo.GetBusiness(ctx, p.BusinessID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		BusinessID:  p.BusinessID,
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
		GeneratedAt: time.Now().UTC(),
	}

	degrade := func(metric string, err error) {
		s.log.Warn("dashboard metric degraded to default", "metric", metric, "business_id", p.BusinessID, "error", err)
		d.Partial = true
		d.DegradedMetrics = append(d.DegradedMetrics, metric)
	}

	if sales, err := s.repo.GetSalesSummary(ctx, p); err != nil {
		if isStoreDown(err) {
			return nil, err
		}
		degrade("sales", err)
	} else {
		d.Sales = *sales
	}

	if counts, err := s.repo.GetOrderStatusCounts(ctx, p); err != nil {
		degrade("order_counts", err)
	} else {
		d.OrderCounts = *counts
	}

	if payments, err := s.repo.GetPaymentBreakdown(ctx, p); err != nil {
		degrade("payments", err)
	} else {
		for i := range payments {
			payments[i].Amount = money.Round2(payments[i].Amount)
		}
		d.Payments = payments
	}

	if customers, err := s.repo.GetCustomerCounts(ctx, p); err != nil {
		degrade("customers", err)
	} else {
		d.Customers = *customers
	}

	if hourly, err := s.repo.GetHourlyHistogram(ctx, p, biz.Timezone); err != nil {
		degrade("hourly_breakdown", err)
	} else {
		for i := range hourly {
			hourly[i].Revenue = money.Round2(hourly[i].Revenue)
		}
		d.HourlyBreakdown = hourly
	}

	if top, err := s.repo.GetProductSales(ctx, p, 10); err != nil {
		degrade("top_products", err)
	} else {
		for i := range top {
			top[i].Revenue = money.Round2(top[i].Revenue)
		}
		d.TopProducts = top
	}

	// Partial dashboards are never cached: the next request should retry
	// the failed steps rather than pin a degraded view for a full TTL.
	if !d.Partial {
		s.cacheSet(ctx, key, cache.MetricDashboard, d)
	}
	return d, nil
}

// GetABC classifies the period's products by revenue contribution.
func (s *Service) GetABC(ctx context.Context, p period.ReportingPeriod, refresh bool) ([]ABCRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(p.BusinessID, cache.MetricABC, periodParams(p))
	if !refresh {
		var cached []ABCRecord
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.repo.GetProductSales(ctx, p, 0)
	if err != nil {
		return nil, err
	}
	records := ClassifyABC(rows)
	s.cacheSet(ctx, key, cache.MetricABC, records)
	return records, nil
}

// RFMResult pairs scored customers with their segment rollup.
type RFMResult struct {
	Records    []RFMRecord  `json:"records"`
	Segments   []RFMSummary `json:"segments"`
	WindowDays int          `json:"window_days"`
	AsOf       time.Time    `json:"as_of"`
}

// GetRFM scores every customer active in the trailing window. Quintiles
// are recomputed from the live population on every computation.
func (s *Service) GetRFM(ctx context.Context, businessID string, refresh bool) (*RFMResult, error) {
	windowDays := s.cfg.RFMWindowDays
	if windowDays <= 0 {
		windowDays = 365
	}

	key := cache.Key(businessID, cache.MetricRFM, fmt.Sprintf("window:%d", windowDays))
	if !refresh {
		var cached RFMResult
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	p := period.ReportingPeriod{
		BusinessID: businessID,
		Start:      now.AddDate(0, 0, -windowDays),
		End:        now,
	}
	rows, err := s.repo.GetCustomerActivity(ctx, p)
	if err != nil {
		return nil, err
	}

	records := ScoreRFM(rows, now)
	result := &RFMResult{
		Records:    records,
		Segments:   SummarizeRFM(records),
		WindowDays: windowDays,
		AsOf:       now,
	}
	s.cacheSet(ctx, key, cache.MetricRFM, result)
	return result, nil
}

// GetForecast projects revenue forward from the trailing 90 days.
func (s *Service) GetForecast(ctx context.Context, businessID string, horizonDays int, refresh bool) (*ForecastResult, error) {
	if horizonDays <= 0 {
		horizonDays = s.cfg.ForecastHorizonDays
	}

	key := cache.Key(businessID, cache.MetricForecast, fmt.Sprintf("horizon:%d", horizonDays))
	if !refresh {
		var cached ForecastResult
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	series, err := s.trailingSeries(ctx, businessID, 90)
	if err != nil {
		return nil, err
	}

	result, err := BuildForecast(series, horizonDays, s.cfg.TrendThresholdPct, s.cfg.ForecastMinDays)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, cache.MetricForecast, result)
	return result, nil
}

// Trends is the revenue trend view: the daily series plus moving averages
// and the fitted trend, without the forward projection.
type Trends struct {
	Series             []database.DailyRevenue `json:"series"`
	MovingAverage7Day  float64                 `json:"moving_average_7_day"`
	MovingAverage30Day float64                 `json:"moving_average_30_day"`
	Trend              string                  `json:"trend"`
	TrendPercentage    float64                 `json:"trend_percentage"`
}

// GetTrends returns the trailing revenue trend for the given window.
func (s *Service) GetTrends(ctx context.Context, businessID string, days int, refresh bool) (*Trends, error) {
	if days <= 0 {
		days = 30
	}

	key := cache.Key(businessID, cache.MetricTrends, fmt.Sprintf("days:%d", days))
	if !refresh {
		var cached Trends
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	series, err := s.trailingSeries(ctx, businessID, days)
	if err != nil {
		return nil, err
	}
	for i := range series {
		series[i].Revenue = money.Round2(series[i].Revenue)
	}

	t := &Trends{
		Series:             series,
		MovingAverage7Day:  money.Round2(trailingAverage(series, 7)),
		MovingAverage30Day: money.Round2(trailingAverage(series, 30)),
		Trend:              TrendStable,
	}
	if fc, err := BuildForecast(series, 1, s.cfg.TrendThresholdPct, s.cfg.ForecastMinDays); err == nil {
		t.Trend = fc.Trend
		t.TrendPercentage = fc.TrendPercentage
	}
	s.cacheSet(ctx, key, cache.MetricTrends, t)
	return t, nil
}

// GetTopProducts ranks the period's products by revenue.
func (s *Service) GetTopProducts(ctx context.Context, p period.ReportingPeriod, limit int, refresh bool) ([]database.ProductSales, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	key := cache.Key(p.BusinessID, cache.MetricProducts, periodParams(p)+fmt.Sprintf(":limit:%d", limit))
	if !refresh {
		var cached []database.ProductSales
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.repo.GetProductSales(ctx, p, limit)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Revenue = money.Round2(rows[i].Revenue)
		rows[i].Cost = money.Round2(rows[i].Cost)
	}
	s.cacheSet(ctx, key, cache.MetricProducts, rows)
	return rows, nil
}

// GetStaffPerformance ranks staff by revenue for the period.
func (s *Service) GetStaffPerformance(ctx context.Context, p period.ReportingPeriod, refresh bool) ([]database.StaffSales, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(p.BusinessID, cache.MetricStaff, periodParams(p))
	if !refresh {
		var cached []database.StaffSales
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.repo.GetStaffSales(ctx, p)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Revenue = money.Round2(rows[i].Revenue)
	}
	s.cacheSet(ctx, key, cache.MetricStaff, rows)
	return rows, nil
}

// GetInventoryIntelligence computes velocity bands and reorder advice.
func (s *Service) GetInventoryIntelligence(ctx context.Context, businessID string, refresh bool) ([]InventoryRecord, error) {
	key := cache.Key(businessID, cache.MetricInventory, "current")
	if !refresh {
		var cached []InventoryRecord
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	params := DefaultReorderParams()
	if s.cfg.VelocityWindowDays > 0 {
		params.WindowDays = s.cfg.VelocityWindowDays
	}

	now := time.Now().UTC()
	p := period.ReportingPeriod{
		BusinessID: businessID,
		Start:      now.AddDate(0, 0, -params.WindowDays),
		End:        now,
	}
	rows, err := s.repo.GetProductVelocityRows(ctx, p)
	if err != nil {
		return nil, err
	}

	records := AnalyzeInventory(rows, params)
	s.cacheSet(ctx, key, cache.MetricInventory, records)
	return records, nil
}

// GetBaseline contextualizes one day's revenue against trailing averages.
func (s *Service) GetBaseline(ctx context.Context, businessID string, date time.Time, loc *time.Location) (*Baseline, error) {
	day := period.ForDate(businessID, date, loc)

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	sales, err := s.repo.GetSalesSummary(ctx, day)
	if err != nil {
		return nil, err
	}

	trailing := period.ReportingPeriod{
		BusinessID: businessID,
		Start:      day.Start.AddDate(0, 0, -30),
		End:        day.Start,
	}
	biz, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	series, err := s.repo.GetDailyRevenueSeries(ctx, trailing, biz.Timezone)
	if err != nil {
		return nil, err
	}

	b := BuildBaseline(sales.GrossSales, series)
	return &b, nil
}

// Warm recomputes the full cacheable surface for a business, running up to
// CacheWarmConcurrency metrics at once. One failing metric is logged and
// skipped; the rest still populate. The returned map records the
// per-metric outcome.
func (s *Service) Warm(ctx context.Context, businessID string) map[string]string {
	biz, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return map[string]string{"business": err.Error()}
	}

	today, _ := period.FromPreset(businessID, period.PresetToday, time.Now(), biz.Location())

	steps := []struct {
		metric string
		run    func() error
	}{
		{cache.MetricDashboard, func() error { _, err := s.GetDashboard(ctx, today, true); return err }},
		{cache.MetricTrends, func() error { _, err := s.GetTrends(ctx, businessID, 30, true); return err }},
		{cache.MetricForecast, func() error { _, err := s.GetForecast(ctx, businessID, 0, true); return err }},
		{cache.MetricABC, func() error { _, err := s.GetABC(ctx, today, true); return err }},
		{cache.MetricRFM, func() error { _, err := s.GetRFM(ctx, businessID, true); return err }},
		{cache.MetricProducts, func() error { _, err := s.GetTopProducts(ctx, today, 10, true); return err }},
		{cache.MetricStaff, func() error { _, err := s.GetStaffPerformance(ctx, today, true); return err }},
		{cache.MetricInventory, func() error { _, err := s.GetInventoryIntelligence(ctx, businessID, true); return err }},
	}

	limit := s.cfg.CacheWarmConcurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	results := make(map[string]string, len(steps))
	for _, step := range steps {
		wg.Add(1)
		sem <- struct{}{}
		go func(metric string, run func() error) {
			defer wg.Done()
			defer func() { <-sem }()

			err := run()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("cache warm step failed", "metric", metric, "business_id", businessID, "error", err)
				results[metric] = err.Error()
				return
			}
			results[metric] = "ok"
		}(step.metric, step.run)
	}
	wg.Wait()
	return results
}

// InvalidateMetric drops every cached entry of one metric for a business.
func (s *Service) InvalidateMetric(ctx context.Context, businessID, metric string) (int, error) {
	return s.cache.DeletePattern(ctx, cache.MetricPattern(businessID, metric))
}

// InvalidateBusiness drops every cached entry for a business.
func (s *Service) InvalidateBusiness(ctx context.Context, businessID string) (int, error) {
	return s.cache.DeletePattern(ctx, cache.BusinessPattern(businessID))
}

// InvalidateClassifications drops the slow-moving classification caches,
// used by the nightly schedule.
func (s *Service) InvalidateClassifications(ctx context.Context, businessID string) {
	for _, metric := range []string{cache.MetricABC, cache.MetricRFM, cache.MetricForecast, cache.MetricTrends, cache.MetricInventory} {
		if _, err := s.cache.DeletePattern(ctx, cache.MetricPattern(businessID, metric)); err != nil && !errors.Is(err, cache.ErrUnavailable) {
			s.log.Warn("classification invalidation failed", "metric", metric, "business_id", businessID, "error", err)
		}
	}
}

// CacheStats exposes breaker state for the status endpoint.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.GetStats()
}

// queryCtx bounds repository work with the configured query timeout. A
// zero timeout leaves the caller's context untouched.
func (s *Service) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

func (s *Service) trailingSeries(ctx context.Context, businessID string, days int) ([]database.DailyRevenue, error) {
	biz, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	loc := biz.Location()
	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	p := period.ReportingPeriod{
		BusinessID: businessID,
		Start:      midnight.AddDate(0, 0, -days),
		End:        midnight,
	}
	return s.repo.GetDailyRevenueSeries(ctx, p, biz.Timezone)
}

// cacheSet stores a computed result under the metric's policy TTL. Cache
// failures only log: the tier degrades to recompute, never to an error.
func (s *Service) cacheSet(ctx context.Context, key, metric string, value interface{}) {
	if err := s.cache.SetJSON(ctx, key, value, cache.TTLFor(metric)); err != nil && !errors.Is(err, cache.ErrUnavailable) {
		s.log.Warn("cache populate failed", "key", key, "error", err)
	}
}

func periodParams(p period.ReportingPeriod) string {
	return fmt.Sprintf("%s:%s", p.Start.UTC().Format("20060102T1504"), p.End.UTC().Format("20060102T1504"))
}

// isStoreDown distinguishes an unreachable store (fail loudly) from a
// step-level query error (degrade). Context and connection-level failures
// mean nothing else will succeed either.
func isStoreDown(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
