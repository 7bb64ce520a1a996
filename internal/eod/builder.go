package eod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"pos-analytics/config"
	"pos-analytics/internal/cache"
	"pos-analytics/internal/database"
	"pos-analytics/internal/events"
	"pos-analytics/internal/logging"
	"pos-analytics/internal/money"
	"pos-analytics/internal/period"
)

// lowStockThreshold is the unit count below which a product counts as low
// stock in the inventory snapshot.
const lowStockThreshold = 10

// Builder runs the end-of-day build: nine independent aggregation steps
// joined into one report, then status resolution and persistence. Builds
// for the same (business, date) are serialized by an in-process keyed
// mutex plus a redis lock across replicas.
type Builder struct {
	repo  *database.Repository
	cache *cache.CacheService
	bus   *events.Bus
	cfg   config.EODConfig
	log   *logging.Logger

	locker *redislock.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBuilder creates the report builder. The redis lock client is optional;
// without it only in-process serialization applies.
func NewBuilder(repo *database.Repository, cs *cache.CacheService, bus *events.Bus, cfg config.EODConfig) *Builder {
	b := &Builder{
		repo:  repo,
		cache: cs,
		bus:   bus,
		cfg:   cfg,
		log:   logging.WithComponent("eod"),
		locks: make(map[string]*sync.Mutex),
	}
	if client := cs.Client(); client != nil {
		b.locker = redislock.New(client)
	}
	return b
}

func (b *Builder) keyedLock(key string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.locks[key]
	if !ok {
		m = &sync.Mutex{}
		b.locks[key] = m
	}
	return m
}

// Generate builds (or rebuilds) the report for one business day. A report
// already completed or reviewed rejects with ConflictError; pending and
// discrepancy reports are rebuilt from scratch and overwritten in place.
func (b *Builder) Generate(ctx context.Context, businessID string, date time.Time) (*Report, error) {
	biz, err := b.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	loc := biz.Location()
	p := period.ForDate(businessID, date, loc)

	lockKey := fmt.Sprintf("eod:lock:%s:%s", businessID, p.Start.Format("2006-01-02"))
	local := b.keyedLock(lockKey)
	local.Lock()
	defer local.Unlock()

	if b.locker != nil {
		lock, err := b.locker.Obtain(ctx, lockKey, b.cfg.BuildTimeout, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ConflictError{Message: fmt.Sprintf("report build already running for %s on %s", businessID, p.Start.Format("2006-01-02"))}
		}
		if err != nil {
			b.log.Warn("redis lock unavailable, proceeding with local lock only", "key", lockKey, "error", err)
		} else {
			defer lock.Release(context.WithoutCancel(ctx))
		}
	}

	existing, err := b.repo.GetEODReport(ctx, businessID, p.Start)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if existing != nil && !canRegenerate(existing.Status) {
		return nil, regenerateConflict(businessID, p.Start, existing.Status)
	}

	reportID, err := b.repo.MarkEODInProgress(ctx, businessID, p.Start)
	if err != nil {
		return nil, err
	}

	buildCtx, cancel := context.WithTimeout(ctx, b.cfg.BuildTimeout)
	defer cancel()

	report := b.runSteps(buildCtx, p, biz)
	report.ID = reportID
	report.GeneratedAt = time.Now().UTC()

	thresholds := AlertThresholds{
		Discrepancy:   b.cfg.DiscrepancyThreshold,
		VarianceError: b.cfg.VarianceErrorThreshold,
	}
	report.Status = ResolveStatus(report, thresholds)
	report.Alerts = DeriveAlerts(report, thresholds)

	payload, err := json.Marshal(report)
	if err != nil {
		b.rollback(ctx, reportID)
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	var notes *string
	if report.Status == StatusDiscrepancy && report.Cash.Variance != nil {
		n := fmt.Sprintf("cash variance %.2f exceeds %.2f", *report.Cash.Variance, thresholds.Discrepancy)
		notes = &n
	}
	if err := b.repo.FinishEODReport(ctx, reportID, report.Status, payload, notes); err != nil {
		b.rollback(ctx, reportID)
		return nil, err
	}

	b.log.Info("eod report built",
		"business_id", businessID,
		"date", p.Start.Format("2006-01-02"),
		"status", report.Status,
		"net_sales", report.Sales.NetSales,
		"partial", report.Partial)

	b.bus.PublishEODCompleted(businessID, report)
	b.invalidateDay(ctx, businessID)
	return report, nil
}

// runSteps executes the nine aggregation steps concurrently. The steps
// have no data dependency on each other; each is time-boxed on its own so
// one slow query cannot stall the rest. A failed or timed-out step logs a
// warning and leaves its section zeroed, marking the report partial.
func (b *Builder) runSteps(ctx context.Context, p period.ReportingPeriod, biz *database.Business) *Report {
	report := &Report{
		BusinessID: p.BusinessID,
		ReportDate: p.Start,
	}

	var mu sync.Mutex
	degrade := func(step string, err error) {
		b.log.Warn("eod step degraded to default", "step", step, "business_id", p.BusinessID, "error", err)
		mu.Lock()
		report.Partial = true
		report.DegradedSteps = append(report.DegradedSteps, step)
		mu.Unlock()
	}

	type step struct {
		name string
		run  func(ctx context.Context) error
	}
	steps := []step{
		{"sales_summary", func(ctx context.Context) error {
			s, err := b.repo.GetSalesSummary(ctx, p)
			if err != nil {
				return err
			}
			items, err := b.repo.GetItemsSold(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Sales = *s
			report.AvgTicket = money.Round2(s.AvgOrderValue)
			if s.OrderCount > 0 {
				report.ItemsPerTicket = money.Round2(float64(items) / float64(s.OrderCount))
			}
			mu.Unlock()
			return nil
		}},
		{"order_counts", func(ctx context.Context) error {
			c, err := b.repo.GetOrderStatusCounts(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			report.OrderCounts = *c
			mu.Unlock()
			return nil
		}},
		{"payments", func(ctx context.Context) error {
			rows, err := b.repo.GetPaymentBreakdown(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Payments = NormalizePayments(rows)
			mu.Unlock()
			return nil
		}},
		{"cash_and_shifts", func(ctx context.Context) error {
			shifts, err := b.repo.GetShiftsForPeriod(ctx, p)
			if err != nil {
				return err
			}
			summaries := make([]ShiftSummary, len(shifts))
			for i, s := range shifts {
				summaries[i] = ShiftSummary{
					ShiftID:      s.ID,
					RegisterID:   s.RegisterID,
					StaffName:    s.StaffName,
					OpeningFloat: s.OpeningFloat,
					CashIn:       s.CashIn,
					CashOut:      s.CashOut,
					ExpectedCash: s.ExpectedCash,
					ActualCash:   s.ActualCash,
					OpenedAt:     s.OpenedAt,
					ClosedAt:     s.ClosedAt,
				}
			}
			rec := ReconcileCash(summaries)
			mu.Lock()
			report.Shifts = summaries
			report.Cash = rec
			mu.Unlock()
			return nil
		}},
		{"categories", func(ctx context.Context) error {
			rows, err := b.repo.GetCategoryBreakdown(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Categories = BreakdownCategories(rows)
			mu.Unlock()
			return nil
		}},
		{"top_products", func(ctx context.Context) error {
			rows, err := b.repo.GetProductSales(ctx, p, 10)
			if err != nil {
				return err
			}
			for i := range rows {
				rows[i].Revenue = money.Round2(rows[i].Revenue)
			}
			mu.Lock()
			report.TopProducts = rows
			mu.Unlock()
			return nil
		}},
		{"hourly_histogram", func(ctx context.Context) error {
			rows, err := b.repo.GetHourlyHistogram(ctx, p, biz.Timezone)
			if err != nil {
				return err
			}
			for i := range rows {
				rows[i].Revenue = money.Round2(rows[i].Revenue)
			}
			mu.Lock()
			report.HourlySales = rows
			mu.Unlock()
			return nil
		}},
		{"inventory_snapshot", func(ctx context.Context) error {
			// Point-in-time at build, not historical to the period.
			snap, err := b.repo.GetInventorySnapshot(ctx, p.BusinessID, lowStockThreshold)
			if err != nil {
				return err
			}
			snap.TotalValue = money.Round2(snap.TotalValue)
			mu.Lock()
			report.Inventory = *snap
			mu.Unlock()
			return nil
		}},
		{"customer_metrics", func(ctx context.Context) error {
			c, err := b.repo.GetCustomerCounts(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Customers = *c
			mu.Unlock()
			return nil
		}},
	}

	var wg sync.WaitGroup
	for _, s := range steps {
		wg.Add(1)
		go func(s step) {
			defer wg.Done()
			stepCtx, cancel := context.WithTimeout(ctx, b.cfg.StepTimeout)
			defer cancel()
			if err := s.run(stepCtx); err != nil {
				degrade(s.name, err)
			}
		}(s)
	}
	wg.Wait()

	// Empty report sections still need their fixed shapes.
	if report.HourlySales == nil {
		report.HourlySales = make([]database.HourlyBucket, 24)
		for i := range report.HourlySales {
			report.HourlySales[i].Hour = i
		}
	}
	return report
}

// rollback reverts a failed build to pending so the scheduler can retry.
func (b *Builder) rollback(ctx context.Context, reportID string) {
	if err := b.repo.MarkEODFailed(context.WithoutCancel(ctx), reportID); err != nil {
		b.log.Error("failed to roll report back to pending", "report_id", reportID, "error", err)
	}
}

// invalidateDay drops the business's dashboard cache after a build so the
// next dashboard read reflects the finalized figures.
func (b *Builder) invalidateDay(ctx context.Context, businessID string) {
	if _, err := b.cache.DeletePattern(ctx, cache.MetricPattern(businessID, cache.MetricDashboard)); err != nil && !errors.Is(err, cache.ErrUnavailable) {
		b.log.Warn("dashboard invalidation failed", "business_id", businessID, "error", err)
	}
}

// GetReport loads a report for one business day, payload included.
func (b *Builder) GetReport(ctx context.Context, businessID string, date time.Time) (*Report, error) {
	row, err := b.repo.GetEODReport(ctx, businessID, date)
	if err != nil {
		return nil, err
	}
	return reportFromRow(row)
}

// ListReports returns report metadata for a date range.
func (b *Builder) ListReports(ctx context.Context, businessID string, from, to time.Time) ([]database.EODReportRow, error) {
	return b.repo.ListEODReports(ctx, businessID, from, to)
}

// Review applies a human review to a finalized report. An amended actual
// cash count overwrites the stored reconciliation and variance. Reviewing
// a report that is not completed or in discrepancy rejects with
// ConflictError.
func (b *Builder) Review(ctx context.Context, businessID, reportID, reviewer string, actualCash *float64, notes string) (*Report, error) {
	row, err := b.repo.GetEODReportByID(ctx, businessID, reportID)
	if err != nil {
		return nil, err
	}
	if row.Status != StatusCompleted && row.Status != StatusDiscrepancy {
		return nil, ConflictError{Message: fmt.Sprintf("report %s is %s and cannot be reviewed", reportID, row.Status)}
	}

	report, err := reportFromRow(row)
	if err != nil {
		return nil, err
	}

	if actualCash != nil {
		a := money.Round2(*actualCash)
		report.Cash.ActualCash = &a
		if report.Cash.ExpectedCash != nil {
			v := money.Round2(a - *report.Cash.ExpectedCash)
			report.Cash.Variance = &v
		}
	}
	if notes != "" {
		report.Notes = notes
	}
	now := time.Now().UTC()
	report.Status = StatusReviewed
	report.ReviewedBy = reviewer
	report.ReviewedAt = &now

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal reviewed report: %w", err)
	}

	ok, err := b.repo.MarkEODReviewed(ctx, businessID, reportID, reviewer, payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ConflictError{Message: fmt.Sprintf("report %s changed state during review", reportID)}
	}

	b.log.Info("eod report reviewed", "report_id", reportID, "reviewer", reviewer)
	return report, nil
}

// ReclaimStale resets in-progress reports older than the configured age
// back to pending. Called by the scheduler so a crashed build never pins
// a day in in_progress.
func (b *Builder) ReclaimStale(ctx context.Context) {
	n, err := b.repo.ReclaimStaleEODReports(ctx, b.cfg.StaleAge)
	if err != nil {
		b.log.Error("stale report reclaim failed", "error", err)
		return
	}
	if n > 0 {
		b.log.Warn("reclaimed stale in-progress reports", "count", n)
	}
}

func reportFromRow(row *database.EODReportRow) (*Report, error) {
	report := &Report{
		ID:         row.ID,
		BusinessID: row.BusinessID,
		ReportDate: row.ReportDate,
		Status:     row.Status,
	}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, report); err != nil {
			return nil, fmt.Errorf("unmarshal report payload: %w", err)
		}
		// Workflow columns are authoritative over the stored payload.
		report.ID = row.ID
		report.Status = row.Status
	}
	return report, nil
}
