// Package scheduler drives the nightly end-of-day builds. A ticker loop
// checks each business against its own timezone; once a business passes
// local midnight and yesterday has no report yet, a build job is queued
// behind a bounded semaphore so a large tenant list cannot stampede the
// database.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"pos-analytics/config"
	"pos-analytics/internal/database"
	"pos-analytics/internal/eod"
	"pos-analytics/internal/logging"
)

// Analytics is the slice of the analytics service the scheduler needs for
// the nightly cache invalidation.
type Analytics interface {
	InvalidateClassifications(ctx context.Context, businessID string)
}

// Scheduler runs the periodic end-of-day sweep.
type Scheduler struct {
	repo      *database.Repository
	builder   *eod.Builder
	analytics Analytics
	cfg       config.EODConfig
	log       *logging.Logger

	mu      sync.Mutex
	running map[string]bool

	wg   sync.WaitGroup
	stop chan struct{}
}

// New creates the scheduler.
func New(repo *database.Repository, builder *eod.Builder, analytics Analytics, cfg config.EODConfig) *Scheduler {
	return &Scheduler{
		repo:      repo,
		builder:   builder,
		analytics: analytics,
		cfg:       cfg,
		log:       logging.WithComponent("scheduler"),
		running:   make(map[string]bool),
		stop:      make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runLoop()
	s.log.Info("eod scheduler started", "check_interval", s.cfg.CheckInterval.String())
}

// Stop shuts the loop down and waits for in-flight builds.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info("eod scheduler stopped")
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep finds businesses whose previous local day has no report yet and
// builds them, at most MaxConcurrent at a time.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CheckInterval)
	defer cancel()

	s.builder.ReclaimStale(ctx)

	businesses, err := s.repo.ListBusinesses(ctx)
	if err != nil {
		s.log.Error("scheduler cannot list businesses", "error", err)
		return
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	now := time.Now()

	for _, biz := range businesses {
		date, due := s.dueDate(ctx, biz, now)
		if !due {
			continue
		}
		if !s.claim(biz.ID) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(biz database.Business, date time.Time) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.release(biz.ID)
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("eod build panicked", "business_id", biz.ID, "panic", r)
				}
			}()
			s.build(biz, date)
		}(biz, date)
	}
	wg.Wait()
}

// dueDate returns the previous local day for the business when that day
// still needs a report.
func (s *Scheduler) dueDate(ctx context.Context, biz database.Business, now time.Time) (time.Time, bool) {
	loc := biz.Location()
	local := now.In(loc)
	yesterday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)

	row, err := s.repo.GetEODReport(ctx, biz.ID, yesterday)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return yesterday, true
		}
		s.log.Warn("scheduler report lookup failed", "business_id", biz.ID, "error", err)
		return time.Time{}, false
	}
	// Pending rows (including rolled-back failures) retry; anything
	// further along is left alone.
	return yesterday, row.Status == eod.StatusPending
}

func (s *Scheduler) claim(businessID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[businessID] {
		return false
	}
	s.running[businessID] = true
	return true
}

func (s *Scheduler) release(businessID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, businessID)
}

func (s *Scheduler) build(biz database.Business, date time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BuildTimeout)
	defer cancel()

	s.log.Info("building scheduled eod report", "business_id", biz.ID, "date", date.Format("2006-01-02"))

	report, err := s.builder.Generate(ctx, biz.ID, date)
	if err != nil {
		if errors.Is(err, eod.ErrConflict) {
			s.log.Debug("scheduled build skipped", "business_id", biz.ID, "reason", err.Error())
			return
		}
		s.log.Error("scheduled eod build failed", "business_id", biz.ID, "date", date.Format("2006-01-02"), "error", err)
		return
	}

	// Nightly invalidation: classification caches go stale once a new
	// day's data is finalized.
	s.analytics.InvalidateClassifications(ctx, biz.ID)

	s.log.Info("scheduled eod report done",
		"business_id", biz.ID,
		"date", date.Format("2006-01-02"),
		"status", report.Status)
}
