package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pos-analytics/internal/auth"
	"pos-analytics/internal/events"
	"pos-analytics/internal/period"
)

func (s *Server) handleDashboard(c *gin.Context) {
	businessID := auth.BusinessID(c)
	p, err := s.resolvePeriod(c, businessID)
	if err != nil {
		respondError(c, err)
		return
	}

	dashboard, err := s.analytics.GetDashboard(c.Request.Context(), p, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, dashboard)
}

func (s *Server) handleLiveMetrics(c *gin.Context) {
	businessID := auth.BusinessID(c)
	metrics, err := s.tracker.Snapshot(c.Request.Context(), businessID, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, metrics)
}

func (s *Server) handleTrends(c *gin.Context) {
	businessID := auth.BusinessID(c)
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		respondError(c, period.ValidationError{Field: "days", Message: "must be between 1 and 365"})
		return
	}

	trends, err := s.analytics.GetTrends(c.Request.Context(), businessID, days, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, trends)
}

func (s *Server) handleForecast(c *gin.Context) {
	businessID := auth.BusinessID(c)
	horizon, _ := strconv.Atoi(c.DefaultQuery("days", "0"))
	if horizon < 0 || horizon > 90 {
		respondError(c, period.ValidationError{Field: "days", Message: "must be between 1 and 90"})
		return
	}

	forecast, err := s.analytics.GetForecast(c.Request.Context(), businessID, horizon, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, forecast)
}

func (s *Server) handleABC(c *gin.Context) {
	businessID := auth.BusinessID(c)
	p, err := s.resolvePeriod(c, businessID)
	if err != nil {
		respondError(c, err)
		return
	}

	records, err := s.analytics.GetABC(c.Request.Context(), p, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, records)
}

func (s *Server) handleProductPerformance(c *gin.Context) {
	businessID := auth.BusinessID(c)
	p, err := s.resolvePeriod(c, businessID)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	rows, err := s.analytics.GetTopProducts(c.Request.Context(), p, limit, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, rows)
}

func (s *Server) handleRFM(c *gin.Context) {
	businessID := auth.BusinessID(c)
	result, err := s.analytics.GetRFM(c.Request.Context(), businessID, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, result)
}

func (s *Server) handleStaffPerformance(c *gin.Context) {
	businessID := auth.BusinessID(c)
	p, err := s.resolvePeriod(c, businessID)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, err := s.analytics.GetStaffPerformance(c.Request.Context(), p, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, rows)
}

func (s *Server) handleInventoryIntelligence(c *gin.Context) {
	businessID := auth.BusinessID(c)
	records, err := s.analytics.GetInventoryIntelligence(c.Request.Context(), businessID, wantRefresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, records)
}

func (s *Server) handleBaseline(c *gin.Context) {
	businessID := auth.BusinessID(c)
	biz, err := s.repo.GetBusiness(c.Request.Context(), businessID)
	if err != nil {
		respondError(c, err)
		return
	}
	loc := biz.Location()

	date := time.Now().In(loc)
	if ds := c.Query("date"); ds != "" {
		date, err = parseDate(ds, loc)
		if err != nil {
			respondError(c, period.ValidationError{Field: "date", Message: err.Error()})
			return
		}
	}

	baseline, err := s.analytics.GetBaseline(c.Request.Context(), businessID, date, loc)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, baseline)
}

func (s *Server) handleCacheStatus(c *gin.Context) {
	successResponse(c, s.analytics.CacheStats())
}

func (s *Server) handleCacheInvalidate(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var req struct {
		Metric string `json:"metric"`
	}
	_ = c.ShouldBindJSON(&req)

	var deleted int
	var err error
	if req.Metric != "" {
		deleted, err = s.analytics.InvalidateMetric(c.Request.Context(), businessID, req.Metric)
	} else {
		deleted, err = s.analytics.InvalidateBusiness(c.Request.Context(), businessID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	s.bus.Publish(events.Event{
		Type:       events.CacheInvalidated,
		BusinessID: businessID,
		Payload:    gin.H{"metric": req.Metric, "deleted": deleted},
	})
	successResponse(c, gin.H{"invalidated": deleted})
}

func (s *Server) handleCacheWarm(c *gin.Context) {
	businessID := auth.BusinessID(c)
	results := s.analytics.Warm(c.Request.Context(), businessID)

	warmed := 0
	for _, outcome := range results {
		if outcome == "ok" {
			warmed++
		}
	}
	successResponse(c, gin.H{
		"warmed":  warmed,
		"total":   len(results),
		"results": results,
	})
}
