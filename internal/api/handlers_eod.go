package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"pos-analytics/internal/auth"
	"pos-analytics/internal/period"
)

func (s *Server) handleGetReport(c *gin.Context) {
	businessID := auth.BusinessID(c)

	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		respondError(c, period.ValidationError{Field: "date", Message: "want YYYY-MM-DD"})
		return
	}

	report, err := s.builder.GetReport(c.Request.Context(), businessID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, report)
}

func (s *Server) handleListReports(c *gin.Context) {
	businessID := auth.BusinessID(c)
	biz, err := s.repo.GetBusiness(c.Request.Context(), businessID)
	if err != nil {
		respondError(c, err)
		return
	}
	loc := biz.Location()

	now := time.Now().In(loc)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -30)
	if fs := c.Query("startDate"); fs != "" {
		if from, err = parseDate(fs, loc); err != nil {
			respondError(c, period.ValidationError{Field: "startDate", Message: err.Error()})
			return
		}
	}
	if ts := c.Query("endDate"); ts != "" {
		if to, err = parseDate(ts, loc); err != nil {
			respondError(c, period.ValidationError{Field: "endDate", Message: err.Error()})
			return
		}
	}

	rows, err := s.builder.ListReports(c.Request.Context(), businessID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, rows)
}

func (s *Server) handleGenerateReport(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var req struct {
		Date string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, period.ValidationError{Field: "date", Message: "date is required"})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(c, period.ValidationError{Field: "date", Message: "want YYYY-MM-DD"})
		return
	}

	report, err := s.builder.Generate(c.Request.Context(), businessID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, report)
}

func (s *Server) handleReviewReport(c *gin.Context) {
	businessID := auth.BusinessID(c)
	reportID := c.Param("id")

	var req struct {
		ActualCash *float64 `json:"actual_cash"`
		Notes      string   `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, period.ValidationError{Field: "body", Message: "invalid review payload"})
		return
	}

	reviewer := auth.UserID(c)
	if reviewer == "" {
		reviewer = "manual"
	}

	report, err := s.builder.Review(c.Request.Context(), businessID, reportID, reviewer, req.ActualCash, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, report)
}
