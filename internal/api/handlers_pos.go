package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"pos-analytics/internal/auth"
	"pos-analytics/internal/cache"
	"pos-analytics/internal/database"
	"pos-analytics/internal/events"
	"pos-analytics/internal/period"
)

// handleCreateOrder ingests a finished sale from a register. Completed
// orders feed the live counters through the event bus and drop the
// tenant's cached dashboard so the next read reflects the sale.
func (s *Server) handleCreateOrder(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var order database.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		respondError(c, period.ValidationError{Field: "body", Message: "invalid order payload"})
		return
	}
	if order.Total < 0 {
		respondError(c, period.ValidationError{Field: "total", Message: "must not be negative"})
		return
	}
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			respondError(c, period.ValidationError{Field: "items", Message: "quantity must be positive"})
			return
		}
	}

	order.ID = ""
	order.BusinessID = businessID
	if order.Status == "" {
		order.Status = database.OrderStatusCompleted
	}
	if order.CompletedAt.IsZero() {
		order.CompletedAt = time.Now().UTC()
	}

	if err := s.repo.CreateOrder(c.Request.Context(), &order); err != nil {
		respondError(c, err)
		return
	}

	if order.Status == database.OrderStatusCompleted {
		s.bus.PublishOrderCompleted(businessID, &order)
		if _, err := s.analytics.InvalidateMetric(c.Request.Context(), businessID, cache.MetricDashboard); err != nil {
			s.log.Warn("dashboard invalidation failed", "business_id", businessID, "error", err)
		}
	}
	successResponse(c, order)
}

func (s *Server) handleRecordPayment(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var req struct {
		Method string  `json:"method" binding:"required"`
		Amount float64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, period.ValidationError{Field: "body", Message: "method and amount are required"})
		return
	}
	if req.Amount <= 0 {
		respondError(c, period.ValidationError{Field: "amount", Message: "must be positive"})
		return
	}

	payment := database.Payment{
		BusinessID: businessID,
		OrderID:    c.Param("id"),
		Method:     req.Method,
		Amount:     req.Amount,
		CapturedAt: time.Now().UTC(),
	}
	if err := s.repo.RecordPayment(c.Request.Context(), &payment); err != nil {
		respondError(c, err)
		return
	}

	s.bus.Publish(events.Event{
		Type:       events.PaymentCaptured,
		BusinessID: businessID,
		Payload:    &payment,
	})
	successResponse(c, payment)
}

func (s *Server) handleRecordRefund(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var req struct {
		Amount float64 `json:"amount" binding:"required"`
		Reason string  `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, period.ValidationError{Field: "amount", Message: "amount is required"})
		return
	}
	if req.Amount <= 0 {
		respondError(c, period.ValidationError{Field: "amount", Message: "must be positive"})
		return
	}

	refund := database.Refund{
		BusinessID: businessID,
		OrderID:    c.Param("id"),
		Amount:     req.Amount,
		Reason:     req.Reason,
		RefundedAt: time.Now().UTC(),
	}
	if err := s.repo.RecordRefund(c.Request.Context(), &refund); err != nil {
		respondError(c, err)
		return
	}

	s.bus.Publish(events.Event{
		Type:       events.OrderRefunded,
		BusinessID: businessID,
		Payload:    &refund,
	})
	if _, err := s.analytics.InvalidateMetric(c.Request.Context(), businessID, cache.MetricDashboard); err != nil {
		s.log.Warn("dashboard invalidation failed", "business_id", businessID, "error", err)
	}
	successResponse(c, refund)
}

func (s *Server) handleOpenShift(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var req struct {
		RegisterID   string  `json:"register_id" binding:"required"`
		StaffID      *string `json:"staff_id"`
		StaffName    string  `json:"staff_name"`
		OpeningFloat float64 `json:"opening_float"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, period.ValidationError{Field: "register_id", Message: "register_id is required"})
		return
	}

	shift := database.Shift{
		BusinessID:   businessID,
		RegisterID:   req.RegisterID,
		StaffID:      req.StaffID,
		StaffName:    req.StaffName,
		OpeningFloat: req.OpeningFloat,
		OpenedAt:     time.Now().UTC(),
	}
	if err := s.repo.OpenShift(c.Request.Context(), &shift); err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, shift)
}

func (s *Server) handleCloseShift(c *gin.Context) {
	businessID := auth.BusinessID(c)
	shiftID := c.Param("id")

	var req struct {
		CashIn       float64  `json:"cash_in"`
		CashOut      float64  `json:"cash_out"`
		ExpectedCash *float64 `json:"expected_cash"`
		ActualCash   *float64 `json:"actual_cash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, period.ValidationError{Field: "body", Message: "invalid shift close payload"})
		return
	}

	err := s.repo.CloseShift(c.Request.Context(), shiftID, req.CashIn, req.CashOut, req.ExpectedCash, req.ActualCash)
	if err != nil {
		respondError(c, err)
		return
	}

	s.bus.Publish(events.Event{
		Type:       events.ShiftClosed,
		BusinessID: businessID,
		Payload:    map[string]string{"shift_id": shiftID},
	})
	successResponse(c, gin.H{"shift_id": shiftID, "closed": true})
}

func (s *Server) handleUpsertProduct(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var product database.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		respondError(c, period.ValidationError{Field: "body", Message: "invalid product payload"})
		return
	}
	if product.SKU == "" || product.Name == "" {
		respondError(c, period.ValidationError{Field: "sku", Message: "sku and name are required"})
		return
	}

	product.BusinessID = businessID
	if err := s.repo.UpsertProduct(c.Request.Context(), &product); err != nil {
		respondError(c, err)
		return
	}

	// Stock levels moved, so the cached velocity analysis is stale.
	if _, err := s.analytics.InvalidateMetric(c.Request.Context(), businessID, cache.MetricInventory); err != nil {
		s.log.Warn("inventory invalidation failed", "business_id", businessID, "error", err)
	}
	successResponse(c, product)
}

func (s *Server) handleUpsertCustomer(c *gin.Context) {
	businessID := auth.BusinessID(c)

	var customer database.Customer
	if err := c.ShouldBindJSON(&customer); err != nil {
		respondError(c, period.ValidationError{Field: "body", Message: "invalid customer payload"})
		return
	}
	if customer.Name == "" {
		respondError(c, period.ValidationError{Field: "name", Message: "name is required"})
		return
	}

	customer.BusinessID = businessID
	if customer.FirstSeenAt.IsZero() {
		customer.FirstSeenAt = time.Now().UTC()
	}
	if err := s.repo.UpsertCustomer(c.Request.Context(), &customer); err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, customer)
}
