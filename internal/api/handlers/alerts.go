package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/alerts"
	"github.com/leozw/ads-guardian/internal/core"
)

var validStatuses = map[string]bool{
	string(core.AlertOpen):         true,
	string(core.AlertAcknowledged): true,
	string(core.AlertResolved):     true,
}

func (h *Handler) ListAlerts(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	status := c.Query("status")
	if status != "" && !validStatuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	list, err := h.alerts.List(c.Request.Context(), core.AlertFilter{
		TenantID: tenantID,
		Status:   status,
		Severity: c.Query("severity"),
		CheckID:  c.Query("check_id"),
		Platform: c.Query("platform"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if list == nil {
		list = []*core.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{"alerts": list, "count": len(list)})
}

func (h *Handler) GetAlert(c *gin.Context) {
	alertID := c.Param("id")
	tenantID := c.GetString("tenant_id")

	alert, err := h.alerts.Get(c.Request.Context(), alertID, tenantID)
	if err != nil {
		h.alertError(c, "Failed to get alert", err)
		return
	}

	events, err := h.alerts.Events(c.Request.Context(), alertID, tenantID)
	if err != nil {
		h.logger.Error("Failed to get alert events", zap.String("alert_id", alertID), zap.Error(err))
		events = []*core.AlertEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alert":  alert,
		"events": events,
	})
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	alertID := c.Param("id")

	err := h.alerts.Acknowledge(c.Request.Context(), alertID, c.GetString("tenant_id"), c.GetString("user_email"))
	if err != nil {
		h.alertError(c, "Failed to acknowledge alert", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert acknowledged"})
}

func (h *Handler) AddAlertComment(c *gin.Context) {
	alertID := c.Param("id")

	var req struct {
		Comment string `json:"comment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.alerts.Comment(c.Request.Context(), alertID, c.GetString("tenant_id"), c.GetString("user_email"), req.Comment)
	if err != nil {
		h.alertError(c, "Failed to add alert comment", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Comment added"})
}

func (h *Handler) alertError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, alerts.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, alerts.ErrAlreadyAcknowledged), errors.Is(err, alerts.ErrAlertResolved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.String("alert_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
