package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/monitor"
	"github.com/leozw/ads-guardian/internal/queue"
	redisstore "github.com/leozw/ads-guardian/internal/storage/redis"
)

func (h *Handler) LatestRun(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var run monitor.TenantRun
	if err := h.runs.GetTenantRunSummary(c.Request.Context(), tenantID, &run); err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No run recorded yet"})
			return
		}
		h.logger.Error("Failed to read run summary", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// RequestRun queues an out-of-schedule run for the caller's tenant.
func (h *Handler) RequestRun(c *gin.Context) {
	var body struct {
		CheckIDs []string `json:"check_ids"`
		DryRun   bool     `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	for _, id := range body.CheckIDs {
		if !h.checkIDs[id] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown check: " + id})
			return
		}
	}

	req := &queue.RunRequest{
		ID:          uuid.New().String(),
		TenantID:    c.GetString("tenant_id"),
		CheckIDs:    body.CheckIDs,
		DryRun:      body.DryRun,
		RequestedBy: c.GetString("user_email"),
		CreatedAt:   h.now().UTC(),
	}
	if err := h.requests.Push(c.Request.Context(), req); err != nil {
		h.logger.Error("Failed to queue run request", zap.String("tenant_id", req.TenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Info("Run requested",
		zap.String("request_id", req.ID),
		zap.String("tenant_id", req.TenantID),
		zap.String("requested_by", req.RequestedBy),
		zap.Strings("checks", req.CheckIDs),
	)
	c.JSON(http.StatusAccepted, gin.H{"request_id": req.ID, "status": "queued"})
}
