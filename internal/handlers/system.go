package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bettodiaz/webtop-launcher/internal/metrics"
	"github.com/bettodiaz/webtop-launcher/internal/services"
	"github.com/bettodiaz/webtop-launcher/internal/version"
)

// SystemHandler serves host metrics and audit history for admins.
type SystemHandler struct {
	auditService *services.AuditService
}

func NewSystemHandler(auditService *services.AuditService) *SystemHandler {
	return &SystemHandler{auditService: auditService}
}

// Metrics returns a host resource snapshot.
func (h *SystemHandler) Metrics(c *gin.Context) {
	snap, err := metrics.Collect(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to collect metrics"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// AuditLog returns recent audit entries, newest first.
func (h *SystemHandler) AuditLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.auditService.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Health is the unauthenticated liveness probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version returns build information.
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Info())
}
