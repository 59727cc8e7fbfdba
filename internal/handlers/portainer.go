package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bettodiaz/webtop-launcher/internal/middleware"
	"github.com/bettodiaz/webtop-launcher/internal/models"
	"github.com/bettodiaz/webtop-launcher/internal/services"
)

// PortainerHandler covers orchestrator configuration and deployment.
type PortainerHandler struct {
	settingsService *services.SettingsService
	gateway         services.ContainerGateway
	deployer        *services.DeployerService
	auditService    *services.AuditService
	log             *logrus.Logger
}

func NewPortainerHandler(settingsService *services.SettingsService, gateway services.ContainerGateway, deployer *services.DeployerService, auditService *services.AuditService, log *logrus.Logger) *PortainerHandler {
	return &PortainerHandler{
		settingsService: settingsService,
		gateway:         gateway,
		deployer:        deployer,
		auditService:    auditService,
		log:             log,
	}
}

// GetConfig returns the connection settings with the API key masked.
func (h *PortainerHandler) GetConfig(c *gin.Context) {
	cfg, err := h.settingsService.GetPortainerConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load configuration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":     cfg.URL,
		"api_key": services.MaskSecret(cfg.APIKey),
	})
}

// SetConfig stores the connection settings. An empty API key keeps the
// previously stored secret.
func (h *PortainerHandler) SetConfig(c *gin.Context) {
	var req models.PortainerConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if err := h.settingsService.SetPortainerConfig(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save configuration"})
		return
	}

	admin := middleware.CurrentUser(c)
	_ = h.auditService.Log(services.AuditLog{
		UserID:       &admin.ID,
		Username:     admin.Username,
		Action:       "portainer_config_updated",
		ResourceType: "settings",
		IPAddress:    c.ClientIP(),
		Details:      map[string]interface{}{"url": req.URL},
	})

	c.JSON(http.StatusOK, gin.H{"message": "configuration saved"})
}

// Status merges the API-level probe with the local deployment view: the API
// probe decides the state, the local container supplies uptime when we manage
// it ourselves.
func (h *PortainerHandler) Status(c *gin.Context) {
	status, err := h.gateway.Status(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Warn("orchestrator status probe failed")
		c.JSON(http.StatusOK, models.PortainerStatus{Status: models.PortainerError})
		return
	}

	if local := h.deployer.Status(c.Request.Context()); local.Uptime != "" {
		status.Uptime = local.Uptime
		if status.Status == models.PortainerStopped && local.Status == models.PortainerDeploying {
			status.Status = models.PortainerDeploying
		}
	}

	c.JSON(http.StatusOK, status)
}

// Deploy provisions a Portainer instance on the local Docker daemon.
func (h *PortainerHandler) Deploy(c *gin.Context) {
	if !h.deployer.IsDockerAvailable(c.Request.Context()) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "docker daemon unavailable"})
		return
	}

	if err := h.deployer.Deploy(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("portainer deployment failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "deployment failed"})
		return
	}

	admin := middleware.CurrentUser(c)
	_ = h.auditService.Log(services.AuditLog{
		UserID:       &admin.ID,
		Username:     admin.Username,
		Action:       "portainer_deployed",
		ResourceType: "settings",
		IPAddress:    c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "deployment started"})
}
