package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bettodiaz/webtop-launcher/internal/models"
	"github.com/bettodiaz/webtop-launcher/internal/services"
	"github.com/bettodiaz/webtop-launcher/internal/validation"
)

// AppsHandler serves the application catalog.
type AppsHandler struct {
	catalogService *services.CatalogService
	syncService    *services.SyncService
}

func NewAppsHandler(catalogService *services.CatalogService, syncService *services.SyncService) *AppsHandler {
	return &AppsHandler{
		catalogService: catalogService,
		syncService:    syncService,
	}
}

// List returns the enabled applications visible to regular users.
func (h *AppsHandler) List(c *gin.Context) {
	apps, err := h.catalogService.ListApplications(true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list applications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// ListAll returns the full catalog including disabled entries.
func (h *AppsHandler) ListAll(c *gin.Context) {
	apps, err := h.catalogService.ListApplications(false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list applications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// Update applies admin edits to a catalog entry.
func (h *AppsHandler) Update(c *gin.Context) {
	var req models.UpdateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Name != nil {
		if err := validation.ValidateApplicationName(*req.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Description != nil {
		if err := validation.ValidateDescription(*req.Description); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	app, err := h.catalogService.UpdateApplication(c.Param("id"), &req)
	if err != nil {
		if err == services.ErrApplicationNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update application"})
		return
	}

	c.JSON(http.StatusOK, app)
}

// Scrape triggers an on-demand catalog sync against the external source.
func (h *AppsHandler) Scrape(c *gin.Context) {
	added, err := h.syncService.SyncNow(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog source unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"added":       added,
		"added_count": len(added),
	})
}
