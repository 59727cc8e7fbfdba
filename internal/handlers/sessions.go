package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/bettodiaz/webtop-launcher/internal/events"
	"github.com/bettodiaz/webtop-launcher/internal/middleware"
	"github.com/bettodiaz/webtop-launcher/internal/models"
	"github.com/bettodiaz/webtop-launcher/internal/services"
)

// SessionsHandler drives the session lifecycle endpoints.
type SessionsHandler struct {
	registry     *services.RegistryService
	auditService *services.AuditService
	hub          *events.Hub
	log          *logrus.Logger
	upgrader     websocket.Upgrader
}

func NewSessionsHandler(registry *services.RegistryService, auditService *services.AuditService, hub *events.Hub, log *logrus.Logger) *SessionsHandler {
	return &SessionsHandler{
		registry:     registry,
		auditService: auditService,
		hub:          hub,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Bearer auth already gates this endpoint and the stream is
			// push-only, so cross-origin upgrades are acceptable.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// List returns the caller's sessions.
func (h *SessionsHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)
	sessions, err := h.registry.ListSessionsForUser(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ListAll returns every session across all users.
func (h *SessionsHandler) ListAll(c *gin.Context) {
	sessions, err := h.registry.ListAllSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// Launch starts a new session for the caller.
func (h *SessionsHandler) Launch(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req models.LaunchSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "application_id is required"})
		return
	}

	session, err := h.registry.LaunchSession(c.Request.Context(), user.ID, req.ApplicationID, req.IsPersistent)
	if err != nil {
		h.respondLaunchError(c, err)
		return
	}

	h.auditService.LogSessionEvent(user, "session_launched", session.ID, map[string]interface{}{
		"application_id": session.ApplicationID,
		"persistent":     session.IsPersistent,
	})

	c.JSON(http.StatusCreated, session)
}

func (h *SessionsHandler) respondLaunchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrApplicationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
	case errors.Is(err, services.ErrApplicationDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "application is disabled"})
	case errors.Is(err, services.ErrSessionLimit):
		c.JSON(http.StatusConflict, gin.H{"error": "session limit reached"})
	case errors.Is(err, services.ErrOrchestratorAuth),
		errors.Is(err, services.ErrOrchestratorUnreachable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "orchestrator unavailable"})
	case errors.Is(err, services.ErrOrchestratorRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.WithError(err).Error("session launch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to launch session"})
	}
}

// Stop tears down a session owned by the caller, or any session for admins.
func (h *SessionsHandler) Stop(c *gin.Context) {
	user := middleware.CurrentUser(c)
	sessionID := c.Param("id")

	err := h.registry.StopSession(c.Request.Context(), sessionID, user)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	case errors.Is(err, services.ErrSessionStopping):
		c.JSON(http.StatusConflict, gin.H{"error": "session is already stopping"})
		return
	case errors.Is(err, services.ErrOrchestratorAuth),
		errors.Is(err, services.ErrOrchestratorUnreachable),
		errors.Is(err, services.ErrOrchestratorRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "orchestrator unavailable"})
		return
	default:
		h.log.WithError(err).Error("session stop failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop session"})
		return
	}

	h.auditService.LogSessionEvent(user, "session_stopped", sessionID, nil)
	c.JSON(http.StatusOK, gin.H{"message": "session stopped"})
}

// Reconcile compares the registry against the orchestrator's view.
func (h *SessionsHandler) Reconcile(c *gin.Context) {
	user := middleware.CurrentUser(c)

	report, err := h.registry.Reconcile(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "orchestrator unavailable"})
		return
	}

	h.auditService.LogSessionEvent(user, "sessions_reconciled", "", map[string]interface{}{
		"stopped": len(report.StoppedSessions),
		"orphans": len(report.OrphanContainers),
	})

	c.JSON(http.StatusOK, report)
}

// Events upgrades the connection and streams session lifecycle events.
func (h *SessionsHandler) Events(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	h.hub.Serve(conn)
}
