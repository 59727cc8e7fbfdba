package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/database"
	"github.com/bettodiaz/webtop-launcher/internal/events"
	"github.com/bettodiaz/webtop-launcher/internal/models"
)

var (
	// ErrSessionNotFound indicates the referenced session is absent.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionStopping indicates teardown for the session is already in
	// flight.
	ErrSessionStopping = errors.New("session is already stopping")
	// ErrForbidden indicates the requester may not act on the session.
	ErrForbidden = errors.New("not allowed to manage this session")
	// ErrSessionLimit indicates the user already has the maximum number of
	// concurrent sessions.
	ErrSessionLimit = errors.New("session limit reached")
)

// Publisher receives session lifecycle notifications.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

// RegistryService is the single source of truth for running application
// sessions. It persists a session record only after the orchestrator confirms
// the container started, and removes it only after teardown is confirmed, so
// the registry never points at resources that were never created and never
// silently abandons ones that were.
type RegistryService struct {
	db      *database.DB
	cfg     *config.Config
	catalog *CatalogService
	auth    *AuthService
	gateway ContainerGateway
	pub     Publisher
	log     *logrus.Logger
}

func NewRegistryService(db *database.DB, cfg *config.Config, catalog *CatalogService, auth *AuthService, gateway ContainerGateway, pub Publisher, log *logrus.Logger) *RegistryService {
	return &RegistryService{
		db:      db,
		cfg:     cfg,
		catalog: catalog,
		auth:    auth,
		gateway: gateway,
		pub:     pub,
		log:     log,
	}
}

const sessionColumns = "id, application_id, user_id, container_id, access_url, is_persistent, status, started_at"

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.ApplicationID, &s.UserID, &s.ContainerID,
		&s.AccessURL, &s.IsPersistent, &s.Status, &s.StartedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession retrieves a session by ID.
func (s *RegistryService) GetSession(id string) (*models.Session, error) {
	return scanSession(s.db.QueryRow("SELECT "+sessionColumns+" FROM app_sessions WHERE id = ?", id))
}

// LaunchSession starts a container for the application and records the
// session. The application must exist and be enabled, the user must exist and
// be under the per-user session cap; an application disabled after launch
// does not affect sessions already running. If the orchestrator call fails,
// no record is created.
func (s *RegistryService) LaunchSession(ctx context.Context, userID int64, applicationID string, persistent bool) (*models.Session, error) {
	app, err := s.catalog.GetApplicationByID(applicationID)
	if err != nil {
		return nil, err
	}
	if !app.IsEnabled {
		return nil, ErrApplicationDisabled
	}

	user, err := s.auth.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	if limit := s.cfg.Sessions.MaxPerUser; limit >= 0 {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM app_sessions WHERE user_id = ?", userID).Scan(&count)
		if err != nil {
			return nil, err
		}
		if count >= limit {
			return nil, ErrSessionLimit
		}
	}

	sessionID := uuid.New().String()
	result, err := s.gateway.StartContainer(ctx, app, sessionID, persistent)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = s.db.Exec(
		"INSERT INTO app_sessions (id, application_id, user_id, container_id, access_url, is_persistent, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		sessionID, app.ID, user.ID, result.ContainerID, result.AccessURL, persistent, models.SessionRunning, now,
	)
	if err != nil {
		// The container is up but we could not record it; tear it back down
		// rather than orphan it.
		if stopErr := s.gateway.StopContainer(context.WithoutCancel(ctx), result.ContainerID); stopErr != nil {
			s.log.WithError(stopErr).WithField("container_id", result.ContainerID).
				Error("failed to tear down container after registry insert failure")
		}
		return nil, err
	}

	session := &models.Session{
		ID:            sessionID,
		ApplicationID: app.ID,
		UserID:        user.ID,
		ContainerID:   result.ContainerID,
		AccessURL:     result.AccessURL,
		IsPersistent:  persistent,
		Status:        models.SessionRunning,
		StartedAt:     now,
	}

	s.log.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"application": app.Name,
		"user":        user.Username,
		"persistent":  persistent,
	}).Info("session launched")

	if s.pub != nil {
		s.pub.Publish(events.TypeSessionLaunched, session)
	}

	return session, nil
}

// claimTeardown transitions a session from running to stopping. The
// conditional update serializes concurrent stop requests: exactly one caller
// wins the claim, everyone else gets ErrSessionStopping.
func (s *RegistryService) claimTeardown(sessionID string) error {
	result, err := s.db.Exec(
		"UPDATE app_sessions SET status = ? WHERE id = ? AND status = ?",
		models.SessionStopping, sessionID, models.SessionRunning,
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrSessionStopping
	}
	return nil
}

func (s *RegistryService) releaseTeardown(sessionID string) {
	_, err := s.db.Exec(
		"UPDATE app_sessions SET status = ? WHERE id = ? AND status = ?",
		models.SessionRunning, sessionID, models.SessionStopping,
	)
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).
			Error("failed to release teardown claim")
	}
}

// StopSession tears down a session. Only the owning user or an admin may stop
// it. The record is removed only after teardown succeeds (a container that is
// already gone counts as success); on failure the claim is released and the
// session stays, so the caller can retry.
func (s *RegistryService) StopSession(ctx context.Context, sessionID string, requester *models.User) error {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}

	if session.UserID != requester.ID && !requester.IsAdmin {
		return ErrForbidden
	}

	if err := s.claimTeardown(sessionID); err != nil {
		return err
	}

	if err := s.gateway.StopContainer(ctx, session.ContainerID); err != nil {
		s.releaseTeardown(sessionID)
		return err
	}

	if _, err := s.db.Exec("DELETE FROM app_sessions WHERE id = ?", sessionID); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"stopped_by": requester.Username,
	}).Info("session stopped")

	if s.pub != nil {
		s.pub.Publish(events.TypeSessionStopped, session)
	}

	return nil
}

func (s *RegistryService) querySessions(query string, args ...interface{}) ([]models.SessionWithDetails, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]models.SessionWithDetails, 0)
	for rows.Next() {
		var sd models.SessionWithDetails
		if err := rows.Scan(
			&sd.ID, &sd.ApplicationID, &sd.UserID, &sd.ContainerID,
			&sd.AccessURL, &sd.IsPersistent, &sd.Status, &sd.StartedAt,
			&sd.ApplicationName, &sd.ApplicationLogo, &sd.Username,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, sd)
	}
	return sessions, rows.Err()
}

const sessionDetailQuery = `
	SELECT s.id, s.application_id, s.user_id, s.container_id, s.access_url,
	       s.is_persistent, s.status, s.started_at,
	       a.name, a.logo_url, u.username
	FROM app_sessions s
	JOIN applications a ON a.id = s.application_id
	JOIN users u ON u.id = s.user_id`

// ListSessionsForUser returns the user's sessions, newest first.
func (s *RegistryService) ListSessionsForUser(userID int64) ([]models.SessionWithDetails, error) {
	return s.querySessions(sessionDetailQuery+" WHERE s.user_id = ? ORDER BY s.started_at DESC", userID)
}

// ListAllSessions returns every session, newest first. Admin-only at the API
// boundary.
func (s *RegistryService) ListAllSessions() ([]models.SessionWithDetails, error) {
	return s.querySessions(sessionDetailQuery + " ORDER BY s.started_at DESC")
}

// Reconcile compares the registry against orchestrator-reported containers.
// Registry rows with no matching live container are removed and reported as
// stopped; live containers carrying our session label with no matching row
// are reported as orphans for manual review, never auto-removed.
func (s *RegistryService) Reconcile(ctx context.Context) (*models.ReconcileReport, error) {
	containers, err := s.gateway.ListManagedContainers(ctx)
	if err != nil {
		return nil, err
	}

	live := make(map[string]bool, len(containers))
	for _, c := range containers {
		if c.SessionID != "" {
			live[c.SessionID] = true
		}
	}

	rows, err := s.db.Query("SELECT id FROM app_sessions")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var registered []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		registered = append(registered, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report := &models.ReconcileReport{
		StoppedSessions:  make([]string, 0),
		OrphanContainers: make([]string, 0),
	}

	known := make(map[string]bool, len(registered))
	for _, id := range registered {
		known[id] = true
		if !live[id] {
			if _, err := s.db.Exec("DELETE FROM app_sessions WHERE id = ?", id); err != nil {
				return nil, err
			}
			report.StoppedSessions = append(report.StoppedSessions, id)
		}
	}

	for _, c := range containers {
		if c.SessionID == "" || !known[c.SessionID] {
			report.OrphanContainers = append(report.OrphanContainers, c.ID)
		}
	}

	s.log.WithFields(logrus.Fields{
		"stopped": len(report.StoppedSessions),
		"orphans": len(report.OrphanContainers),
	}).Info("session reconciliation completed")

	if s.pub != nil {
		s.pub.Publish(events.TypeSessionReconciled, report)
	}

	return report, nil
}
