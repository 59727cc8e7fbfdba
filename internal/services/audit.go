package services

import (
	"encoding/json"
	"time"

	"github.com/bettodiaz/webtop-launcher/internal/database"
	"github.com/bettodiaz/webtop-launcher/internal/models"
)

// AuditService records user and admin actions.
type AuditService struct {
	db *database.DB
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(db *database.DB) *AuditService {
	return &AuditService{db: db}
}

// AuditLog represents an audit log entry to be recorded.
type AuditLog struct {
	UserID       *int64
	Details      map[string]interface{}
	Username     string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
}

// AuditEntry is a stored audit log row.
type AuditEntry struct {
	CreatedAt    time.Time `json:"created_at"`
	UserID       *int64    `json:"user_id"`
	Username     string    `json:"username"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IPAddress    string    `json:"ip_address"`
	Details      string    `json:"details,omitempty"`
	ID           int64     `json:"id"`
}

// Log records an audit log entry. Audit failures never fail the request.
func (s *AuditService) Log(entry AuditLog) error {
	var detailsJSON string
	if entry.Details != nil {
		if bytes, err := json.Marshal(entry.Details); err == nil {
			detailsJSON = string(bytes)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_logs (user_id, username, action, resource_type, resource_id, ip_address, user_agent, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.UserID, entry.Username, entry.Action, entry.ResourceType, entry.ResourceID, entry.IPAddress, entry.UserAgent, detailsJSON)

	return err
}

// LogSessionEvent records a session lifecycle action (launch, stop, reconcile).
func (s *AuditService) LogSessionEvent(user *models.User, action, sessionID string, details map[string]interface{}) {
	_ = s.Log(AuditLog{
		UserID:       &user.ID,
		Username:     user.Username,
		Action:       action,
		ResourceType: "session",
		ResourceID:   sessionID,
		Details:      details,
	})
}

// Recent returns the most recent audit entries, newest first.
func (s *AuditService) Recent(limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, username, action, resource_type, resource_id, ip_address, details, created_at
		FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.Action, &e.ResourceType, &e.ResourceID, &e.IPAddress, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
