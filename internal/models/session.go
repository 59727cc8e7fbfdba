package models

import "time"

// SessionStatus represents the lifecycle state of an application session.
// A session row exists only while the session is live: launches that fail at
// the orchestrator never materialize, and stopped sessions are deleted once
// teardown is confirmed.
type SessionStatus string

const (
	// SessionRunning indicates the container is up and reachable.
	SessionRunning SessionStatus = "running"
	// SessionStopping indicates teardown has been claimed and is in flight.
	SessionStopping SessionStatus = "stopping"
)

// Session represents a running application session bound to one user.
type Session struct {
	StartedAt     time.Time     `json:"started_at"`
	ID            string        `json:"id"`
	ApplicationID string        `json:"application_id"`
	ContainerID   string        `json:"container_id"`
	AccessURL     string        `json:"access_url"`
	Status        SessionStatus `json:"status"`
	UserID        int64         `json:"user_id"`
	IsPersistent  bool          `json:"is_persistent"`
}

// SessionWithDetails extends Session with display fields for the admin view.
type SessionWithDetails struct {
	Session
	ApplicationName string `json:"application_name"`
	ApplicationLogo string `json:"application_logo"`
	Username        string `json:"username"`
}

// LaunchSessionRequest is the payload for launching a new session.
type LaunchSessionRequest struct {
	ApplicationID string `json:"application_id" binding:"required"`
	IsPersistent  bool   `json:"is_persistent"`
}

// ReconcileReport summarizes a registry/orchestrator reconciliation pass.
type ReconcileReport struct {
	StoppedSessions  []string `json:"stopped_sessions"`  // registry rows with no live container
	OrphanContainers []string `json:"orphan_containers"` // live containers with no registry row
}
