package services

import (
	"context"
	"errors"

	"github.com/bettodiaz/webtop-launcher/internal/models"
)

var (
	// ErrOrchestratorAuth indicates the orchestrator rejected our API key.
	ErrOrchestratorAuth = errors.New("orchestrator authentication failed")
	// ErrOrchestratorUnreachable indicates a network failure or timeout
	// talking to the orchestrator.
	ErrOrchestratorUnreachable = errors.New("orchestrator unreachable")
	// ErrOrchestratorRejected indicates the orchestrator refused the request
	// (malformed compose, resource limits, unknown image).
	ErrOrchestratorRejected = errors.New("request rejected by orchestrator")
)

// GatewayContainer is a summary of an orchestrator-side container managed by
// this service, used for reconciliation.
type GatewayContainer struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// StartResult describes a successfully started container.
type StartResult struct {
	ContainerID string
	AccessURL   string
}

// ContainerGateway translates session lifecycle requests into orchestrator
// API calls. Implementations are stateless; retry policy belongs to callers.
type ContainerGateway interface {
	// StartContainer creates and starts a container for the application.
	StartContainer(ctx context.Context, app *models.Application, sessionID string, persistent bool) (*StartResult, error)
	// StopContainer stops and removes a container. A container that is
	// already gone counts as success.
	StopContainer(ctx context.Context, containerID string) error
	// ListManagedContainers returns the live containers carrying this
	// service's session label.
	ListManagedContainers(ctx context.Context) ([]GatewayContainer, error)
	// Status reports the observed orchestrator state.
	Status(ctx context.Context) (*models.PortainerStatus, error)
}
