package models

// PortainerConfig holds the connection settings for the orchestrator.
// The API key is write-only: reads return a masked value.
type PortainerConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

// PortainerState enumerates observed orchestrator states.
type PortainerState string

const (
	// PortainerRunning indicates the orchestrator responds to status calls.
	PortainerRunning PortainerState = "running"
	// PortainerStopped indicates the orchestrator is not reachable.
	PortainerStopped PortainerState = "stopped"
	// PortainerError indicates the last deploy or status check failed.
	PortainerError PortainerState = "error"
	// PortainerDeploying indicates a deploy workflow is in flight.
	PortainerDeploying PortainerState = "deploying"
)

// PortainerStatus is the derived, observed state of the orchestrator.
type PortainerStatus struct {
	Status  PortainerState `json:"status"`
	Uptime  string         `json:"uptime"`
	Version string         `json:"version"`
}
