package models

import "time"

// Application is a catalog entry describing a launchable containerized app.
// Applications are never hard-deleted, only disabled.
type Application struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	LogoURL       string    `json:"logo_url"`
	RepositoryURL string    `json:"repository_url"`
	DockerCompose string    `json:"docker_compose"`
	IsEnabled     bool      `json:"is_enabled"`
}

// UpdateApplicationRequest contains the admin-editable fields of an application.
// Pointer fields distinguish "leave unchanged" from explicit values.
type UpdateApplicationRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	LogoURL       *string `json:"logo_url"`
	DockerCompose *string `json:"docker_compose"`
	IsEnabled     *bool   `json:"is_enabled"`
}

// CatalogEntry is one application definition as published by the external
// catalog source. The repository URL is the natural key for deduplication.
type CatalogEntry struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	LogoURL       string `json:"logo_url"`
	RepositoryURL string `json:"repository_url"`
	DockerCompose string `json:"docker_compose"`
}
