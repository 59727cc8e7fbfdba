package services

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bettodiaz/webtop-launcher/internal/database"
	"github.com/bettodiaz/webtop-launcher/internal/models"
)

var (
	// ErrApplicationNotFound indicates the referenced application is absent.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrApplicationDisabled indicates the application exists but is not
	// enabled for launching.
	ErrApplicationDisabled = errors.New("application is disabled")
)

// CatalogService owns the application catalog. Applications are discovered by
// the sync worker or edited by admins; they are disabled rather than deleted.
type CatalogService struct {
	db *database.DB
}

func NewCatalogService(db *database.DB) *CatalogService {
	return &CatalogService{db: db}
}

const appColumns = "id, name, description, logo_url, repository_url, docker_compose, is_enabled, created_at, updated_at"

func scanApplication(row *sql.Row) (*models.Application, error) {
	var app models.Application
	err := row.Scan(
		&app.ID, &app.Name, &app.Description, &app.LogoURL,
		&app.RepositoryURL, &app.DockerCompose, &app.IsEnabled,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// GetApplicationByID retrieves an application by its ID.
func (s *CatalogService) GetApplicationByID(id string) (*models.Application, error) {
	return scanApplication(s.db.QueryRow("SELECT "+appColumns+" FROM applications WHERE id = ?", id))
}

// ListApplications returns the catalog, optionally restricted to enabled
// entries, ordered by name.
func (s *CatalogService) ListApplications(enabledOnly bool) ([]models.Application, error) {
	query := "SELECT " + appColumns + " FROM applications"
	if enabledOnly {
		query += " WHERE is_enabled = TRUE"
	}
	query += " ORDER BY name"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var apps []models.Application
	for rows.Next() {
		var app models.Application
		if err := rows.Scan(
			&app.ID, &app.Name, &app.Description, &app.LogoURL,
			&app.RepositoryURL, &app.DockerCompose, &app.IsEnabled,
			&app.CreatedAt, &app.UpdatedAt,
		); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// SetEnabled flips the enabled flag on an application.
func (s *CatalogService) SetEnabled(id string, enabled bool) (*models.Application, error) {
	result, err := s.db.Exec(
		"UPDATE applications SET is_enabled = ?, updated_at = ? WHERE id = ?",
		enabled, time.Now(), id,
	)
	if err != nil {
		return nil, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrApplicationNotFound
	}
	return s.GetApplicationByID(id)
}

// UpdateApplication applies admin edits. Catalog mutations are
// last-writer-wins; no cross-field merging. Compose text is stored as-is:
// validation happens downstream when the orchestrator consumes it.
func (s *CatalogService) UpdateApplication(id string, req *models.UpdateApplicationRequest) (*models.Application, error) {
	app, err := s.GetApplicationByID(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.Description != nil {
		app.Description = *req.Description
	}
	if req.LogoURL != nil {
		app.LogoURL = *req.LogoURL
	}
	if req.DockerCompose != nil {
		app.DockerCompose = *req.DockerCompose
	}
	if req.IsEnabled != nil {
		app.IsEnabled = *req.IsEnabled
	}

	_, err = s.db.Exec(
		"UPDATE applications SET name = ?, description = ?, logo_url = ?, docker_compose = ?, is_enabled = ?, updated_at = ? WHERE id = ?",
		app.Name, app.Description, app.LogoURL, app.DockerCompose, app.IsEnabled, time.Now(), id,
	)
	if err != nil {
		return nil, err
	}

	return s.GetApplicationByID(id)
}

// ImportEntries inserts previously-unseen catalog entries inside a single
// transaction, deduplicating by repository URL. New entries always start
// disabled so an admin must explicitly opt them in. The whole batch commits
// or none of it does; cancelling the context rolls everything back.
//
// Returns the applications actually added, so running it twice against an
// unchanged source adds nothing the second time.
func (s *CatalogService) ImportEntries(entries []models.CatalogEntry) ([]models.Application, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var addedIDs []string
	for _, entry := range entries {
		if entry.RepositoryURL == "" {
			continue
		}

		var existing string
		err := tx.QueryRow(
			"SELECT id FROM applications WHERE repository_url = ?", entry.RepositoryURL,
		).Scan(&existing)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return nil, err
		}

		id := uuid.New().String()
		_, err = tx.Exec(
			"INSERT INTO applications (id, name, description, logo_url, repository_url, docker_compose, is_enabled) VALUES (?, ?, ?, ?, ?, ?, FALSE)",
			id, entry.Name, entry.Description, entry.LogoURL, entry.RepositoryURL, entry.DockerCompose,
		)
		if err != nil {
			return nil, err
		}
		addedIDs = append(addedIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	added := make([]models.Application, 0, len(addedIDs))
	for _, id := range addedIDs {
		app, err := s.GetApplicationByID(id)
		if err != nil {
			return nil, err
		}
		added = append(added, *app)
	}
	return added, nil
}
