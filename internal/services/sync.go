package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bettodiaz/webtop-launcher/internal/models"
)

// ErrSourceUnavailable indicates the external catalog source could not be
// reached or returned an unusable response.
var ErrSourceUnavailable = errors.New("catalog source unavailable")

// CatalogSource yields candidate application definitions from an external
// index.
type CatalogSource interface {
	Fetch(ctx context.Context) ([]models.CatalogEntry, error)
}

// HTTPCatalogSource fetches a JSON array of catalog entries from a URL.
type HTTPCatalogSource struct {
	client *http.Client
	url    string
}

func NewHTTPCatalogSource(url string, timeout time.Duration) *HTTPCatalogSource {
	return &HTTPCatalogSource{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Fetch downloads and decodes the source index.
func (s *HTTPCatalogSource) Fetch(ctx context.Context) ([]models.CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: source returned status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var entries []models.CatalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: invalid index: %v", ErrSourceUnavailable, err)
	}
	return entries, nil
}

// SyncService reconciles the catalog against the external source, on demand
// and optionally on a schedule. It only ever adds applications; removals and
// edits stay in admin hands.
type SyncService struct {
	catalog *CatalogService
	source  CatalogSource
	log     *logrus.Logger
}

func NewSyncService(catalog *CatalogService, source CatalogSource, log *logrus.Logger) *SyncService {
	return &SyncService{catalog: catalog, source: source, log: log}
}

// SyncNow fetches the source index and imports previously-unseen entries.
// The import is all-or-nothing: a failure or timeout midway leaves the
// catalog untouched, so the same batch can safely be reprocessed later.
func (s *SyncService) SyncNow(ctx context.Context) ([]models.Application, error) {
	entries, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	added, err := s.catalog.ImportEntries(entries)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"fetched": len(entries),
		"added":   len(added),
	}).Info("catalog sync completed")

	return added, nil
}

// Run executes SyncNow on the given interval until the context is cancelled.
// An interval of zero disables the loop.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncNow(ctx); err != nil {
				s.log.WithError(err).Warn("scheduled catalog sync failed")
			}
		}
	}
}
