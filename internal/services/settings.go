package services

import (
	"database/sql"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/database"
	"github.com/bettodiaz/webtop-launcher/internal/models"
)

const (
	settingPortainerURL    = "portainer_url"
	settingPortainerAPIKey = "portainer_api_key"
)

// SettingsService persists runtime-editable settings. The orchestrator API
// key is encrypted at rest; config file values act as fallbacks until an
// admin saves a configuration.
type SettingsService struct {
	db     *database.DB
	cfg    *config.Config
	crypto *CryptoService
}

func NewSettingsService(db *database.DB, cfg *config.Config, crypto *CryptoService) *SettingsService {
	return &SettingsService{db: db, cfg: cfg, crypto: crypto}
}

func (s *SettingsService) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SettingsService) set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// GetPortainerConfig returns the effective orchestrator connection settings
// with the API key decrypted.
func (s *SettingsService) GetPortainerConfig() (*models.PortainerConfig, error) {
	url, err := s.get(settingPortainerURL)
	if err != nil {
		return nil, err
	}
	if url == "" {
		url = s.cfg.Portainer.URL
	}

	encKey, err := s.get(settingPortainerAPIKey)
	if err != nil {
		return nil, err
	}

	apiKey := s.cfg.Portainer.APIKey
	if encKey != "" {
		apiKey, err = s.crypto.Decrypt(encKey)
		if err != nil {
			return nil, err
		}
	}

	return &models.PortainerConfig{URL: url, APIKey: apiKey}, nil
}

// SetPortainerConfig stores the orchestrator connection settings. An empty
// API key keeps the previously stored one, so admins can update the URL
// without re-entering the secret.
func (s *SettingsService) SetPortainerConfig(cfg *models.PortainerConfig) error {
	if err := s.set(settingPortainerURL, cfg.URL); err != nil {
		return err
	}

	if cfg.APIKey == "" {
		return nil
	}

	encrypted, err := s.crypto.Encrypt(cfg.APIKey)
	if err != nil {
		return err
	}
	return s.set(settingPortainerAPIKey, encrypted)
}
