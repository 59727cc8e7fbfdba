package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Admin     AdminConfig     `yaml:"admin"`
	Security  SecurityConfig  `yaml:"security"`
	Portainer PortainerConfig `yaml:"portainer"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Sessions  SessionsConfig  `yaml:"sessions"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	TokenDuration string `yaml:"token_duration"`
	BcryptCost    int    `yaml:"bcrypt_cost"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SecurityConfig struct {
	// EncryptionKey is 64 hex chars (32 bytes) used to encrypt secrets at
	// rest (orchestrator API key, TOTP secrets).
	EncryptionKey string `yaml:"encryption_key"`
}

type PortainerConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	EndpointID     int    `yaml:"endpoint_id"`
	RequestTimeout string `yaml:"request_timeout"`
	// SessionDomain is the host that access URLs of launched sessions point
	// at; published ports are appended to it.
	SessionDomain string `yaml:"session_domain"`
}

type SessionsConfig struct {
	// MaxPerUser caps concurrent sessions per user. Negative disables the
	// cap.
	MaxPerUser int `yaml:"max_per_user"`
}

type CatalogConfig struct {
	SourceURL    string `yaml:"source_url"`
	SyncInterval string `yaml:"sync_interval"`
	FetchTimeout string `yaml:"fetch_timeout"`
}

func (c *AuthConfig) GetTokenDuration() time.Duration {
	d, err := time.ParseDuration(c.TokenDuration)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

func (c *PortainerConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetSyncInterval returns the background sync period. Zero disables the
// scheduled sync, leaving only on-demand runs.
func (c *CatalogConfig) GetSyncInterval() time.Duration {
	if c.SyncInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.SyncInterval)
	if err != nil {
		return 0
	}
	return d
}

func (c *CatalogConfig) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	setDefaults(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/launcher.db"
	}
	if cfg.Auth.TokenDuration == "" {
		cfg.Auth.TokenDuration = "24h"
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = "changeme"
	}
	if cfg.Portainer.URL == "" {
		cfg.Portainer.URL = "http://localhost:9000"
	}
	if cfg.Portainer.EndpointID == 0 {
		cfg.Portainer.EndpointID = 1
	}
	if cfg.Portainer.RequestTimeout == "" {
		cfg.Portainer.RequestTimeout = "30s"
	}
	if cfg.Portainer.SessionDomain == "" {
		cfg.Portainer.SessionDomain = "localhost"
	}
	if cfg.Catalog.SourceURL == "" {
		cfg.Catalog.SourceURL = "https://fleet.linuxserver.io/api/v1/images"
	}
	if cfg.Catalog.FetchTimeout == "" {
		cfg.Catalog.FetchTimeout = "60s"
	}
	if cfg.Sessions.MaxPerUser == 0 {
		cfg.Sessions.MaxPerUser = 5
	}
}
