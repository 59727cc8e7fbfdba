package services

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestConfig() *config.Config {
	cfg, _ := config.Load("")
	cfg.Auth.BcryptCost = bcrypt.MinCost
	return cfg
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
