// Package main is the entry point for the webtop launcher server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/database"
	"github.com/bettodiaz/webtop-launcher/internal/events"
	"github.com/bettodiaz/webtop-launcher/internal/router"
	"github.com/bettodiaz/webtop-launcher/internal/services"
	"github.com/bettodiaz/webtop-launcher/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Webtop Launcher %s\n", version.Version)
		fmt.Printf("Build Time: %s\n", version.BuildTime)
		fmt.Printf("Git Commit: %s\n", version.GitCommit)
		os.Exit(0)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Warnf("could not load config from %s, using defaults", *configPath)
		cfg, _ = config.Load("")
	}

	if cfg.Security.EncryptionKey == "" {
		log.Error("security.encryption_key is not configured")
		log.Error("generate one with: openssl rand -hex 32")
		log.Fatal("startup aborted: encryption key is required")
	}

	crypto, err := services.NewCryptoService(cfg.Security.EncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("invalid encryption key, expected 64 hex characters")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
		}
	}()

	if err := db.Migrate(); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	authService := services.NewAuthService(db, cfg, crypto, log)
	auditService := services.NewAuditService(db)
	catalogService := services.NewCatalogService(db)
	settingsService := services.NewSettingsService(db, cfg, crypto)
	hub := events.NewHub(log)

	source := services.NewHTTPCatalogSource(cfg.Catalog.SourceURL, cfg.Catalog.GetFetchTimeout())
	syncService := services.NewSyncService(catalogService, source, log)

	gateway := services.NewPortainerGateway(settingsService, cfg, log)
	deployer := services.NewDeployerService(log)
	registry := services.NewRegistryService(db, cfg, catalogService, authService, gateway, hub, log)

	if err := authService.EnsureAdminUser(); err != nil {
		log.WithError(err).Fatal("failed to ensure admin user")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go syncService.Run(ctx, cfg.Catalog.GetSyncInterval())
	go tokenCleanupLoop(ctx, authService, log)

	r := router.New(cfg, router.Services{
		Auth:     authService,
		Audit:    auditService,
		Catalog:  catalogService,
		Sync:     syncService,
		Registry: registry,
		Settings: settingsService,
		Gateway:  gateway,
		Deployer: deployer,
		Hub:      hub,
	}, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithFields(logrus.Fields{
		"version": version.Version,
		"addr":    addr,
	}).Info("webtop launcher starting")

	if err := r.Run(addr); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

// tokenCleanupLoop purges expired bearer tokens hourly.
func tokenCleanupLoop(ctx context.Context, auth *services.AuthService, log *logrus.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := auth.CleanExpiredTokens(); err != nil {
				log.WithError(err).Warn("token cleanup failed")
			}
		}
	}
}
