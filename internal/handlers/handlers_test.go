package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/database"
	"github.com/bettodiaz/webtop-launcher/internal/events"
	"github.com/bettodiaz/webtop-launcher/internal/models"
	"github.com/bettodiaz/webtop-launcher/internal/router"
	"github.com/bettodiaz/webtop-launcher/internal/services"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type fakeGateway struct {
	startErr error
	stopErr  error
	listing  []services.GatewayContainer
}

func (g *fakeGateway) StartContainer(_ context.Context, _ *models.Application, sessionID string, _ bool) (*services.StartResult, error) {
	if g.startErr != nil {
		return nil, g.startErr
	}
	return &services.StartResult{
		ContainerID: "ctr-" + sessionID,
		AccessURL:   "http://localhost:32768",
	}, nil
}

func (g *fakeGateway) StopContainer(_ context.Context, _ string) error {
	return g.stopErr
}

func (g *fakeGateway) ListManagedContainers(_ context.Context) ([]services.GatewayContainer, error) {
	return g.listing, nil
}

func (g *fakeGateway) Status(_ context.Context) (*models.PortainerStatus, error) {
	return &models.PortainerStatus{Status: models.PortainerRunning, Version: "2.19.4"}, nil
}

type fixture struct {
	router   *gin.Engine
	auth     *services.AuthService
	catalog  *services.CatalogService
	registry *services.RegistryService
	gateway  *fakeGateway

	adminToken string
	userToken  string
	adminID    int64
	userID     int64
	app        *models.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	cfg, _ := config.Load("")
	cfg.Auth.BcryptCost = bcrypt.MinCost

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	crypto, err := services.NewCryptoService(testKey)
	if err != nil {
		t.Fatalf("failed to create crypto service: %v", err)
	}

	authService := services.NewAuthService(db, cfg, crypto, log)
	auditService := services.NewAuditService(db)
	catalogService := services.NewCatalogService(db)
	settingsService := services.NewSettingsService(db, cfg, crypto)
	hub := events.NewHub(log)
	gateway := &fakeGateway{}
	registry := services.NewRegistryService(db, cfg, catalogService, authService, gateway, hub, log)
	syncService := services.NewSyncService(catalogService, staticSource{}, log)
	deployer := services.NewDeployerService(log)

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

	f := &fixture{
		router:   r,
		auth:     authService,
		catalog:  catalogService,
		registry: registry,
		gateway:  gateway,
	}

	admin, err := authService.CreateUser("root", "Secret123", true)
	if err != nil {
		t.Fatalf("failed to create admin: %v", err)
	}
	f.adminID = admin.ID
	user, err := authService.CreateUser("alice", "Secret123", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	f.userID = user.ID

	adminToken, _, err := authService.Login("root", "Secret123", "")
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	f.adminToken = adminToken.ID
	userToken, _, err := authService.Login("alice", "Secret123", "")
	if err != nil {
		t.Fatalf("user login failed: %v", err)
	}
	f.userToken = userToken.ID

	added, err := catalogService.ImportEntries([]models.CatalogEntry{{
		Name:          "Firefox",
		RepositoryURL: "https://github.com/linuxserver/docker-firefox",
		DockerCompose: "services:\n  firefox:\n    image: lscr.io/linuxserver/firefox:latest\n",
	}})
	if err != nil {
		t.Fatalf("failed to import application: %v", err)
	}
	f.app, err = catalogService.SetEnabled(added[0].ID, true)
	if err != nil {
		t.Fatalf("failed to enable application: %v", err)
	}

	return f
}

// staticSource satisfies the catalog source without network access.
type staticSource struct{}

func (staticSource) Fetch(_ context.Context) ([]models.CatalogEntry, error) {
	return []models.CatalogEntry{{
		Name:          "Krita",
		RepositoryURL: "https://github.com/linuxserver/docker-krita",
		DockerCompose: "services:\n  krita:\n    image: lscr.io/linuxserver/krita:latest\n",
	}}, nil
}

func (f *fixture) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "Secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decode(t, w)
	if body["token"] == "" || body["token"] == nil {
		t.Error("expected a token in the response")
	}

	w = f.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad credentials, got %d", w.Code)
	}

	w = f.request(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	if w := f.request(t, http.MethodGet, "/api/apps", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := f.request(t, http.MethodGet, "/api/apps", "bogus-token", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bogus token, got %d", w.Code)
	}
	if w := f.request(t, http.MethodGet, "/api/apps", f.userToken, nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", w.Code)
	}
}

func TestAdminRequired(t *testing.T) {
	f := newFixture(t)

	adminPaths := []string{"/api/admin/apps", "/api/admin/sessions", "/api/admin/users", "/api/admin/portainer", "/api/admin/system", "/api/admin/audit"}
	for _, path := range adminPaths {
		if w := f.request(t, http.MethodGet, path, f.userToken, nil); w.Code != http.StatusForbidden {
			t.Errorf("expected 403 for %s as regular user, got %d", path, w.Code)
		}
		if w := f.request(t, http.MethodGet, path, f.adminToken, nil); w.Code != http.StatusOK {
			t.Errorf("expected 200 for %s as admin, got %d: %s", path, w.Code, w.Body.String())
		}
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	f := newFixture(t)

	if w := f.request(t, http.MethodPost, "/api/auth/logout", f.userToken, nil); w.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", w.Code)
	}
	if w := f.request(t, http.MethodGet, "/api/auth/me", f.userToken, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", w.Code)
	}
}

func TestAppsListEnabledOnly(t *testing.T) {
	f := newFixture(t)

	// Add a disabled application next to the enabled one.
	_, err := f.catalog.ImportEntries([]models.CatalogEntry{{
		Name:          "Krita",
		RepositoryURL: "https://github.com/linuxserver/docker-krita",
	}})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	w := f.request(t, http.MethodGet, "/api/apps", f.userToken, nil)
	body := decode(t, w)
	apps := body["applications"].([]interface{})
	if len(apps) != 1 {
		t.Errorf("expected 1 enabled application, got %d", len(apps))
	}

	w = f.request(t, http.MethodGet, "/api/admin/apps", f.adminToken, nil)
	body = decode(t, w)
	apps = body["applications"].([]interface{})
	if len(apps) != 2 {
		t.Errorf("expected 2 applications for admin, got %d", len(apps))
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/sessions/launch", f.userToken, gin.H{
		"application_id": f.app.ID,
		"is_persistent":  true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	session := decode(t, w)
	sessionID := session["id"].(string)
	if session["access_url"] != "http://localhost:32768" {
		t.Errorf("unexpected access URL: %v", session["access_url"])
	}

	w = f.request(t, http.MethodGet, "/api/sessions", f.userToken, nil)
	body := decode(t, w)
	if sessions := body["sessions"].([]interface{}); len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}

	// Another user cannot stop it.
	w = f.request(t, http.MethodPost, "/api/sessions/"+sessionID+"/stop", f.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("admin should be able to stop any session, got %d", w.Code)
	}

	w = f.request(t, http.MethodPost, "/api/sessions/"+sessionID+"/stop", f.userToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for stopped session, got %d", w.Code)
	}
}

func TestSessionStopForbidden(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/sessions/launch", f.adminToken, gin.H{
		"application_id": f.app.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("launch failed: %d", w.Code)
	}
	sessionID := decode(t, w)["id"].(string)

	w = f.request(t, http.MethodPost, "/api/sessions/"+sessionID+"/stop", f.userToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign session, got %d", w.Code)
	}
}

func TestSessionLaunchErrors(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/sessions/launch", f.userToken, gin.H{
		"application_id": "no-such-app",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown application, got %d", w.Code)
	}

	if _, err := f.catalog.SetEnabled(f.app.ID, false); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	w = f.request(t, http.MethodPost, "/api/sessions/launch", f.userToken, gin.H{
		"application_id": f.app.ID,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for disabled application, got %d", w.Code)
	}

	if _, err := f.catalog.SetEnabled(f.app.ID, true); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	f.gateway.startErr = services.ErrOrchestratorUnreachable
	w = f.request(t, http.MethodPost, "/api/sessions/launch", f.userToken, gin.H{
		"application_id": f.app.ID,
	})
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for unreachable orchestrator, got %d", w.Code)
	}
}

func TestAdminScrape(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/admin/apps/scrape", f.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["added_count"].(float64) != 1 {
		t.Errorf("expected 1 added, got %v", body["added_count"])
	}

	// Second scrape adds nothing.
	w = f.request(t, http.MethodPost, "/api/admin/apps/scrape", f.adminToken, nil)
	body = decode(t, w)
	if body["added_count"].(float64) != 0 {
		t.Errorf("expected 0 added on repeat, got %v", body["added_count"])
	}
}

func TestAdminUpdateApp(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPut, "/api/admin/apps/"+f.app.ID, f.adminToken, gin.H{
		"name":       "Firefox ESR",
		"is_enabled": false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["name"] != "Firefox ESR" || body["is_enabled"] != false {
		t.Errorf("unexpected application: %v", body)
	}

	w = f.request(t, http.MethodPut, "/api/admin/apps/unknown", f.adminToken, gin.H{"name": "X"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAdminReconcile(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/sessions/launch", f.userToken, gin.H{
		"application_id": f.app.ID,
	})
	sessionID := decode(t, w)["id"].(string)

	// Orchestrator reports no containers: the session is gone.
	w = f.request(t, http.MethodPost, "/api/admin/sessions/reconcile", f.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	stopped := body["stopped_sessions"].([]interface{})
	if len(stopped) != 1 || stopped[0] != sessionID {
		t.Errorf("expected session %s reported stopped, got %v", sessionID, stopped)
	}
}

func TestUserManagement(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/admin/users", f.adminToken, gin.H{
		"username": "bob",
		"password": "Secret123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	bobID := int64(decode(t, w)["id"].(float64))

	// Weak password rejected.
	w = f.request(t, http.MethodPost, "/api/admin/users", f.adminToken, gin.H{
		"username": "carol",
		"password": "weak",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for weak password, got %d", w.Code)
	}

	// Duplicate username conflicts.
	w = f.request(t, http.MethodPost, "/api/admin/users", f.adminToken, gin.H{
		"username": "bob",
		"password": "Secret123",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate username, got %d", w.Code)
	}

	// Self-deletion rejected.
	w = f.request(t, http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", f.adminID), f.adminToken, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for self-deletion, got %d", w.Code)
	}

	w = f.request(t, http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", bobID), f.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/reset-password", f.userID), f.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	generated, _ := body["password"].(string)
	if generated == "" {
		t.Fatal("expected a generated password")
	}
	if body["must_change_password"] != true {
		t.Error("expected must_change_password flag")
	}

	// The user's old token is dead; the generated credential works.
	if w := f.request(t, http.MethodGet, "/api/auth/me", f.userToken, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", w.Code)
	}
	w = f.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": generated,
	})
	if w.Code != http.StatusOK {
		t.Errorf("login with generated credential failed: %d: %s", w.Code, w.Body.String())
	}
	user := decode(t, w)["user"].(map[string]interface{})
	if user["must_change_password"] != true {
		t.Error("expected must_change_password on login response")
	}
}

func TestPortainerConfigMasked(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPut, "/api/admin/portainer", f.adminToken, gin.H{
		"url":     "https://portainer.example.com",
		"api_key": "ptr_super_secret_1234",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = f.request(t, http.MethodGet, "/api/admin/portainer", f.adminToken, nil)
	body := decode(t, w)
	key := body["api_key"].(string)
	if key == "ptr_super_secret_1234" {
		t.Error("API key returned unmasked")
	}
	if len(key) != len("ptr_super_secret_1234") || key[len(key)-4:] != "1234" {
		t.Errorf("unexpected mask: %q", key)
	}
}

func TestHealthAndVersion(t *testing.T) {
	f := newFixture(t)

	if w := f.request(t, http.MethodGet, "/api/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 for health, got %d", w.Code)
	}
	w := f.request(t, http.MethodGet, "/api/version", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for version, got %d", w.Code)
	}
	if decode(t, w)["version"] == nil {
		t.Error("expected version field")
	}
}
