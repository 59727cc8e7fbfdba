package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bettodiaz/webtop-launcher/internal/models"
)

type fakeGateway struct {
	mu         sync.Mutex
	startErr   error
	stopErr    error
	listResult []GatewayContainer
	listErr    error
	startCalls int
	stopCalls  int
	stopped    []string
}

func (g *fakeGateway) StartContainer(_ context.Context, _ *models.Application, sessionID string, _ bool) (*StartResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startCalls++
	if g.startErr != nil {
		return nil, g.startErr
	}
	return &StartResult{
		ContainerID: "ctr-" + sessionID,
		AccessURL:   "http://localhost:32768",
	}, nil
}

func (g *fakeGateway) StopContainer(_ context.Context, containerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopCalls++
	if g.stopErr != nil {
		return g.stopErr
	}
	g.stopped = append(g.stopped, containerID)
	return nil
}

func (g *fakeGateway) ListManagedContainers(_ context.Context) ([]GatewayContainer, error) {
	return g.listResult, g.listErr
}

func (g *fakeGateway) Status(_ context.Context) (*models.PortainerStatus, error) {
	return &models.PortainerStatus{Status: models.PortainerRunning}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

type registryFixture struct {
	registry *RegistryService
	catalog  *CatalogService
	auth     *AuthService
	gateway  *fakeGateway
	pub      *recordingPublisher
	user     *models.User
	app      *models.Application
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()

	db := newTestDB(t)
	log := newTestLogger()
	crypto, err := NewCryptoService(testKey)
	if err != nil {
		t.Fatalf("failed to create crypto service: %v", err)
	}

	auth := NewAuthService(db, newTestConfig(), crypto, log)
	catalog := NewCatalogService(db)
	gateway := &fakeGateway{}
	pub := &recordingPublisher{}
	registry := NewRegistryService(db, newTestConfig(), catalog, auth, gateway, pub, log)

	user, err := auth.CreateUser("alice", "secret123", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	added, err := catalog.ImportEntries([]models.CatalogEntry{{
		Name:          "Firefox",
		RepositoryURL: "https://github.com/linuxserver/docker-firefox",
		DockerCompose: "services:\n  firefox:\n    image: lscr.io/linuxserver/firefox:latest\n",
	}})
	if err != nil {
		t.Fatalf("failed to import application: %v", err)
	}
	app, err := catalog.SetEnabled(added[0].ID, true)
	if err != nil {
		t.Fatalf("failed to enable application: %v", err)
	}

	return &registryFixture{
		registry: registry,
		catalog:  catalog,
		auth:     auth,
		gateway:  gateway,
		pub:      pub,
		user:     user,
		app:      app,
	}
}

func (f *registryFixture) sessionCount(t *testing.T) int {
	t.Helper()
	sessions, err := f.registry.ListAllSessions()
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	return len(sessions)
}

func TestRegistryService_LaunchSession(t *testing.T) {
	f := newRegistryFixture(t)

	session, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, true)
	if err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}

	if session.ApplicationID != f.app.ID {
		t.Errorf("expected application %s, got %s", f.app.ID, session.ApplicationID)
	}
	if session.UserID != f.user.ID {
		t.Errorf("expected user %d, got %d", f.user.ID, session.UserID)
	}
	if session.Status != models.SessionRunning {
		t.Errorf("expected status %s, got %s", models.SessionRunning, session.Status)
	}
	if !session.IsPersistent {
		t.Error("expected persistent session")
	}
	if session.AccessURL == "" {
		t.Error("expected an access URL")
	}

	stored, err := f.registry.GetSession(session.ID)
	if err != nil {
		t.Fatalf("launched session not found in registry: %v", err)
	}
	if stored.ContainerID != session.ContainerID {
		t.Errorf("expected container %s, got %s", session.ContainerID, stored.ContainerID)
	}

	if len(f.pub.events) != 1 || f.pub.events[0] != "session_launched" {
		t.Errorf("expected a session_launched event, got %v", f.pub.events)
	}
}

func TestRegistryService_LaunchSessionLimit(t *testing.T) {
	f := newRegistryFixture(t)
	f.registry.cfg.Sessions.MaxPerUser = 2

	for i := 0; i < 2; i++ {
		if _, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false); err != nil {
			t.Fatalf("launch %d failed: %v", i+1, err)
		}
	}

	_, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != ErrSessionLimit {
		t.Errorf("expected ErrSessionLimit, got %v", err)
	}
	if f.sessionCount(t) != 2 {
		t.Errorf("expected 2 sessions, got %d", f.sessionCount(t))
	}

	// Stopping a session frees a slot.
	sessions, err := f.registry.ListSessionsForUser(f.user.ID)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if err := f.registry.StopSession(context.Background(), sessions[0].ID, f.user); err != nil {
		t.Fatalf("failed to stop session: %v", err)
	}
	if _, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false); err != nil {
		t.Errorf("launch after stop failed: %v", err)
	}
}

func TestRegistryService_LaunchDisabledApplication(t *testing.T) {
	f := newRegistryFixture(t)

	if _, err := f.catalog.SetEnabled(f.app.ID, false); err != nil {
		t.Fatalf("failed to disable application: %v", err)
	}

	_, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != ErrApplicationDisabled {
		t.Fatalf("expected ErrApplicationDisabled, got %v", err)
	}
	if f.gateway.startCalls != 0 {
		t.Error("gateway should not be called for a disabled application")
	}
	if f.sessionCount(t) != 0 {
		t.Error("no session should be recorded")
	}
}

func TestRegistryService_LaunchUnknownApplication(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.LaunchSession(context.Background(), f.user.ID, "no-such-app", false)
	if err != ErrApplicationNotFound {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}

func TestRegistryService_LaunchGatewayFailure(t *testing.T) {
	f := newRegistryFixture(t)
	f.gateway.startErr = ErrOrchestratorUnreachable

	_, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if !errors.Is(err, ErrOrchestratorUnreachable) {
		t.Fatalf("expected ErrOrchestratorUnreachable, got %v", err)
	}
	if f.sessionCount(t) != 0 {
		t.Error("failed launch must not leave a session record")
	}
}

func TestRegistryService_StopSession(t *testing.T) {
	f := newRegistryFixture(t)

	session, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}

	if err := f.registry.StopSession(context.Background(), session.ID, f.user); err != nil {
		t.Fatalf("failed to stop session: %v", err)
	}

	if _, err := f.registry.GetSession(session.ID); err != ErrSessionNotFound {
		t.Errorf("expected session to be removed, got %v", err)
	}
	if f.gateway.stopCalls != 1 {
		t.Errorf("expected 1 stop call, got %d", f.gateway.stopCalls)
	}
	if len(f.pub.events) != 2 || f.pub.events[1] != "session_stopped" {
		t.Errorf("expected a session_stopped event, got %v", f.pub.events)
	}
}

func TestRegistryService_StopSessionForbidden(t *testing.T) {
	f := newRegistryFixture(t)

	session, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}

	other, err := f.auth.CreateUser("bob", "secret123", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if err := f.registry.StopSession(context.Background(), session.ID, other); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if f.gateway.stopCalls != 0 {
		t.Error("gateway must not be called for a forbidden stop")
	}

	admin, err := f.auth.CreateUser("root", "secret123", true)
	if err != nil {
		t.Fatalf("failed to create admin: %v", err)
	}
	if err := f.registry.StopSession(context.Background(), session.ID, admin); err != nil {
		t.Errorf("admin should be able to stop any session: %v", err)
	}
}

func TestRegistryService_StopSessionNotFound(t *testing.T) {
	f := newRegistryFixture(t)

	err := f.registry.StopSession(context.Background(), "no-such-session", f.user)
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistryService_TeardownClaimIsExclusive(t *testing.T) {
	f := newRegistryFixture(t)

	session, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}

	if err := f.registry.claimTeardown(session.ID); err != nil {
		t.Fatalf("first claim should win: %v", err)
	}
	if err := f.registry.claimTeardown(session.ID); err != ErrSessionStopping {
		t.Fatalf("second claim should lose, got %v", err)
	}

	// A stop request racing against an in-flight teardown is turned away too.
	if err := f.registry.StopSession(context.Background(), session.ID, f.user); err != ErrSessionStopping {
		t.Fatalf("expected ErrSessionStopping, got %v", err)
	}
	if f.gateway.stopCalls != 0 {
		t.Errorf("losing stop must not reach the gateway, got %d calls", f.gateway.stopCalls)
	}
}

func TestRegistryService_StopFailureReleasesClaim(t *testing.T) {
	f := newRegistryFixture(t)

	session, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}

	f.gateway.stopErr = ErrOrchestratorUnreachable
	err = f.registry.StopSession(context.Background(), session.ID, f.user)
	if !errors.Is(err, ErrOrchestratorUnreachable) {
		t.Fatalf("expected ErrOrchestratorUnreachable, got %v", err)
	}

	stored, err := f.registry.GetSession(session.ID)
	if err != nil {
		t.Fatalf("session should survive a failed teardown: %v", err)
	}
	if stored.Status != models.SessionRunning {
		t.Errorf("expected claim released back to %s, got %s", models.SessionRunning, stored.Status)
	}

	// Retry succeeds once the orchestrator recovers.
	f.gateway.stopErr = nil
	if err := f.registry.StopSession(context.Background(), session.ID, f.user); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
}

func TestRegistryService_ListSessionsForUser(t *testing.T) {
	f := newRegistryFixture(t)

	other, err := f.auth.CreateUser("bob", "secret123", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if _, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false); err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}
	if _, err := f.registry.LaunchSession(context.Background(), other.ID, f.app.ID, false); err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}

	mine, err := f.registry.ListSessionsForUser(f.user.ID)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 session, got %d", len(mine))
	}
	if mine[0].Username != "alice" || mine[0].ApplicationName != "Firefox" {
		t.Errorf("unexpected session details: %+v", mine[0])
	}

	all, err := f.registry.ListAllSessions()
	if err != nil {
		t.Fatalf("failed to list all sessions: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(all))
	}
}

func TestRegistryService_Reconcile(t *testing.T) {
	f := newRegistryFixture(t)

	alive, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}
	dead, err := f.registry.LaunchSession(context.Background(), f.user.ID, f.app.ID, false)
	if err != nil {
		t.Fatalf("failed to launch session: %v", err)
	}

	f.gateway.listResult = []GatewayContainer{
		{ID: alive.ContainerID, SessionID: alive.ID, State: "running"},
		{ID: "ctr-orphan", SessionID: "forgotten-session", State: "running"},
		{ID: "ctr-unlabeled", SessionID: "", State: "running"},
	}

	report, err := f.registry.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if len(report.StoppedSessions) != 1 || report.StoppedSessions[0] != dead.ID {
		t.Errorf("expected stopped session %s, got %v", dead.ID, report.StoppedSessions)
	}
	if len(report.OrphanContainers) != 2 {
		t.Errorf("expected 2 orphan containers, got %v", report.OrphanContainers)
	}

	if _, err := f.registry.GetSession(dead.ID); err != ErrSessionNotFound {
		t.Errorf("expected dead session removed, got %v", err)
	}
	if _, err := f.registry.GetSession(alive.ID); err != nil {
		t.Errorf("live session should survive reconciliation: %v", err)
	}
}

func TestRegistryService_ReconcileGatewayFailure(t *testing.T) {
	f := newRegistryFixture(t)
	f.gateway.listErr = ErrOrchestratorUnreachable

	if _, err := f.registry.Reconcile(context.Background()); !errors.Is(err, ErrOrchestratorUnreachable) {
		t.Fatalf("expected ErrOrchestratorUnreachable, got %v", err)
	}
}
