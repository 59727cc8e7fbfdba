package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/models"
)

// Container labels used to recognize sessions we own on the orchestrator side.
const (
	labelManaged   = "io.webtop.managed"
	labelSessionID = "io.webtop.session"
)

// PortainerGateway drives containers through Portainer's Docker proxy API.
// It keeps no state of its own; connection settings are resolved per call so
// admin configuration changes take effect immediately.
type PortainerGateway struct {
	settings   *SettingsService
	client     *http.Client
	log        *logrus.Logger
	domain     string
	endpointID int
}

func NewPortainerGateway(settings *SettingsService, cfg *config.Config, log *logrus.Logger) *PortainerGateway {
	return &PortainerGateway{
		settings:   settings,
		client:     &http.Client{Timeout: cfg.Portainer.GetRequestTimeout()},
		log:        log,
		domain:     cfg.Portainer.SessionDomain,
		endpointID: cfg.Portainer.EndpointID,
	}
}

// composeService is the subset of a compose service definition the gateway
// consumes when translating an application into a container create request.
type composeService struct {
	Image       string      `yaml:"image"`
	Environment composeEnv  `yaml:"environment"`
	Ports       []string    `yaml:"ports"`
	Volumes     []yaml.Node `yaml:"volumes"`
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

// composeEnv accepts both the list form ("KEY=value") and the mapping form
// (KEY: value) of a compose environment block.
type composeEnv []string

func (e *composeEnv) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*e = list
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		for k, v := range m {
			*e = append(*e, k+"="+v)
		}
	}
	return nil
}

// parseCompose extracts the primary service from an application's compose
// definition. The first service found is used; multi-service stacks are the
// orchestrator's concern, not ours.
func parseCompose(composeText string) (*composeService, error) {
	var file composeFile
	if err := yaml.Unmarshal([]byte(composeText), &file); err != nil {
		return nil, fmt.Errorf("%w: invalid compose definition: %v", ErrOrchestratorRejected, err)
	}
	for _, svc := range file.Services {
		if svc.Image != "" {
			return &svc, nil
		}
	}
	return nil, fmt.Errorf("%w: compose definition has no service with an image", ErrOrchestratorRejected)
}

func (g *PortainerGateway) dockerURL(base, path string) string {
	return fmt.Sprintf("%s/api/endpoints/%d/docker%s", strings.TrimRight(base, "/"), g.endpointID, path)
}

// do performs an authenticated request and classifies transport and HTTP
// failures into gateway errors.
func (g *PortainerGateway) do(ctx context.Context, method, rawURL string, body interface{}) (*http.Response, error) {
	cfg, err := g.settings.GetPortainerConfig()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrchestratorUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_ = resp.Body.Close()
		return nil, ErrOrchestratorAuth
	case resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrOrchestratorRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return resp, nil
}

type containerCreateRequest struct {
	Image      string            `json:"Image"`
	Env        []string          `json:"Env,omitempty"`
	Labels     map[string]string `json:"Labels"`
	HostConfig hostConfig        `json:"HostConfig"`
}

type hostConfig struct {
	PublishAllPorts bool     `json:"PublishAllPorts"`
	Binds           []string `json:"Binds,omitempty"`
}

// StartContainer creates and starts a container for the application's compose
// definition, then resolves the published port into an access URL. Persistent
// sessions mount a per-session named volume at /config so user data survives
// restarts.
func (g *PortainerGateway) StartContainer(ctx context.Context, app *models.Application, sessionID string, persistent bool) (*StartResult, error) {
	svc, err := parseCompose(app.DockerCompose)
	if err != nil {
		return nil, err
	}

	cfg, err := g.settings.GetPortainerConfig()
	if err != nil {
		return nil, err
	}

	create := containerCreateRequest{
		Image: svc.Image,
		Env:   svc.Environment,
		Labels: map[string]string{
			labelManaged:   "true",
			labelSessionID: sessionID,
		},
		HostConfig: hostConfig{PublishAllPorts: true},
	}
	if persistent {
		create.HostConfig.Binds = []string{"webtop-" + sessionID + ":/config"}
	}

	name := "webtop-session-" + sessionID
	createURL := g.dockerURL(cfg.URL, "/containers/create") + "?name=" + url.QueryEscape(name)
	resp, err := g.do(ctx, http.MethodPost, createURL, create)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID string `json:"Id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&created)
	_ = resp.Body.Close()
	if err != nil || created.ID == "" {
		return nil, fmt.Errorf("%w: malformed create response", ErrOrchestratorRejected)
	}

	startURL := g.dockerURL(cfg.URL, "/containers/"+created.ID+"/start")
	resp, err = g.do(ctx, http.MethodPost, startURL, nil)
	if err != nil {
		// Don't leave the created container behind.
		g.removeContainer(context.WithoutCancel(ctx), cfg.URL, created.ID)
		return nil, err
	}
	_ = resp.Body.Close()

	accessURL, err := g.resolveAccessURL(ctx, cfg.URL, created.ID)
	if err != nil {
		g.log.WithError(err).WithField("container_id", created.ID).
			Warn("could not resolve published port for session")
		accessURL = "http://" + g.domain
	}

	return &StartResult{ContainerID: created.ID, AccessURL: accessURL}, nil
}

// resolveAccessURL inspects the container and builds a URL from the first
// published host port.
func (g *PortainerGateway) resolveAccessURL(ctx context.Context, base, containerID string) (string, error) {
	resp, err := g.do(ctx, http.MethodGet, g.dockerURL(base, "/containers/"+containerID+"/json"), nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var inspect struct {
		NetworkSettings struct {
			Ports map[string][]struct {
				HostPort string `json:"HostPort"`
			} `json:"Ports"`
		} `json:"NetworkSettings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&inspect); err != nil {
		return "", err
	}

	for _, bindings := range inspect.NetworkSettings.Ports {
		for _, b := range bindings {
			if b.HostPort != "" {
				return fmt.Sprintf("http://%s:%s", g.domain, b.HostPort), nil
			}
		}
	}
	return "", fmt.Errorf("no published ports on container %s", containerID)
}

// StopContainer stops and removes a session container. 404 responses mean the
// container is already gone, which counts as success for teardown purposes.
func (g *PortainerGateway) StopContainer(ctx context.Context, containerID string) error {
	cfg, err := g.settings.GetPortainerConfig()
	if err != nil {
		return err
	}

	resp, err := g.do(ctx, http.MethodPost, g.dockerURL(cfg.URL, "/containers/"+containerID+"/stop"), nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	g.removeContainer(ctx, cfg.URL, containerID)
	return nil
}

func (g *PortainerGateway) removeContainer(ctx context.Context, base, containerID string) {
	resp, err := g.do(ctx, http.MethodDelete, g.dockerURL(base, "/containers/"+containerID+"?force=1"), nil)
	if err != nil {
		g.log.WithError(err).WithField("container_id", containerID).Warn("container removal failed")
		return
	}
	_ = resp.Body.Close()
}

// ListManagedContainers returns live containers carrying our session label.
func (g *PortainerGateway) ListManagedContainers(ctx context.Context) ([]GatewayContainer, error) {
	cfg, err := g.settings.GetPortainerConfig()
	if err != nil {
		return nil, err
	}

	filters := url.QueryEscape(fmt.Sprintf(`{"label":["%s=true"]}`, labelManaged))
	listURL := g.dockerURL(cfg.URL, "/containers/json") + "?filters=" + filters
	resp, err := g.do(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var raw []struct {
		ID     string            `json:"Id"`
		State  string            `json:"State"`
		Labels map[string]string `json:"Labels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: malformed list response", ErrOrchestratorRejected)
	}

	containers := make([]GatewayContainer, 0, len(raw))
	for _, c := range raw {
		containers = append(containers, GatewayContainer{
			ID:        c.ID,
			SessionID: c.Labels[labelSessionID],
			State:     c.State,
		})
	}
	return containers, nil
}

// Status probes the orchestrator's system endpoint and derives its state.
func (g *PortainerGateway) Status(ctx context.Context) (*models.PortainerStatus, error) {
	cfg, err := g.settings.GetPortainerConfig()
	if err != nil {
		return nil, err
	}

	statusURL := strings.TrimRight(cfg.URL, "/") + "/api/system/status"
	resp, err := g.do(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		if err == ErrOrchestratorAuth {
			return &models.PortainerStatus{Status: models.PortainerError}, nil
		}
		return &models.PortainerStatus{Status: models.PortainerStopped}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	var status struct {
		Version string `json:"Version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return &models.PortainerStatus{Status: models.PortainerError}, nil
	}

	return &models.PortainerStatus{
		Status:  models.PortainerRunning,
		Version: status.Version,
	}, nil
}
