package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"

	"github.com/bettodiaz/webtop-launcher/internal/models"
)

const (
	portainerImage         = "portainer/portainer-ce:latest"
	portainerContainerName = "webtop-portainer"
	portainerDataVolume    = "webtop-portainer-data"
)

// DeployerService provisions and inspects a local Portainer instance through
// the Docker socket. This covers the single-host setup where the launcher and
// Portainer share a Docker daemon; pointing the gateway at a remote Portainer
// works without the deployer.
type DeployerService struct {
	log *logrus.Logger
}

func NewDeployerService(log *logrus.Logger) *DeployerService {
	return &DeployerService{log: log}
}

func (s *DeployerService) getClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// IsDockerAvailable reports whether the local Docker daemon responds.
func (s *DeployerService) IsDockerAvailable(ctx context.Context) bool {
	cli, err := s.getClient()
	if err != nil {
		return false
	}
	defer func() { _ = cli.Close() }()

	_, err = cli.Ping(ctx)
	return err == nil
}

// findContainer looks up the managed Portainer container by name.
func (s *DeployerService) findContainer(ctx context.Context, cli *client.Client) (*types.ContainerJSON, error) {
	inspect, err := cli.ContainerInspect(ctx, portainerContainerName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &inspect, nil
}

// Deploy pulls the Portainer image and starts it with its UI on port 9000 and
// the Docker socket mounted. An existing stopped container is restarted; a
// running one is left alone.
func (s *DeployerService) Deploy(ctx context.Context) error {
	cli, err := s.getClient()
	if err != nil {
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer func() { _ = cli.Close() }()

	existing, err := s.findContainer(ctx, cli)
	if err != nil {
		return fmt.Errorf("failed to inspect existing deployment: %w", err)
	}
	if existing != nil {
		if existing.State != nil && existing.State.Running {
			return nil
		}
		if err := cli.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing deployment: %w", err)
		}
		s.log.Info("restarted existing portainer deployment")
		return nil
	}

	reader, err := cli.ImagePull(ctx, portainerImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull portainer image: %w", err)
	}
	// The pull completes when the stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	_ = reader.Close()

	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image: portainerImage,
			ExposedPorts: nat.PortSet{
				"9000/tcp": struct{}{},
			},
		},
		&container.HostConfig{
			Binds: []string{
				"/var/run/docker.sock:/var/run/docker.sock",
				portainerDataVolume + ":/data",
			},
			PortBindings: nat.PortMap{
				"9000/tcp": []nat.PortBinding{{HostPort: "9000"}},
			},
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		},
		nil, nil, portainerContainerName,
	)
	if err != nil {
		return fmt.Errorf("failed to create portainer container: %w", err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start portainer container: %w", err)
	}

	s.log.WithField("container_id", created.ID[:12]).Info("portainer deployed")
	return nil
}

// Status reports the deployed container's state and uptime. A missing
// container or unavailable Docker daemon yields the stopped state so the
// caller can still render a status page.
func (s *DeployerService) Status(ctx context.Context) *models.PortainerStatus {
	cli, err := s.getClient()
	if err != nil {
		return &models.PortainerStatus{Status: models.PortainerStopped}
	}
	defer func() { _ = cli.Close() }()

	inspect, err := s.findContainer(ctx, cli)
	if err != nil || inspect == nil || inspect.State == nil {
		return &models.PortainerStatus{Status: models.PortainerStopped}
	}

	switch {
	case inspect.State.Running:
		status := &models.PortainerStatus{Status: models.PortainerRunning}
		if started, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil {
			status.Uptime = time.Since(started).Round(time.Second).String()
		}
		return status
	case inspect.State.Status == "created" || inspect.State.Status == "restarting":
		return &models.PortainerStatus{Status: models.PortainerDeploying}
	case inspect.State.ExitCode != 0:
		return &models.PortainerStatus{Status: models.PortainerError}
	default:
		return &models.PortainerStatus{Status: models.PortainerStopped}
	}
}
