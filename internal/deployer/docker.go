package deployer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/edvin/homedock/internal/model"
)

// Labels compose sets on every container it creates.
const (
	ComposeProjectLabel = "com.docker.compose.project"
	ComposeServiceLabel = "com.docker.compose.service"
)

// Docker reads container state from the local Docker daemon.
type Docker struct {
	cli *client.Client
}

// NewDocker connects to host, or to the daemon named by DOCKER_HOST and the
// default socket when host is empty.
func NewDocker(host string) (*Docker, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker: %w", err)
	}
	return nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

// ListContainers returns every container on the host, running or not.
func (d *Docker) ListContainers(ctx context.Context) ([]model.ContainerInfo, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return toContainerInfos(list), nil
}

// ProjectContainers returns the containers compose created for project.
func (d *Docker) ProjectContainers(ctx context.Context, project string) ([]model.ContainerInfo, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ComposeProjectLabel+"="+project)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers of project %s: %w", project, err)
	}
	return toContainerInfos(list), nil
}

func toContainerInfos(list []container.Summary) []model.ContainerInfo {
	out := make([]model.ContainerInfo, 0, len(list))
	for _, c := range list {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, model.ContainerInfo{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			State:   string(c.State),
			Status:  c.Status,
			Project: c.Labels[ComposeProjectLabel],
			Service: c.Labels[ComposeServiceLabel],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
