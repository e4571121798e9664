package system

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/homedock/internal/compose"
	"github.com/edvin/homedock/internal/model"
)

type ContainerSource interface {
	ListContainers(ctx context.Context) ([]model.ContainerInfo, error)
}

type AppSource interface {
	List(ctx context.Context) ([]model.InstalledApp, error)
}

// HostStats reads host level statistics. *HostReader is the production
// implementation.
type HostStats interface {
	System(ctx context.Context) (*model.SystemStats, error)
	Storage(ctx context.Context, path string) (*model.StorageStats, error)
	Network(ctx context.Context) (*model.NetworkStats, error)
}

// Poller collects host statistics, containers and installed apps into a
// snapshot. Host statistics are best effort; failing to reach docker or the
// database fails the poll.
type Poller struct {
	host       HostStats
	dataRoot   string
	containers ContainerSource
	apps       AppSource
	logger     zerolog.Logger
}

func NewPoller(host HostStats, dataRoot string, containers ContainerSource, apps AppSource, logger zerolog.Logger) *Poller {
	return &Poller{
		host:       host,
		dataRoot:   dataRoot,
		containers: containers,
		apps:       apps,
		logger:     logger.With().Str("component", "poller").Logger(),
	}
}

func (p *Poller) Poll(ctx context.Context) (model.Snapshot, error) {
	var (
		snap       model.Snapshot
		containers []model.ContainerInfo
		installed  []model.InstalledApp
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sys, err := p.host.System(gctx)
		if err != nil {
			p.logger.Warn().Err(err).Msg("failed to read system stats")
			return nil
		}
		snap.System = sys
		return nil
	})
	g.Go(func() error {
		st, err := p.host.Storage(gctx, p.storagePath())
		if err != nil {
			p.logger.Warn().Err(err).Msg("failed to read storage stats")
			return nil
		}
		snap.Storage = st
		return nil
	})
	g.Go(func() error {
		ns, err := p.host.Network(gctx)
		if err != nil {
			p.logger.Warn().Err(err).Msg("failed to read network stats")
			return nil
		}
		snap.Network = ns
		return nil
	})
	g.Go(func() error {
		list, err := p.containers.ListContainers(gctx)
		if err != nil {
			return fmt.Errorf("list containers: %w", err)
		}
		containers = list
		return nil
	})
	g.Go(func() error {
		list, err := p.apps.List(gctx)
		if err != nil {
			return fmt.Errorf("list installed apps: %w", err)
		}
		installed = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}

	snap.InstalledApps = installed
	snap.RunningApps, snap.OtherContainers = classify(installed, containers)
	return snap, nil
}

// storagePath falls back to / until the data root exists.
func (p *Poller) storagePath() string {
	if p.dataRoot != "" {
		if _, err := os.Stat(p.dataRoot); err == nil {
			return p.dataRoot
		}
	}
	return "/"
}

// classify attributes running containers to installed apps. A container
// belongs to an app when it is in the app's compose project or carries one
// of the app's recorded container names.
func classify(apps []model.InstalledApp, containers []model.ContainerInfo) ([]model.RunningApp, []model.ContainerInfo) {
	running := make([]model.RunningApp, 0)
	claimed := make(map[string]bool)

	for _, app := range apps {
		project := compose.ProjectName(app.AppID)
		var names []string
		for _, c := range containers {
			if c.State != "running" {
				continue
			}
			if c.Project == project || c.Name == app.ContainerName || slices.Contains(app.Config.Containers, c.Name) {
				names = append(names, c.Name)
				claimed[c.ID] = true
			}
		}
		if len(names) == 0 {
			continue
		}
		running = append(running, model.RunningApp{
			AppID:      app.AppID,
			Name:       app.Name,
			Icon:       app.Icon,
			WebUIPort:  app.Config.WebUIPort,
			Containers: names,
		})
	}

	other := make([]model.ContainerInfo, 0)
	for _, c := range containers {
		if c.State == "running" && !claimed[c.ID] {
			other = append(other, c)
		}
	}
	return running, other
}
