package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/edvin/homedock/internal/model"
)

// InstalledApps is the installed-app store.
type InstalledApps interface {
	Get(ctx context.Context, appID string) (*model.InstalledApp, error)
	Upsert(ctx context.Context, app *model.InstalledApp) error
}

// Outcome is everything a successful deploy learned about the app.
type Outcome struct {
	AppID         string
	ContainerName string
	Containers    []string
	WebUIPort     string
	NetworkMode   string
	ComposePath   string
	DeployMethod  string
	Meta          model.AppMeta

	// Caller-supplied values; empty means "keep what is known".
	Source        string
	ContainerMeta json.RawMessage
	Overrides     *model.AppOverrides

	Existing *model.InstalledApp
	Catalog  *model.CatalogApp
}

// Recorder persists deploy outcomes, merging them with the existing record
// so that a redeploy never clears fields the caller left out.
type Recorder struct {
	apps InstalledApps
	now  func() time.Time
}

func NewRecorder(apps InstalledApps) *Recorder {
	return &Recorder{apps: apps, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, out Outcome) (*model.InstalledApp, error) {
	now := r.now()
	app := &model.InstalledApp{
		AppID:         out.AppID,
		ContainerName: out.ContainerName,
		Name:          out.Meta.Name,
		Icon:          out.Meta.Icon,
		Config:        mergeConfig(out),
		Source:        resolveSource(out.Source, out.Existing, out.Catalog),
		ContainerMeta: resolveContainerMeta(out.ContainerMeta, out.Existing, out.Catalog),
		InstalledAt:   now,
		UpdatedAt:     now,
	}
	if out.Existing != nil && !out.Existing.InstalledAt.IsZero() {
		app.InstalledAt = out.Existing.InstalledAt
	}

	if err := r.apps.Upsert(ctx, app); err != nil {
		return nil, fmt.Errorf("save installation record: %w", err)
	}
	return app, nil
}

func resolveSource(explicit string, existing *model.InstalledApp, catalog *model.CatalogApp) string {
	switch {
	case explicit != "":
		return explicit
	case existing != nil && existing.Source != "":
		return existing.Source
	case catalog != nil && catalog.StoreSlug != "":
		return catalog.StoreSlug
	}
	return model.SourceCustom
}

func resolveContainerMeta(explicit json.RawMessage, existing *model.InstalledApp, catalog *model.CatalogApp) json.RawMessage {
	switch {
	case hasJSON(explicit):
		return explicit
	case existing != nil && hasJSON(existing.ContainerMeta):
		return existing.ContainerMeta
	case catalog != nil && hasJSON(catalog.ContainerMeta):
		return catalog.ContainerMeta
	}
	return nil
}

// hasJSON reports whether raw holds a value other than JSON null.
func hasJSON(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// mergeConfig layers existing record < compose metadata < caller overrides,
// then sets the fields every deploy owns.
func mergeConfig(out Outcome) model.AppConfig {
	var cfg model.AppConfig
	if out.Existing != nil {
		cfg = out.Existing.Config
		cfg.Environment = maps.Clone(cfg.Environment)
	}

	if out.WebUIPort != "" {
		cfg.WebUIPort = out.WebUIPort
	}
	if out.NetworkMode != "" {
		cfg.NetworkMode = out.NetworkMode
	}

	if o := out.Overrides; o != nil {
		if o.Ports != nil {
			cfg.Ports = o.Ports
		}
		if o.Volumes != nil {
			cfg.Volumes = o.Volumes
		}
		if o.Environment != nil {
			cfg.Environment = o.Environment
		}
		if o.WebUIPort != "" {
			cfg.WebUIPort = o.WebUIPort
		}
		if o.NetworkMode != "" {
			cfg.NetworkMode = o.NetworkMode
		}
	}

	cfg.ComposePath = out.ComposePath
	cfg.DeployMethod = out.DeployMethod
	cfg.Containers = out.Containers
	return cfg
}
