package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/homedock/internal/model"
)

// ComposeFileName is the file name used for compose content supplied inline.
const ComposeFileName = "docker-compose.yml"

// Resolved locates the compose file of an app. Method is one of the
// model.DeployMethod constants.
type Resolved struct {
	AppDir      string
	ComposePath string
	Method      string
}

// CatalogLookup is the store catalog read by the resolver.
type CatalogLookup interface {
	FindLatest(ctx context.Context, appID string) (*model.CatalogApp, error)
}

// StoreLocator is the filesystem search used as a last resort.
type StoreLocator interface {
	FindCompose(ctx context.Context, appID string) (*Resolved, error)
}

type Resolver struct {
	customRoot string
	catalog    CatalogLookup
	locator    StoreLocator
	logger     zerolog.Logger
}

func NewResolver(customRoot string, catalog CatalogLookup, locator StoreLocator, logger zerolog.Logger) *Resolver {
	return &Resolver{
		customRoot: customRoot,
		catalog:    catalog,
		locator:    locator,
		logger:     logger.With().Str("component", "resolver").Logger(),
	}
}

// CustomDir is where inline compose content for appID is written.
func (r *Resolver) CustomDir(appID string) string {
	return filepath.Join(r.customRoot, appID)
}

// Resolve finds the compose file for req. Inline content wins, then an
// explicit path, then the newest catalog entry, then the store search. It
// returns nil, nil when no source has a compose file.
func (r *Resolver) Resolve(ctx context.Context, req model.DeployRequest) (*Resolved, error) {
	if req.ComposeContent != "" {
		return r.writeContent(req.AppID, req.ComposeContent)
	}

	if req.ComposePath != "" {
		if res := existing(req.ComposePath, model.DeployMethodPath); res != nil {
			return res, nil
		}
		r.logger.Debug().Str("app_id", req.AppID).Str("path", req.ComposePath).Msg("explicit compose path missing, falling through")
	}

	if r.catalog != nil {
		app, err := r.catalog.FindLatest(ctx, req.AppID)
		if err != nil {
			r.logger.Warn().Err(err).Str("app_id", req.AppID).Msg("catalog lookup failed, falling through")
		} else if app != nil && app.ComposePath != nil && *app.ComposePath != "" {
			if res := existing(*app.ComposePath, model.DeployMethodCatalog); res != nil {
				return res, nil
			}
			r.logger.Debug().Str("app_id", req.AppID).Str("path", *app.ComposePath).Msg("catalog compose path missing, falling through")
		}
	}

	if r.locator != nil {
		res, err := r.locator.FindCompose(ctx, req.AppID)
		if err != nil {
			r.logger.Warn().Err(err).Str("app_id", req.AppID).Msg("store search failed")
			return nil, nil
		}
		return res, nil
	}
	return nil, nil
}

func (r *Resolver) writeContent(appID, content string) (*Resolved, error) {
	dir := r.CustomDir(appID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create app directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, ComposeFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write compose file %s: %w", path, err)
	}
	return &Resolved{AppDir: dir, ComposePath: path, Method: model.DeployMethodCustom}, nil
}

// existing resolves p against the working directory and returns it when
// it names a regular file.
func existing(p, method string) *Resolved {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	return &Resolved{AppDir: filepath.Dir(abs), ComposePath: abs, Method: method}
}
