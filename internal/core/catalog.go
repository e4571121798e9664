package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/homedock/internal/model"
)

// CatalogService reads store catalog entries. The catalog is filled by the
// store importer; nothing here writes to it.
type CatalogService struct {
	db DB
}

func NewCatalogService(db DB) *CatalogService {
	return &CatalogService{db: db}
}

// FindLatest returns the most recently created catalog entry for appID, or
// nil when no store carries the app.
func (s *CatalogService) FindLatest(ctx context.Context, appID string) (*model.CatalogApp, error) {
	var (
		app  model.CatalogApp
		meta []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, app_id, store_slug, name, icon, version, compose_path, container_meta, dependencies, created_at
		FROM catalog_apps WHERE app_id = $1
		ORDER BY created_at DESC LIMIT 1`, appID,
	).Scan(&app.ID, &app.AppID, &app.StoreSlug, &app.Name, &app.Icon, &app.Version,
		&app.ComposePath, &meta, &app.Dependencies, &app.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find catalog app %s: %w", appID, err)
	}
	if len(meta) > 0 {
		app.ContainerMeta = meta
	}
	return &app, nil
}

// CheckDependencies reports which declared dependencies of a catalog app
// are not installed. Apps without a catalog entry have no dependencies.
func (s *CatalogService) CheckDependencies(ctx context.Context, appID string) (model.DependencyCheck, error) {
	app, err := s.FindLatest(ctx, appID)
	if err != nil {
		return model.DependencyCheck{}, err
	}
	if app == nil || len(app.Dependencies) == 0 {
		return model.DependencyCheck{Satisfied: true}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT app_id FROM installed_apps WHERE app_id = ANY($1)`, app.Dependencies)
	if err != nil {
		return model.DependencyCheck{}, fmt.Errorf("check dependencies of %s: %w", appID, err)
	}
	defer rows.Close()

	installed := make(map[string]bool, len(app.Dependencies))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return model.DependencyCheck{}, fmt.Errorf("scan dependency: %w", err)
		}
		installed[id] = true
	}
	if err := rows.Err(); err != nil {
		return model.DependencyCheck{}, fmt.Errorf("iterate dependencies: %w", err)
	}

	var missing []string
	for _, dep := range app.Dependencies {
		if !installed[dep] {
			missing = append(missing, dep)
		}
	}
	return model.DependencyCheck{Satisfied: len(missing) == 0, Missing: missing}, nil
}
