package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/homedock/internal/model"
)

type InstalledAppService struct {
	db DB
}

func NewInstalledAppService(db DB) *InstalledAppService {
	return &InstalledAppService{db: db}
}

const installedAppColumns = `app_id, container_name, name, icon, config, source, container_meta, installed_at, updated_at`

// Get returns the installed record for appID, or nil when the app is not installed.
func (s *InstalledAppService) Get(ctx context.Context, appID string) (*model.InstalledApp, error) {
	app, err := scanInstalledApp(s.db.QueryRow(ctx,
		`SELECT `+installedAppColumns+` FROM installed_apps WHERE app_id = $1`, appID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get installed app %s: %w", appID, err)
	}
	return &app, nil
}

func (s *InstalledAppService) List(ctx context.Context) ([]model.InstalledApp, error) {
	rows, err := s.db.Query(ctx, `SELECT `+installedAppColumns+` FROM installed_apps ORDER BY app_id`)
	if err != nil {
		return nil, fmt.Errorf("list installed apps: %w", err)
	}
	defer rows.Close()

	var apps []model.InstalledApp
	for rows.Next() {
		app, err := scanInstalledApp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installed app: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installed apps: %w", err)
	}
	return apps, nil
}

func (s *InstalledAppService) Exists(ctx context.Context, appID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM installed_apps WHERE app_id = $1)`, appID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check installed app %s: %w", appID, err)
	}
	return exists, nil
}

// Upsert inserts the record or replaces every column of an existing one
// except installed_at.
func (s *InstalledAppService) Upsert(ctx context.Context, app *model.InstalledApp) error {
	config, err := json.Marshal(app.Config)
	if err != nil {
		return fmt.Errorf("marshal config for %s: %w", app.AppID, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO installed_apps (app_id, container_name, name, icon, config, source, container_meta, installed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (app_id) DO UPDATE SET
			container_name = EXCLUDED.container_name,
			name = EXCLUDED.name,
			icon = EXCLUDED.icon,
			config = EXCLUDED.config,
			source = EXCLUDED.source,
			container_meta = EXCLUDED.container_meta,
			updated_at = EXCLUDED.updated_at`,
		app.AppID, app.ContainerName, app.Name, app.Icon, config, app.Source,
		nullableJSON(app.ContainerMeta), app.InstalledAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert installed app %s: %w", app.AppID, err)
	}
	return nil
}

func scanInstalledApp(row pgx.Row) (model.InstalledApp, error) {
	var (
		app    model.InstalledApp
		config []byte
		meta   []byte
	)
	err := row.Scan(&app.AppID, &app.ContainerName, &app.Name, &app.Icon, &config,
		&app.Source, &meta, &app.InstalledAt, &app.UpdatedAt)
	if err != nil {
		return app, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &app.Config); err != nil {
			return app, fmt.Errorf("decode config: %w", err)
		}
	}
	if len(meta) > 0 {
		app.ContainerMeta = json.RawMessage(meta)
	}
	return app, nil
}

func nullableJSON(v json.RawMessage) []byte {
	if len(v) == 0 {
		return nil
	}
	return v
}
