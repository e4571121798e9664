package model

import (
	"encoding/json"
	"time"
)

// Deploy methods recorded in AppConfig.DeployMethod.
const (
	DeployMethodCustom  = "custom"
	DeployMethodPath    = "path"
	DeployMethodCatalog = "catalog"
	DeployMethodSearch  = "search"
)

// SourceCustom is the source tag for apps that did not come from a store.
const SourceCustom = "custom"

type InstalledApp struct {
	AppID         string          `json:"app_id" db:"app_id"`
	ContainerName string          `json:"container_name" db:"container_name"`
	Name          string          `json:"name" db:"name"`
	Icon          string          `json:"icon" db:"icon"`
	Config        AppConfig       `json:"config" db:"config"`
	Source        string          `json:"source" db:"source"`
	ContainerMeta json.RawMessage `json:"container_meta,omitempty" db:"container_meta"`
	InstalledAt   time.Time       `json:"installed_at" db:"installed_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// AppConfig is the configuration blob stored with an installed app.
type AppConfig struct {
	Ports        []PortMapping     `json:"ports,omitempty"`
	Volumes      []VolumeMapping   `json:"volumes,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	WebUIPort    string            `json:"web_ui_port,omitempty"`
	NetworkMode  string            `json:"network_mode,omitempty"`
	ComposePath  string            `json:"compose_path,omitempty"`
	DeployMethod string            `json:"deploy_method,omitempty"`
	Containers   []string          `json:"containers,omitempty"`
}

type PortMapping struct {
	Container string `json:"container"`
	Published string `json:"published"`
}

type VolumeMapping struct {
	Container string `json:"container"`
	Host      string `json:"host"`
}

// AppOverrides is the subset of AppConfig a caller may supply on deploy.
type AppOverrides struct {
	Ports       []PortMapping     `json:"ports,omitempty"`
	Volumes     []VolumeMapping   `json:"volumes,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	WebUIPort   string            `json:"web_ui_port,omitempty"`
	NetworkMode string            `json:"network_mode,omitempty"`
}

// AppMeta is the display metadata shown for an app.
type AppMeta struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type CatalogApp struct {
	ID            string          `json:"id" db:"id"`
	AppID         string          `json:"app_id" db:"app_id"`
	StoreSlug     string          `json:"store_slug" db:"store_slug"`
	Name          string          `json:"name" db:"name"`
	Icon          string          `json:"icon" db:"icon"`
	Version       string          `json:"version" db:"version"`
	ComposePath   *string         `json:"compose_path,omitempty" db:"compose_path"`
	ContainerMeta json.RawMessage `json:"container_meta,omitempty" db:"container_meta"`
	Dependencies  []string        `json:"dependencies" db:"dependencies"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// DependencyCheck is the outcome of checking a catalog app's dependencies
// against the installed apps.
type DependencyCheck struct {
	Satisfied bool     `json:"satisfied"`
	Missing   []string `json:"missing,omitempty"`
}
