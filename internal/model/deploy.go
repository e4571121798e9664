package model

import "encoding/json"

// DeployRequest describes one deployment attempt. ComposeContent marks the
// request as a custom deploy or an edit of an existing app.
type DeployRequest struct {
	AppID          string          `json:"app_id"`
	ComposeContent string          `json:"compose_content,omitempty"`
	ComposePath    string          `json:"compose_path,omitempty"`
	Config         *AppOverrides   `json:"config,omitempty"`
	Meta           *AppMeta        `json:"meta,omitempty"`
	Source         string          `json:"source,omitempty"`
	ContainerMeta  json.RawMessage `json:"container_meta,omitempty"`
}

type DeployResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ProgressStatus string

const (
	ProgressStarting  ProgressStatus = "starting"
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressError     ProgressStatus = "error"
)

// Terminal reports whether no further events follow this status.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressCompleted || s == ProgressError
}

// InstallProgress is one progress event for an app being deployed. Events
// for the same AppID replace each other.
type InstallProgress struct {
	AppID     string         `json:"app_id"`
	Container string         `json:"container"`
	Name      string         `json:"name"`
	Icon      string         `json:"icon"`
	Progress  float64        `json:"progress"`
	Status    ProgressStatus `json:"status"`
	Message   string         `json:"message"`
}
