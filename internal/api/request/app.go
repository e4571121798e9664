package request

import (
	"bytes"
	"encoding/json"

	"github.com/edvin/homedock/internal/model"
)

// DeployApp is the body of POST /apps/deploy. Port values are checked by
// the deploy pipeline so that failures are reported as progress.
type DeployApp struct {
	AppID          string              `json:"app_id" validate:"required,appid"`
	ComposeContent string              `json:"compose_content"`
	ComposePath    string              `json:"compose_path"`
	Config         *model.AppOverrides `json:"config"`
	Meta           *model.AppMeta      `json:"meta"`
	Source         string              `json:"source" validate:"omitempty,max=64"`
	ContainerMeta  json.RawMessage     `json:"container_meta"`
}

// ToModel converts the body. An explicit null container_meta counts as
// absent so it cannot clear stored metadata.
func (r DeployApp) ToModel() model.DeployRequest {
	meta := r.ContainerMeta
	if v := bytes.TrimSpace(meta); len(v) == 0 || bytes.Equal(v, []byte("null")) {
		meta = nil
	}
	return model.DeployRequest{
		AppID:          r.AppID,
		ComposeContent: r.ComposeContent,
		ComposePath:    r.ComposePath,
		Config:         r.Config,
		Meta:           r.Meta,
		Source:         r.Source,
		ContainerMeta:  meta,
	}
}

// ConvertRun is the body of POST /apps/convert.
type ConvertRun struct {
	Command string `json:"command" validate:"required"`
}
