package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edvin/homedock/internal/model"
)

func TestValidAppID(t *testing.T) {
	for _, id := range []string{"plex", "home-assistant", "app_1.2", "A"} {
		assert.True(t, ValidAppID(id), id)
	}
	for _, id := range []string{"", "-plex", "../etc", "a b", "a/b"} {
		assert.False(t, ValidAppID(id), id)
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     model.DeployRequest
		wantErr string
	}{
		{name: "ok", req: model.DeployRequest{AppID: "plex"}},
		{
			name: "ok with ports",
			req: model.DeployRequest{AppID: "plex", Config: &model.AppOverrides{
				Ports: []model.PortMapping{{Container: "80/tcp", Published: "8080"}, {Container: "53/udp"}},
			}},
		},
		{name: "missing id", req: model.DeployRequest{}, wantErr: "app ID is required"},
		{name: "bad id", req: model.DeployRequest{AppID: "../x"}, wantErr: `invalid app ID "../x"`},
		{
			name: "port out of range",
			req: model.DeployRequest{AppID: "plex", Config: &model.AppOverrides{
				Ports: []model.PortMapping{{Container: "0"}},
			}},
			wantErr: `invalid port "0"`,
		},
		{
			name: "bad published port",
			req: model.DeployRequest{AppID: "plex", Config: &model.AppOverrides{
				Ports: []model.PortMapping{{Container: "80", Published: "70000"}},
			}},
			wantErr: `invalid port "70000"`,
		},
		{
			name: "bad protocol",
			req: model.DeployRequest{AppID: "plex", Config: &model.AppOverrides{
				Ports: []model.PortMapping{{Container: "80/sctp"}},
			}},
			wantErr: "invalid port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
