package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_FirstServiceInDeclarationOrder(t *testing.T) {
	f, err := Parse([]byte(`
services:
  zeta:
    image: app
    container_name: ${APP_ID}_server
    network_mode: host
    ports:
      - "127.0.0.1:8096:8096/tcp"
  alpha:
    image: db
    container_name: db
`))
	require.NoError(t, err)

	md := f.Inspect(map[string]string{"APP_ID": "jellyfin"})
	assert.Equal(t, "zeta", md.Service)
	assert.Equal(t, "jellyfin_server", md.ContainerName)
	assert.Equal(t, "host", md.NetworkMode)
	assert.Equal(t, "8096", md.WebUIPort)
	assert.Equal(t, []string{"zeta", "alpha"}, f.ServiceNames())
}

func TestInspect_PortForms(t *testing.T) {
	tests := []struct {
		name  string
		ports string
		want  string
	}{
		{"short published", `["8080:80"]`, "8080"},
		{"target only", `["80"]`, "80"},
		{"integer", `[3000]`, "3000"},
		{"long published", `[{target: 80, published: 9000}]`, "9000"},
		{"long target", `[{target: 80}]`, "80"},
		{"interpolated", `["${PORT_80:-8181}:80"]`, "8181"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte("services:\n  web:\n    image: x\n    ports: " + tt.ports + "\n"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Inspect(nil).WebUIPort)
		})
	}
}

func TestInspect_NoServices(t *testing.T) {
	f, err := Parse([]byte("name: empty\n"))
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, f.Inspect(nil))
}

func TestBindSources(t *testing.T) {
	f, err := Parse([]byte(`
services:
  web:
    image: x
    volumes:
      - ${APP_DATA_DIR}/config:/config
      - named:/data
      - type: bind
        source: ${APP_DATA_DIR}/settings.json
        target: /settings.json
      - type: volume
        source: cache
        target: /cache
  sidecar:
    image: y
    volumes:
      - ./local:/local:ro
`))
	require.NoError(t, err)

	got := f.BindSources(map[string]string{"APP_DATA_DIR": "/data/web"})
	assert.Equal(t, []string{"/data/web/config", "/data/web/settings.json", "./local"}, got)
}

func TestExpand(t *testing.T) {
	env := map[string]string{"A": "1", "EMPTY": ""}
	assert.Equal(t, "1", Expand("$A", env))
	assert.Equal(t, "x1y", Expand("x${A}y", env))
	assert.Equal(t, "def", Expand("${MISSING:-def}", env))
	assert.Equal(t, "def", Expand("${EMPTY:-def}", env))
	assert.Equal(t, "", Expand("${EMPTY-def}", env))
	assert.Equal(t, "def", Expand("${MISSING-def}", env))
	assert.Equal(t, "$A", Expand("$$A", env))
	assert.Equal(t, "plain", Expand("plain", env))
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "my-app_1", ProjectName("My.App_1"))
	assert.Equal(t, "plex", ProjectName("plex"))
}
