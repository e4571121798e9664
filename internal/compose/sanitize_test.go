package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSanitize_StripsVersionAndBuild(t *testing.T) {
	src := filepath.Join(t.TempDir(), "docker-compose.yml")
	original := `version: "3.8"
services:
  web:
    image: nginx:1.27
    build: .
    ports:
      - "8080:80"
  worker:
    build: ./worker
`
	writeFile(t, src, original)
	s := NewSanitizer(t.TempDir(), zerolog.Nop())

	res, err := s.Sanitize("myapp", src)
	require.NoError(t, err)
	require.True(t, res.Changed())
	assert.Equal(t, src, res.Original)
	assert.NotEqual(t, src, res.Path)
	assert.ElementsMatch(t, []string{"version", "services.web.build"}, res.Removed)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, original, string(data), "original must not be modified")

	var out map[string]any
	data, err = os.ReadFile(res.Path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.NotContains(t, out, "version")
	services := out["services"].(map[string]any)
	assert.NotContains(t, services["web"], "build")
	assert.Contains(t, services["worker"], "build")

	require.NoError(t, res.Cleanup())
	_, err = os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestSanitize_NoopReturnsSamePath(t *testing.T) {
	src := filepath.Join(t.TempDir(), "docker-compose.yml")
	writeFile(t, src, minimalCompose)
	tmp := t.TempDir()

	res, err := NewSanitizer(tmp, zerolog.Nop()).Sanitize("myapp", src)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Equal(t, src, res.Path)
	require.NoError(t, res.Cleanup())

	_, err = os.Stat(src)
	assert.NoError(t, err)
	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestSanitize_InvalidYAML(t *testing.T) {
	src := filepath.Join(t.TempDir(), "docker-compose.yml")
	writeFile(t, src, "services: [\n")

	_, err := NewSanitizer(t.TempDir(), zerolog.Nop()).Sanitize("myapp", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse compose file")
}
