package compose

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homedock/internal/model"
)

func TestStoreScanner_FindsFirstLexicalMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b-store", "plex", "docker-compose.yml"), minimalCompose)
	writeFile(t, filepath.Join(root, "a-store", "apps", "plex", "compose.yaml"), minimalCompose)

	res, err := NewStoreScanner(root).FindCompose(context.Background(), "plex")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, filepath.Join(root, "a-store", "apps", "plex", "compose.yaml"), res.ComposePath)
	assert.Equal(t, filepath.Join(root, "a-store", "apps", "plex"), res.AppDir)
	assert.Equal(t, model.DeployMethodSearch, res.Method)
}

func TestStoreScanner_IgnoresDirectoryWithoutCompose(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "store", "plex", "README.md"), "plex")

	res, err := NewStoreScanner(root).FindCompose(context.Background(), "plex")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestStoreScanner_RespectsDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", "c", "plex", "docker-compose.yml"), minimalCompose)

	res, err := NewStoreScanner(root).FindCompose(context.Background(), "plex")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestStoreScanner_SkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "plex", "docker-compose.yml"), minimalCompose)

	res, err := NewStoreScanner(root).FindCompose(context.Background(), "plex")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestStoreScanner_MissingRoot(t *testing.T) {
	res, err := NewStoreScanner(filepath.Join(t.TempDir(), "missing")).FindCompose(context.Background(), "plex")
	require.NoError(t, err)
	assert.Nil(t, res)
}
