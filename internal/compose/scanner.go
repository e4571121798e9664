package compose

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/edvin/homedock/internal/model"
)

// ComposeFileNames are the file names compose looks for, in preference order.
var ComposeFileNames = []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"}

const storeScanDepth = 3

var errFound = errors.New("found")

// StoreScanner finds compose files in the checked-out app stores. A store
// app lives in a directory named after its id.
type StoreScanner struct {
	root string
}

func NewStoreScanner(root string) *StoreScanner {
	return &StoreScanner{root: root}
}

// FindCompose returns the first match in lexical walk order, or nil.
func (s *StoreScanner) FindCompose(ctx context.Context, appID string) (*Resolved, error) {
	if s.root == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var found *Resolved
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped
			if d != nil && d.IsDir() && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}

		rel, _ := filepath.Rel(s.root, path)
		depth := 0
		if rel != "." {
			depth = len(strings.Split(rel, string(filepath.Separator)))
		}

		if depth > 0 && d.Name() == appID {
			if composePath := findComposeIn(path); composePath != "" {
				found = &Resolved{AppDir: path, ComposePath: composePath, Method: model.DeployMethodSearch}
				return errFound
			}
		}
		if depth >= storeScanDepth {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return nil, err
	}
	return found, nil
}

func findComposeIn(dir string) string {
	for _, name := range ComposeFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}
