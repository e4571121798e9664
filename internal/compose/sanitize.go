package compose

import (
	"bytes"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Sanitized holds both paths of a compose file during one deploy. Path is
// what docker gets; Original is what gets persisted.
type Sanitized struct {
	Original string
	Path     string
	Removed  []string
}

// Changed reports whether Path is a temporary copy.
func (s *Sanitized) Changed() bool {
	return s.Path != s.Original
}

// Cleanup removes the temporary copy. It never touches the original.
func (s *Sanitized) Cleanup() error {
	if !s.Changed() {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sanitized compose file: %w", err)
	}
	return nil
}

// Sanitizer strips directives the deploy pipeline does not support: the
// obsolete top-level version key and build sections of services that also
// name an image.
type Sanitizer struct {
	dir    string
	logger zerolog.Logger
}

// NewSanitizer writes temporary copies to dir, or the OS temp dir when empty.
func NewSanitizer(dir string, logger zerolog.Logger) *Sanitizer {
	return &Sanitizer{dir: dir, logger: logger.With().Str("component", "sanitizer").Logger()}
}

func (s *Sanitizer) Sanitize(appID, path string) (*Sanitized, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse compose file %s: %w", path, err)
	}
	top, err := topMapping(&doc)
	if err != nil {
		return nil, err
	}

	res := &Sanitized{Original: path, Path: path}
	if removeKey(top, "version") {
		res.Removed = append(res.Removed, "version")
	}
	if services := lookup(top, "services"); services != nil && services.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(services.Content); i += 2 {
			svc := deref(services.Content[i+1])
			if svc.Kind != yaml.MappingNode || lookup(svc, "image") == nil {
				continue
			}
			if removeKey(svc, "build") {
				res.Removed = append(res.Removed, "services."+services.Content[i].Value+".build")
			}
		}
	}

	if len(res.Removed) == 0 {
		return res, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode sanitized compose file: %w", err)
	}
	enc.Close()

	tmp, err := os.CreateTemp(s.dir, "homedock-"+ProjectName(appID)+"-*.yml")
	if err != nil {
		return nil, fmt.Errorf("create sanitized compose file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write sanitized compose file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close sanitized compose file: %w", err)
	}

	res.Path = tmp.Name()
	s.logger.Debug().Str("app_id", appID).Strs("removed", res.Removed).Str("path", res.Path).Msg("compose file sanitized")
	return res, nil
}
