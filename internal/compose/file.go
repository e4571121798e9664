package compose

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// File is a parsed compose file that keeps service declaration order.
type File struct {
	doc      yaml.Node
	services []service
}

type service struct {
	name string
	node *yaml.Node
}

// Metadata describes the first service of a compose file.
type Metadata struct {
	Service       string
	ContainerName string
	WebUIPort     string
	NetworkMode   string
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, &f.doc); err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	top, err := topMapping(&f.doc)
	if err != nil {
		return nil, err
	}
	services := lookup(top, "services")
	if services == nil || services.Kind != yaml.MappingNode {
		return f, nil
	}
	for i := 0; i+1 < len(services.Content); i += 2 {
		f.services = append(f.services, service{
			name: services.Content[i].Value,
			node: deref(services.Content[i+1]),
		})
	}
	return f, nil
}

func (f *File) ServiceNames() []string {
	names := make([]string, 0, len(f.services))
	for _, s := range f.services {
		names = append(names, s.name)
	}
	return names
}

// Inspect extracts metadata from the first declared service. Values are
// expanded against env the way compose interpolates them.
func (f *File) Inspect(env map[string]string) Metadata {
	if len(f.services) == 0 {
		return Metadata{}
	}
	svc := f.services[0]
	md := Metadata{
		Service:       svc.name,
		ContainerName: Expand(scalar(svc.node, "container_name"), env),
		NetworkMode:   Expand(scalar(svc.node, "network_mode"), env),
	}

	ports := lookup(svc.node, "ports")
	if ports != nil && ports.Kind == yaml.SequenceNode && len(ports.Content) > 0 {
		md.WebUIPort = portOf(deref(ports.Content[0]), env)
	}
	return md
}

func portOf(n *yaml.Node, env map[string]string) string {
	switch n.Kind {
	case yaml.ScalarNode:
		mappings, err := nat.ParsePortSpec(Expand(n.Value, env))
		if err != nil || len(mappings) == 0 {
			return ""
		}
		if hp := mappings[0].Binding.HostPort; hp != "" {
			return hp
		}
		return mappings[0].Port.Port()
	case yaml.MappingNode:
		if p := Expand(scalar(n, "published"), env); p != "" {
			return p
		}
		return Expand(scalar(n, "target"), env)
	}
	return ""
}

// BindSources lists the host paths bind-mounted by any service.
func (f *File) BindSources(env map[string]string) []string {
	var sources []string
	for _, svc := range f.services {
		vols := lookup(svc.node, "volumes")
		if vols == nil || vols.Kind != yaml.SequenceNode {
			continue
		}
		for _, v := range vols.Content {
			v = deref(v)
			switch v.Kind {
			case yaml.ScalarNode:
				src, _, ok := strings.Cut(Expand(v.Value, env), ":")
				if ok && isHostPath(src) {
					sources = append(sources, src)
				}
			case yaml.MappingNode:
				if scalar(v, "type") == "bind" {
					if src := Expand(scalar(v, "source"), env); src != "" {
						sources = append(sources, src)
					}
				}
			}
		}
	}
	return sources
}

func isHostPath(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") || strings.HasPrefix(s, "~")
}

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Expand interpolates $VAR, ${VAR}, ${VAR:-default} and ${VAR-default}.
// "$$" is left as a literal dollar.
func Expand(s string, env map[string]string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	const escaped = "\x00"
	s = strings.ReplaceAll(s, "$$", escaped)
	s = varPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := varPattern.FindStringSubmatch(m)
		if sub[2] != "" {
			return env[sub[2]]
		}
		expr := sub[1]
		if name, def, ok := strings.Cut(expr, ":-"); ok {
			if v := env[name]; v != "" {
				return v
			}
			return def
		}
		if name, def, ok := strings.Cut(expr, "-"); ok {
			if v, set := env[name]; set {
				return v
			}
			return def
		}
		if name, _, ok := strings.Cut(expr, ":?"); ok {
			return env[name]
		}
		return env[expr]
	})
	return strings.ReplaceAll(s, escaped, "$")
}

var projectNameInvalid = regexp.MustCompile(`[^a-z0-9_-]`)

// ProjectName is the compose project name used for every invocation
// belonging to appID.
func ProjectName(appID string) string {
	return projectNameInvalid.ReplaceAllString(strings.ToLower(appID), "-")
}
