package compose

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/google/shlex"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type runService struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name,omitempty"`
	Hostname      string            `yaml:"hostname,omitempty"`
	Entrypoint    string            `yaml:"entrypoint,omitempty"`
	Command       []string          `yaml:"command,omitempty"`
	User          string            `yaml:"user,omitempty"`
	WorkingDir    string            `yaml:"working_dir,omitempty"`
	Restart       string            `yaml:"restart,omitempty"`
	NetworkMode   string            `yaml:"network_mode,omitempty"`
	Privileged    bool              `yaml:"privileged,omitempty"`
	StdinOpen     bool              `yaml:"stdin_open,omitempty"`
	Tty           bool              `yaml:"tty,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
	Devices       []string          `yaml:"devices,omitempty"`
	CapAdd        []string          `yaml:"cap_add,omitempty"`
}

type runFile struct {
	Services map[string]runService `yaml:"services"`
}

var serviceNameInvalid = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// ConvertRunCommand translates a "docker run" command line into a
// single-service compose file.
func ConvertRunCommand(command string) (string, error) {
	words, err := shlex.Split(strings.TrimSpace(command))
	if err != nil {
		return "", fmt.Errorf("split command: %w", err)
	}
	args, err := stripRunPrefix(words)
	if err != nil {
		return "", err
	}

	fs := pflag.NewFlagSet("docker run", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)

	var (
		name       = fs.String("name", "", "")
		hostname   = fs.StringP("hostname", "h", "", "")
		entrypoint = fs.String("entrypoint", "", "")
		user       = fs.StringP("user", "u", "", "")
		workdir    = fs.StringP("workdir", "w", "", "")
		restart    = fs.String("restart", "", "")
		network    = fs.String("network", "", "")
		netAlias   = fs.String("net", "", "")
		privileged = fs.Bool("privileged", false, "")
		interact   = fs.BoolP("interactive", "i", false, "")
		tty        = fs.BoolP("tty", "t", false, "")
		publish    = fs.StringArrayP("publish", "p", nil, "")
		volumes    = fs.StringArrayP("volume", "v", nil, "")
		envs       = fs.StringArrayP("env", "e", nil, "")
		labels     = fs.StringArrayP("label", "l", nil, "")
		devices    = fs.StringArray("device", nil, "")
		capAdd     = fs.StringArray("cap-add", nil, "")
	)
	fs.BoolP("detach", "d", false, "")
	fs.Bool("rm", false, "")

	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parse docker run flags: %w", err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return "", fmt.Errorf("docker run command has no image")
	}

	svc := runService{
		Image:         rest[0],
		Command:       rest[1:],
		ContainerName: *name,
		Hostname:      *hostname,
		Entrypoint:    *entrypoint,
		User:          *user,
		WorkingDir:    *workdir,
		Restart:       *restart,
		NetworkMode:   *network,
		Privileged:    *privileged,
		StdinOpen:     *interact,
		Tty:           *tty,
		Volumes:       *volumes,
		Devices:       *devices,
		CapAdd:        *capAdd,
	}
	if svc.NetworkMode == "" {
		svc.NetworkMode = *netAlias
	}

	for _, p := range *publish {
		if _, err := nat.ParsePortSpec(p); err != nil {
			return "", fmt.Errorf("invalid port %q: %w", p, err)
		}
		svc.Ports = append(svc.Ports, p)
	}
	if svc.Environment, err = keyValues(*envs, "environment"); err != nil {
		return "", err
	}
	if svc.Labels, err = keyValues(*labels, "label"); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(runFile{Services: map[string]runService{serviceName(*name, svc.Image): svc}}); err != nil {
		return "", fmt.Errorf("encode compose file: %w", err)
	}
	enc.Close()
	return buf.String(), nil
}

func stripRunPrefix(words []string) ([]string, error) {
	switch {
	case len(words) >= 2 && words[0] == "docker" && words[1] == "run":
		return words[2:], nil
	case len(words) >= 3 && words[0] == "docker" && words[1] == "container" && words[2] == "run":
		return words[3:], nil
	}
	return nil, fmt.Errorf("not a docker run command")
}

func keyValues(pairs []string, kind string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, _ := strings.Cut(p, "=")
		if k == "" {
			return nil, fmt.Errorf("invalid %s %q", kind, p)
		}
		out[k] = v
	}
	return out, nil
}

// serviceName prefers the container name, then the last path segment of
// the image without its tag or digest.
func serviceName(containerName, image string) string {
	if containerName != "" {
		return serviceNameInvalid.ReplaceAllString(containerName, "-")
	}
	base := path.Base(image)
	if i := strings.IndexAny(base, ":@"); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "." {
		return "app"
	}
	return serviceNameInvalid.ReplaceAllString(base, "-")
}
