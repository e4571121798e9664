package deploy

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/edvin/homedock/internal/compose"
	"github.com/edvin/homedock/internal/model"
)

// SystemDefaults fill environment gaps for every app.
type SystemDefaults struct {
	PUID     string
	PGID     string
	TZ       string
	DataRoot string
	RootDir  string
}

// Environment is the variable set handed to compose for one app.
type Environment map[string]string

// BuildEnvironment layers host < defaults < overrides. Defaults only fill
// variables absent from host; a host variable set to "" is kept.
func BuildEnvironment(host []string, defaults SystemDefaults, appID string, overrides *model.AppOverrides) Environment {
	env := make(Environment, len(host)+8)
	for _, kv := range host {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}

	fill := func(k, v string) {
		if _, ok := env[k]; !ok {
			env[k] = v
		}
	}
	fill("PUID", defaults.PUID)
	fill("PGID", defaults.PGID)
	fill("TZ", defaults.TZ)
	fill("APP_ID", appID)
	fill("APP_DATA_DIR", filepath.Join(defaults.DataRoot, appID))
	fill("UMBREL_ROOT", defaults.RootDir)

	if overrides == nil {
		return env
	}
	for _, p := range overrides.Ports {
		if p.Published == "" {
			continue
		}
		env[PortVar(p.Container)] = p.Published
	}
	for _, v := range overrides.Volumes {
		if v.Container == "" || v.Host == "" {
			continue
		}
		env[VolumeVar(v.Container)] = v.Host
	}
	for k, v := range overrides.Environment {
		env[k] = v
	}
	return env
}

// WithContainerName returns a copy with CONTAINER_NAME set.
func (e Environment) WithContainerName(name string) Environment {
	out := make(Environment, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out["CONTAINER_NAME"] = name
	return out
}

// Environ renders the set as sorted KEY=VALUE pairs.
func (e Environment) Environ() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// PortVar names the variable carrying the published port of containerPort.
// A protocol suffix is dropped: "80/tcp" gives PORT_80.
func PortVar(containerPort string) string {
	port, _, _ := strings.Cut(containerPort, "/")
	return "PORT_" + port
}

var volumeVarInvalid = regexp.MustCompile(`[^A-Z0-9_]`)

// VolumeVar names the variable carrying the host path mounted at
// containerPath: "/config/data" gives VOLUME_CONFIG_DATA.
func VolumeVar(containerPath string) string {
	s := strings.Trim(filepath.ToSlash(containerPath), "/")
	s = strings.ToUpper(strings.ReplaceAll(s, "/", "_"))
	return "VOLUME_" + volumeVarInvalid.ReplaceAllString(s, "_")
}

// DeterministicName is the container name assumed for appID when neither
// the compose file nor the daemon names one.
func DeterministicName(appID string) string {
	return compose.ProjectName(appID)
}
