package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string
	ServiceName    string
	Hostname       string

	// RootDir is exported to app containers as UMBREL_ROOT.
	RootDir       string
	AppDataRoot   string
	CustomAppsDir string
	AppStoresDir  string
	// SanitizeDir holds the temporary compose copies handed to docker.
	// Empty means the OS temp dir.
	SanitizeDir  string
	DockerBinary string

	DefaultPUID string
	DefaultPGID string
	DefaultTZ   string

	PollInterval   time.Duration
	ProgressExpiry time.Duration
	CommandTimeout time.Duration
}

// Load reads settings from the environment. When HOMEDOCK_CONFIG names a
// YAML file its keys (database_url, poll_interval, ...) are read too;
// environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if path := os.Getenv("HOMEDOCK_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	hostname, _ := os.Hostname()
	v.SetDefault("homedock_root", "/opt/homedock")
	root := v.GetString("homedock_root")

	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "homedock")
	v.SetDefault("hostname", hostname)
	v.SetDefault("app_data_root", filepath.Join(root, "app-data"))
	v.SetDefault("custom_apps_dir", filepath.Join(root, "custom-apps"))
	v.SetDefault("app_stores_dir", filepath.Join(root, "app-stores"))
	v.SetDefault("docker_binary", "docker")
	v.SetDefault("default_puid", "1000")
	v.SetDefault("default_pgid", "1000")
	v.SetDefault("default_tz", "UTC")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("progress_expiry", "5s")
	v.SetDefault("command_timeout", "60s")

	cfg := &Config{
		DatabaseURL:    v.GetString("database_url"),
		HTTPListenAddr: v.GetString("http_listen_addr"),
		LogLevel:       v.GetString("log_level"),
		ServiceName:    v.GetString("service_name"),
		Hostname:       v.GetString("hostname"),
		RootDir:        root,
		AppDataRoot:    v.GetString("app_data_root"),
		CustomAppsDir:  v.GetString("custom_apps_dir"),
		AppStoresDir:   v.GetString("app_stores_dir"),
		SanitizeDir:    v.GetString("sanitize_dir"),
		DockerBinary:   v.GetString("docker_binary"),
		DefaultPUID:    v.GetString("default_puid"),
		DefaultPGID:    v.GetString("default_pgid"),
		DefaultTZ:      v.GetString("default_tz"),
	}

	var err error
	if cfg.PollInterval, err = getDuration(v, "poll_interval"); err != nil {
		return nil, err
	}
	if cfg.ProgressExpiry, err = getDuration(v, "progress_expiry"); err != nil {
		return nil, err
	}
	if cfg.CommandTimeout, err = getDuration(v, "command_timeout"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings the server cannot run without are present.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.AppDataRoot == "" {
		missing = append(missing, "APP_DATA_ROOT")
	}
	if c.CustomAppsDir == "" {
		missing = append(missing, "CUSTOM_APPS_DIR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL":   c.PollInterval,
		"PROGRESS_EXPIRY": c.ProgressExpiry,
		"COMMAND_TIMEOUT": c.CommandTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// getDuration parses key strictly; viper's own GetDuration reads garbage as zero.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", strings.ToUpper(key), err)
	}
	return d, nil
}
