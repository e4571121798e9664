package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/homedock/internal/config"
)

// NewLogger creates a structured zerolog.Logger with the service and host
// context fields from the config. Empty fields are left out.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.Hostname != "" {
		ctx = ctx.Str("host", cfg.Hostname)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
