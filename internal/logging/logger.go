package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/config"
)

// NewLogger creates a structured zerolog.Logger with context fields from
// the config. Non-empty fields are added automatically.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stderr).With().Timestamp().Str("service", "deployctl")

	if cfg.HostTag != "" {
		ctx = ctx.Str("host_tag", cfg.HostTag)
	}
	if cfg.AWSRegion != "" {
		ctx = ctx.Str("region", cfg.AWSRegion)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
