package config

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger builds the zap preset for the configured mode. Production logs
// JSON at info level; development logs console output at debug level.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(c.Mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
