package app

import (
	"strings"

	"github.com/charlesng35/lookupcache/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server settings, defaulting to
// info level and JSON output.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, cfg.LogFormat)
}
