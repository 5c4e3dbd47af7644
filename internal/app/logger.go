package app

import (
	"strings"

	"github.com/jovyweb/authcore/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
// A non-empty file path adds rotated JSON output.
func ConfigureLogging(level string, file FileLogConfig) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.InitWithFile(level, file.FileOptions())
}
