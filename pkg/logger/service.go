package logger

import (
	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/instance"
)

// ForService builds the process logger for one of the coordinator binaries.
func ForService(name string, cfg *config.Config) *Logger {
	return New(Options{
		ServiceName: name,
		Level:       ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields: map[string]any{
			"env":      cfg.App.Env,
			"instance": instance.GetID(),
		},
	})
}
