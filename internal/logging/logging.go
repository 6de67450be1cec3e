// Package logging wires up the process-wide op/go-logging backend.
package logging

import (
	"os"

	"github.com/op/go-logging"

	"github.com/joecharamut/mx240a-driver/internal/config"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} ▶%{color:reset} %{message}`,
)

// Setup installs a colorized stderr backend at defaultLevel, or at the
// level named by config.LogLevelEnv if set, and returns the module logger.
func Setup(module string, defaultLevel logging.Level) *logging.Logger {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, stderrFormat)
	leveled := logging.AddModuleLevel(formatted)

	level := defaultLevel
	if envLevel, err := logging.LogLevel(os.Getenv(config.LogLevelEnv)); err == nil {
		level = envLevel
	}
	leveled.SetLevel(level, module)

	logging.SetBackend(leveled)
	return logging.MustGetLogger(module)
}
