// Package cli holds the start-up steps shared by cmd/fintrack and
// cmd/fintrack-worker.
package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	"fintrack/internal/log"
)

// LoadEnvFile loads variables from the given .env files (".env" when none
// are named) without overriding the real environment. Missing files are not
// an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// SetupLogger builds the process logger from a LOG_LEVEL value and installs
// it as the slog default. Unknown levels fall back to info with a warning.
func SetupLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	logger := log.New(log.Config{Level: lvl, Output: os.Stdout})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info level", log.FieldError, err.Error())
	}
	return logger
}

// Bootstrap loads .env and the configuration, sets up logging and runs
// validate. It returns the config and logger even when validation fails so
// the caller can report the error.
func Bootstrap(validate func(*config.Config) error) (*config.Config, *log.Logger, error) {
	envErr := LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel)
	if envErr != nil {
		logger.Warn("Could not load .env file", log.FieldError, envErr.Error())
	}
	if validate != nil {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed",
				log.NewFields().
					WithError(err).
					WithErrorType(log.ErrorTypeConfiguration).
					WithOperation(log.OpStartup).
					ToSlice()...)
			return cfg, logger, err
		}
	}
	return cfg, logger, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
