package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"filecask/internal/config"
)

const logLevelEnvKey = "FILECASK_LOG_LEVEL"

// configureLoggerForCLI installs the process-wide slog logger. The level is
// taken from the --log-level flag, the FILECASK_LOG_LEVEL environment
// variable, or the config file, in that order. A bad flag value is an error;
// a bad env or config value falls back to the default level and returns a
// warning for the caller to print.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	rawLevel, source := selectedLogLevel(flagLevel, envLevel, configLevel)

	err := configureDefaultLogger(rawLevel)
	if err == nil {
		return "", nil
	}
	if source == "flag" {
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	}

	_ = configureDefaultLogger("")
	switch source {
	case "env":
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
	case "config":
		return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
	}
	return "", nil
}

// selectedLogLevel returns the first non-blank level and where it came from.
func selectedLogLevel(flagLevel, envLevel, configLevel string) (raw, source string) {
	for _, candidate := range []struct {
		value  string
		source string
	}{
		{flagLevel, "flag"},
		{envLevel, "env"},
		{configLevel, "config"},
	} {
		if strings.TrimSpace(candidate.value) != "" {
			return candidate.value, candidate.source
		}
	}
	return "", "default"
}

func configureDefaultLogger(rawLevel string) error {
	level, err := parseLogLevel(rawLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(level))
	return nil
}

// parseLogLevel accepts the slog level names, "warning" as an alias for
// "warn", and bare integers for fine-grained levels. An empty string means
// the default level.
func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	switch {
	case value == "":
		return slog.LevelInfo, nil
	case strings.EqualFold(value, "warning"):
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
