// Package util provides small helpers shared across Finivo components.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// StringEnv returns the trimmed value of key, or fallback when it is unset or blank.
func StringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// ParseBoolEnv reads key as a flag. true/1/yes/on and false/0/no/off are
// accepted in any case; anything else yields defaultValue.
func ParseBoolEnv(key string, defaultValue bool) bool {
	raw := StringEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("util.ParseBoolEnv: unrecognised value, using default", "key", key, "value", raw, "default", defaultValue)
	return defaultValue
}
