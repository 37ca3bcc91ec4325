// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/log"
)

// lookupFunc abstracts os.LookupEnv for tests.
type lookupFunc func(string) (string, bool)

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "cookie")
}

// ParseString reads key from the environment or returns defaultValue.
// Empty values count as unset. The source is logged at debug level.
func ParseString(key, defaultValue string) string {
	return parseString(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseString(lookup lookupFunc, logger zerolog.Logger, key, defaultValue string) string {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Str("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitiveKey(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return v
}

// ParseInt reads an integer, falling back to defaultValue when unset or invalid.
func ParseInt(key string, defaultValue int) int {
	return parseInt(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseInt(lookup lookupFunc, logger zerolog.Logger, key string, defaultValue int) int {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Int("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", defaultValue).Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	return i
}

// ParseDuration reads a Go duration such as "5s". A bare integer is taken
// as seconds.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseDuration(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseDuration(lookup lookupFunc, logger zerolog.Logger, key string, defaultValue time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Dur("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	d, err := durationValue(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Dur("default", defaultValue).Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	return d
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(key string, defaultValue bool) bool {
	return parseBool(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseBool(lookup lookupFunc, logger zerolog.Logger, key string, defaultValue bool) bool {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Bool("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		logger.Debug().Str("key", key).Bool("value", true).Str("source", "environment").Msg("using environment variable")
		return true
	case "false", "0", "no":
		logger.Debug().Str("key", key).Bool("value", false).Str("source", "environment").Msg("using environment variable")
		return false
	}
	logger.Warn().Str("key", key).Str("value", v).Bool("default", defaultValue).Msg("invalid boolean in environment variable, using default")
	return defaultValue
}

func durationValue(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
