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

	xglog "github.com/ManuGH/streamrec/internal/log"
)

// ParseString reads a string from the environment or returns def. The source
// of the value is logged at debug level.
func ParseString(key, def string) string {
	return parseStringWithLogger(xglog.WithComponent("config"), key, def)
}

func parseStringWithLogger(logger zerolog.Logger, key, def string) string {
	value, ok := os.LookupEnv(key)
	switch {
	case !ok:
		logger.Debug().Str("key", key).Str("default", def).Str("source", "default").Msg("using default value")
		return def
	case value == "":
		logger.Debug().Str("key", key).Str("default", def).Str("source", "default").
			Msg("using default value (environment variable is empty)")
		return def
	case sensitive(key):
		logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
	default:
		logger.Debug().Str("key", key).Str("value", value).Str("source", "environment").Msg("using environment variable")
	}
	return value
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}

// ParseInt reads an integer, falling back to def on empty or invalid input.
func ParseInt(key string, def int) int {
	return parseWith(key, def, strconv.Atoi)
}

// ParseBool reads a boolean in any form strconv.ParseBool accepts.
func ParseBool(key string, def bool) bool {
	return parseWith(key, def, strconv.ParseBool)
}

// ParseDuration reads a Go duration string such as "5s" or "1m30s".
func ParseDuration(key string, def time.Duration) time.Duration {
	return parseWith(key, def, time.ParseDuration)
}

func ParseFloat(key string, def float64) float64 {
	return parseWith(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func parseWith[T any](key string, def T, parse func(string) (T, error)) T {
	logger := xglog.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parsed, err := parse(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().
			Err(err).
			Str("key", key).
			Str("value", v).
			Interface("default", def).
			Msg("invalid environment value, using default")
		return def
	}
	logger.Debug().Str("key", key).Interface("value", parsed).Str("source", "environment").Msg("using environment variable")
	return parsed
}
