/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	// Media library. Optional: with no DSN the render endpoints accept
	// inline metadata only and song lookups return 503.
	DBBackend DatabaseBackend
	DBDSN     string

	// Announcement script
	ScriptPath     string  // empty selects the embedded default script
	WatchScript    bool    // reload the script file on change
	OptionalChance float64 // inclusion probability for optional tags

	// Admin endpoints (script reload/validate) bearer token. Empty leaves
	// them open, acceptable only in development.
	AdminToken string

	// TTS upstream
	TTSURL      string
	TTSKey      string // query parameter carrying the script text
	SSMLEnabled bool

	// Multi-instance event fanout
	NATSURL string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SKALD_ENV", "development"),
		HTTPBind:    getEnv("SKALD_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("SKALD_HTTP_PORT", 8093),
		MetricsBind: getEnv("SKALD_METRICS_BIND", "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnv("SKALD_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("SKALD_DB_DSN", ""),

		ScriptPath:     getEnv("SKALD_SCRIPT_PATH", ""),
		WatchScript:    getEnvBool("SKALD_SCRIPT_WATCH", true),
		OptionalChance: getEnvFloat("SKALD_OPTIONAL_TAG_CHANCE", 0.5),

		AdminToken: getEnv("SKALD_ADMIN_TOKEN", ""),

		TTSURL:      getEnv("SKALD_TTS_URL", ""),
		TTSKey:      getEnv("SKALD_TTS_KEY", "text"),
		SSMLEnabled: getEnvBool("SKALD_SSML_ENABLED", false),

		NATSURL: getEnv("SKALD_NATS_URL", ""),

		TracingEnabled:    getEnvBool("SKALD_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SKALD_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SKALD_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		if cfg.DBBackend != DatabaseSQLite {
			return nil, fmt.Errorf("SKALD_DB_DSN must be set for backend %q", cfg.DBBackend)
		}
		cfg.DBDSN = "skald.db"
	}

	if cfg.OptionalChance < 0 || cfg.OptionalChance > 1 {
		return nil, fmt.Errorf("SKALD_OPTIONAL_TAG_CHANCE must be within [0, 1], got %v", cfg.OptionalChance)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.AdminToken == "" {
		return nil, fmt.Errorf("SKALD_ADMIN_TOKEN must be set in production")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
