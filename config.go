package main

import (
	"os"
	"strconv"
	"time"

	"github.com/apex/log"
)

type Config struct {
	// Server
	Addr string

	// Database; empty runs on the in-memory backend
	DatabaseURL string
	DBMaxConns  int
	// Password of the seeded users on the in-memory backend
	DevPassword string

	// Sessions
	SessionSecret string
	SessionIdle   time.Duration

	// Editor
	AutosaveEnabled    bool
	AutosaveDelay      time.Duration
	StandardShiftHours float64

	// Logging
	LogLevel  string
	LogFormat string
}

func LoadConfig() *Config {
	cfg := &Config{
		Addr:               getEnv("APP_ADDR", ":8084"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DBMaxConns:         getIntEnv("DB_MAX_CONNS", 10),
		DevPassword:        getEnv("DEV_PASSWORD", "password"),
		SessionSecret:      getEnv("SESSION_SECRET", "change-this-session-secret"),
		SessionIdle:        getDurationEnv("SESSION_IDLE", 5*time.Minute),
		AutosaveEnabled:    getBoolEnv("AUTOSAVE_ENABLED", true),
		AutosaveDelay:      getDurationEnv("AUTOSAVE_DELAY", 1200*time.Millisecond),
		StandardShiftHours: getFloatEnv("STANDARD_SHIFT_HOURS", 8),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		log.Warnf("invalid %s=%q, using %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warnf("invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

// getDurationEnv accepts Go durations ("1.5s") or a bare number of milliseconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	log.Warnf("invalid %s=%q, using %s", key, value, defaultValue)
	return defaultValue
}
