package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the daemon configuration sourced from the environment.
type Config struct {
	AppName         string
	DataDir         string
	Endpoint        string
	ReconnectDelay  time.Duration
	UndoCapacity    int
	MetricsAddr     string
	OTLPEndpoint    string
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment while applying sensible
// defaults for local use. Endpoint may stay empty; the persisted endpoint
// from a previous session is used then.
func Load() (Config, error) {
	home, _ := os.UserHomeDir()

	cfg := Config{
		AppName:         getEnv("APP_NAME", "planboard"),
		DataDir:         getEnv("PLANBOARD_DATA_DIR", filepath.Join(home, ".planboard")),
		Endpoint:        os.Getenv("PLANBOARD_ENDPOINT"),
		ReconnectDelay:  getDuration("PLANBOARD_RECONNECT_DELAY", 3*time.Second),
		UndoCapacity:    getInt("PLANBOARD_UNDO_CAPACITY", 50),
		MetricsAddr:     getEnv("METRICS_LISTEN_ADDR", ":9090"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
