package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice chat gateway.
type Config struct {
	BindAddr                  string
	ShutdownTimeout           time.Duration
	MetricsNamespace          string
	AllowAnyOrigin            bool
	BackendBaseURL            string
	BackendCommandTimeout     time.Duration
	DialogueInactivityTimeout time.Duration
	DatabaseURL               string
	CaptureMaxSeconds         int
	CaptureTargetSampleRate   int
	PlaybackAckTimeout        time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                  envOrDefault("APP_BIND_ADDR", ":8090"),
		MetricsNamespace:          envOrDefault("APP_METRICS_NAMESPACE", "vaultvoice"),
		AllowAnyOrigin:            false,
		BackendBaseURL:            envOrDefault("BACKEND_BASE_URL", "http://localhost:8000"),
		BackendCommandTimeout:     60 * time.Second,
		DialogueInactivityTimeout: 5 * time.Minute,
		DatabaseURL:               trimSpaceEnv("DATABASE_URL"),
		CaptureMaxSeconds:         120,
		CaptureTargetSampleRate:   16000,
		PlaybackAckTimeout:        45 * time.Second,
		ShutdownTimeout:           15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DialogueInactivityTimeout, err = durationFromEnv("APP_DIALOGUE_INACTIVITY_TIMEOUT", cfg.DialogueInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BackendCommandTimeout, err = durationFromEnv("BACKEND_REQUEST_TIMEOUT", cfg.BackendCommandTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackAckTimeout, err = durationFromEnv("APP_PLAYBACK_ACK_TIMEOUT", cfg.PlaybackAckTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureMaxSeconds, err = intFromEnv("CAPTURE_MAX_SECONDS", cfg.CaptureMaxSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureTargetSampleRate, err = intFromEnv("CAPTURE_TARGET_SAMPLE_RATE", cfg.CaptureTargetSampleRate)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.BackendBaseURL) == "" {
		return Config{}, fmt.Errorf("BACKEND_BASE_URL must not be empty")
	}
	if cfg.DialogueInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_DIALOGUE_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.CaptureMaxSeconds <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_MAX_SECONDS must be positive")
	}
	// The backend transcriber only accepts 16 kHz mono PCM; the knob exists
	// so a mismatch fails loudly at startup rather than per-request.
	if cfg.CaptureTargetSampleRate != 16000 {
		return Config{}, fmt.Errorf("CAPTURE_TARGET_SAMPLE_RATE must be 16000, got %d", cfg.CaptureTargetSampleRate)
	}
	if cfg.BackendCommandTimeout <= 0 {
		return Config{}, fmt.Errorf("BACKEND_REQUEST_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimSpaceEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimSpaceEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimSpaceEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimSpaceEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
