// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Without credentials the engine falls back to an anonymous read-only identity;
// use ValidateAuthenticated when sending must work.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch identity
	TwitchNick       string
	TwitchOAuthToken string
	TwitchChannels   []string

	// Engine
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	AuthTimeout   time.Duration
	JoinGrace     time.Duration
	QueueDepth    int
	EventBuffer   int
	MaxLineLen    int
	Diagnostics   bool

	// Rate limiting (platform policy; override when Twitch changes limits)
	RateMsgsPerWindow         int
	RateElevatedMsgsPerWindow int
	RateWindow                time.Duration

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. Missing Twitch
// credentials are not an error; the caller decides between anonymous and
// authenticated operation.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchNick = os.Getenv("TWITCH_NICK")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	if raw := os.Getenv("TWITCH_CHANNELS"); raw != "" {
		for _, ch := range strings.Split(raw, ",") {
			ch = strings.TrimSpace(ch)
			if ch != "" {
				cfg.TwitchChannels = append(cfg.TwitchChannels, ch)
			}
		}
	}

	var err error
	if cfg.ReconnectBase, err = durationEnv("RECONNECT_BASE", time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectCap, err = durationEnv("RECONNECT_CAP", time.Minute); err != nil {
		return nil, err
	}
	if cfg.AuthTimeout, err = durationEnv("AUTH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.JoinGrace, err = durationEnv("JOIN_GRACE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateWindow, err = durationEnv("RATE_WINDOW", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.QueueDepth, err = intEnv("COMMAND_QUEUE_DEPTH", 32); err != nil {
		return nil, err
	}
	if cfg.EventBuffer, err = intEnv("EVENT_BUFFER", 256); err != nil {
		return nil, err
	}
	if cfg.MaxLineLen, err = intEnv("MAX_LINE_LEN", 8192); err != nil {
		return nil, err
	}
	if cfg.RateMsgsPerWindow, err = intEnv("RATE_MSGS_PER_WINDOW", 20); err != nil {
		return nil, err
	}
	if cfg.RateElevatedMsgsPerWindow, err = intEnv("RATE_ELEVATED_MSGS_PER_WINDOW", 100); err != nil {
		return nil, err
	}

	cfg.Diagnostics = os.Getenv("CHAT_DIAGNOSTICS") == "1"

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidateAuthenticated checks required fields when the relay must be able
// to send messages (anonymous identities are read-only).
func (c *Config) ValidateAuthenticated() error {
	if c.TwitchNick == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_NICK, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration): %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (integer): %w", key, err)
	}
	return n, nil
}
