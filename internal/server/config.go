package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"okey-server/internal/okey"
)

type Config struct {
	Port           int
	DatabaseURL    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	Match okey.Config

	RateLimitPerSecond int
	SaveInterval       time.Duration
	IdleTimeout        time.Duration
	CleanupAfter       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Port:               8080,
		AllowedOrigins:     []string{"*"},
		LogLevel:           "info",
		LogFormat:          "console",
		Match:              okey.DefaultConfig(),
		RateLimitPerSecond: 10,
		SaveInterval:       30 * time.Second,
		IdleTimeout:        2 * time.Minute,
		CleanupAfter:       24 * time.Hour,
	}
}

// LoadConfig reads the environment, after .env has been loaded, on top of
// DefaultConfig. Malformed numbers are an error rather than a silent default.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	ints := []struct {
		key string
		min int
		set func(int)
	}{
		{"PORT", 0, func(n int) { cfg.Port = n }},
		{"TURN_DURATION_SECONDS", 1, func(n int) { cfg.Match.TurnDuration = time.Duration(n) * time.Second }},
		{"BOT_TURN_MILLIS", 0, func(n int) { cfg.Match.BotTurnDuration = time.Duration(n) * time.Millisecond }},
		{"BOT_TAKEOVER_MISSED_TURNS", 1, func(n int) { cfg.Match.BotTakeoverAfter = n }},
		{"PAIR_WIN_MAX_WILDCARDS", 0, func(n int) { cfg.Match.PairMaxWildcards = n }},
		{"RATE_LIMIT_PER_SECOND", 0, func(n int) { cfg.RateLimitPerSecond = n }},
		{"SAVE_INTERVAL_SECONDS", 0, func(n int) { cfg.SaveInterval = time.Duration(n) * time.Second }},
		{"IDLE_TIMEOUT_SECONDS", 0, func(n int) { cfg.IdleTimeout = time.Duration(n) * time.Second }},
	}
	for _, entry := range ints {
		v := os.Getenv(entry.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < entry.min {
			return Config{}, fmt.Errorf("invalid %s %q: must be an integer of at least %d", entry.key, v, entry.min)
		}
		entry.set(n)
	}

	return cfg, nil
}
