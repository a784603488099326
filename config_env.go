package authcore

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/TSavo/authcore/internal/rate"
)

// Environment variables understood by ConfigFromEnv. All are optional
// except the signing secret when AUTHCORE_ENV=production.
const (
	envEnvironment   = "AUTHCORE_ENV"
	envKeyPrefix     = "AUTHCORE_KEY_PREFIX"
	envSigningMethod = "AUTHCORE_JWT_SIGNING_METHOD"
	envSecret        = "AUTHCORE_JWT_SECRET"
	envIssuer        = "AUTHCORE_JWT_ISSUER"
	envAccessTTL     = "AUTHCORE_JWT_ACCESS_TTL"
	envRefreshTTL    = "AUTHCORE_JWT_REFRESH_TTL"
	envRateProfiles  = "AUTHCORE_RATE_PROFILES"
	envPoolWorkers   = "AUTHCORE_POOL_WORKERS"
	envPoolQueue     = "AUTHCORE_POOL_QUEUE"
)

// ConfigFromEnv builds a Config from the process environment, loading a
// .env file first when one is present. Unset variables keep their
// defaults; malformed values are errors rather than silent fallbacks.
func ConfigFromEnv() (Config, error) {
	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	cfg := defaultConfig()
	cfg.Production = os.Getenv(envEnvironment) == "production"

	if v := os.Getenv(envKeyPrefix); v != "" {
		cfg.Store.KeyPrefix = v
	}
	if v := os.Getenv(envSigningMethod); v != "" {
		cfg.JWT.SigningMethod = v
	}
	if v := os.Getenv(envSecret); v != "" {
		cfg.JWT.Secret = []byte(v)
	}
	if v := os.Getenv(envIssuer); v != "" {
		cfg.JWT.Issuer = v
	}

	if v := os.Getenv(envAccessTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envAccessTTL, err)
		}
		cfg.JWT.AccessTTL = d
	}
	if v := os.Getenv(envRefreshTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envRefreshTTL, err)
		}
		cfg.JWT.RefreshTTL = d
	}

	if v := os.Getenv(envPoolWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envPoolWorkers, err)
		}
		cfg.Pool.Workers = n
	}
	if v := os.Getenv(envPoolQueue); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envPoolQueue, err)
		}
		cfg.Pool.QueueSize = n
	}

	if path := os.Getenv(envRateProfiles); path != "" {
		profiles, err := LoadRateProfiles(path)
		if err != nil {
			return Config{}, err
		}
		for op, p := range profiles {
			cfg.RateLimit.Profiles[op] = p
		}
	}

	return cfg, nil
}

type rateProfileYAML struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// LoadRateProfiles reads per-operation rate budgets from a YAML file:
//
//	login:
//	  limit: 5
//	  window: 60s
//	password_reset:
//	  limit: 3
//	  window: 1h
//
// Entries override the built-in defaults for the named operation only.
func LoadRateProfiles(path string) (map[string]rate.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rate profiles: %w", err)
	}

	var raw map[string]rateProfileYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rate profiles: %w", err)
	}

	profiles := make(map[string]rate.Profile, len(raw))
	for op, p := range raw {
		window, err := time.ParseDuration(p.Window)
		if err != nil {
			return nil, fmt.Errorf("rate profiles: operation %s: %w", op, err)
		}
		if p.Limit <= 0 || window <= 0 {
			return nil, fmt.Errorf("rate profiles: operation %s: limit and window must be positive", op)
		}
		profiles[op] = rate.Profile{Limit: p.Limit, Window: window}
	}

	return profiles, nil
}
