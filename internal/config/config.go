// Package config loads and validates the environment-variable surface the
// service requires at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved startup configuration. Every field here
// corresponds to a required or defaulted environment variable from spec §6.
type Config struct {
	Env string // "dev" enables verbose console logging and dev-only affordances

	HTTPAddr string

	DatabaseURL string
	RedisURL    string

	RSAPrivateKeyPath string
	RSAPublicKeyPath  string

	TenantApexHost string
	CORSOrigins    []string

	RateLimitWindowSeconds int
	RateLimitMaxRequests   int

	BreachOracleURL     string
	BreachOracleTimeout time.Duration
	BreachOracleFailOpen bool

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	DBTimeout    time.Duration
	CacheTimeout time.Duration

	DBMaxConns int32
	DBMinConns int32

	OutboxPollInterval time.Duration
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func requireEnv(k string) (string, error) {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("required environment variable %s is missing", k)
	}
	return v, nil
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s is malformed: %w", k, err)
	}
	return n, nil
}

func envBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("environment variable %s is malformed: %w", k, err)
	}
	return b, nil
}

// Load reads and validates configuration from the process environment.
// Startup must abort (exit code 1) if this returns an error — see spec §6.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      env("ENV", ""),
		HTTPAddr: env("HTTP_ADDR", ":8080"),
	}

	var err error

	if cfg.DatabaseURL, err = requireEnv("DATABASE_URL"); err != nil {
		return nil, err
	}
	if cfg.RedisURL, err = requireEnv("REDIS_URL"); err != nil {
		return nil, err
	}
	if cfg.RSAPrivateKeyPath, err = requireEnv("RSA_PRIVATE_KEY_PATH"); err != nil {
		return nil, err
	}
	if cfg.RSAPublicKeyPath, err = requireEnv("RSA_PUBLIC_KEY_PATH"); err != nil {
		return nil, err
	}
	if cfg.TenantApexHost, err = requireEnv("TENANT_APEX_HOST"); err != nil {
		return nil, err
	}
	if cfg.BreachOracleURL, err = requireEnv("BREACH_ORACLE_URL"); err != nil {
		return nil, err
	}

	origins, err := requireEnv("CORS_ORIGINS")
	if err != nil {
		return nil, err
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		return nil, fmt.Errorf("CORS_ORIGINS must list at least one origin")
	}

	if cfg.RateLimitWindowSeconds, err = envInt("RATE_LIMIT_WINDOW_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.RateLimitMaxRequests, err = envInt("RATE_LIMIT_MAX_REQUESTS", 600); err != nil {
		return nil, err
	}

	breachTimeoutMs, err := envInt("BREACH_ORACLE_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	cfg.BreachOracleTimeout = time.Duration(breachTimeoutMs) * time.Millisecond

	if cfg.BreachOracleFailOpen, err = envBool("BREACH_ORACLE_FAIL_OPEN", true); err != nil {
		return nil, err
	}

	accessTTLMin, err := envInt("ACCESS_TOKEN_TTL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.AccessTokenTTL = time.Duration(accessTTLMin) * time.Minute

	refreshTTLDays, err := envInt("REFRESH_TOKEN_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTokenTTL = time.Duration(refreshTTLDays) * 24 * time.Hour

	dbTimeoutMs, err := envInt("DB_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	cfg.DBTimeout = time.Duration(dbTimeoutMs) * time.Millisecond

	cacheTimeoutMs, err := envInt("CACHE_TIMEOUT_MS", 200)
	if err != nil {
		return nil, err
	}
	cfg.CacheTimeout = time.Duration(cacheTimeoutMs) * time.Millisecond

	// Defaults match spec §9's "bounded, e.g. 20+10 overflow" pool sizing:
	// 20 steady-state connections, with headroom to burst to 30 under load.
	dbMinConns, err := envInt("DB_MIN_CONNS", 20)
	if err != nil {
		return nil, err
	}
	cfg.DBMinConns = int32(dbMinConns)

	dbMaxConns, err := envInt("DB_MAX_CONNS", 30)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConns = int32(dbMaxConns)

	outboxPollMs, err := envInt("OUTBOX_POLL_INTERVAL_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.OutboxPollInterval = time.Duration(outboxPollMs) * time.Millisecond

	return cfg, nil
}
