package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration

	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	SessionIdleTimeout time.Duration
	IdleCheckInterval  time.Duration
	RefreshLead        time.Duration

	LockoutMaxFailures int
	LockoutDuration    time.Duration

	RosterFile    string
	StoreBackend  string
	StoreFile     string
	DatabaseURL   string
	AuditLogFile  string
	RevocationURL string
	EmergencyCode string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int

	StreamMaxDuration time.Duration
	StreamIdleTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		JWTSecret:          strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:       getDuration("JWT_ACCESS_TTL", time.Hour),
		JWTRefreshTTL:      getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		IdleCheckInterval:  getDuration("IDLE_CHECK_INTERVAL", 60*time.Second),
		RefreshLead:        getDuration("REFRESH_LEAD", 5*time.Minute),
		LockoutMaxFailures: getInt("LOCKOUT_MAX_FAILURES", 3),
		LockoutDuration:    getDuration("LOCKOUT_DURATION", 300*time.Second),
		RosterFile:         getEnv("ROSTER_FILE", "./operators.json"),
		StoreBackend:       getEnv("STORE_BACKEND", "memory"),
		StoreFile:          getEnv("STORE_FILE", "./state/session.json"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AuditLogFile:       getEnv("AUDIT_LOG_FILE", "./state/audit.log"),
		RevocationURL:      strings.TrimSpace(os.Getenv("REVOCATION_URL")),
		EmergencyCode:      strings.TrimSpace(os.Getenv("EMERGENCY_CODE")),
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:       getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:   getInt("AUTH_RATE_LIMIT_RPM", 10),
		StreamMaxDuration:  getDuration("STREAM_MAX_DURATION", 4*time.Hour),
		StreamIdleTimeout:  getDuration("STREAM_IDLE_TIMEOUT", 90*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.RefreshLead >= c.JWTAccessTTL {
		return fmt.Errorf("REFRESH_LEAD must be shorter than JWT_ACCESS_TTL")
	}

	if c.SessionIdleTimeout <= 0 || c.IdleCheckInterval <= 0 {
		return fmt.Errorf("idle timeout settings must be positive")
	}

	if c.LockoutMaxFailures < 1 {
		return fmt.Errorf("LOCKOUT_MAX_FAILURES must be at least 1")
	}

	if c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}

	switch c.StoreBackend {
	case "memory", "file":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.StoreBackend == "file" && strings.TrimSpace(c.StoreFile) == "" {
		return fmt.Errorf("STORE_FILE cannot be empty")
	}

	if strings.TrimSpace(c.AuditLogFile) == "" {
		return fmt.Errorf("AUDIT_LOG_FILE cannot be empty")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
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
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
