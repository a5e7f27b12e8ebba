package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	LLM         LLMConfig
	Scanner     ScannerConfig
	Webhook     WebhookConfig
	Invitations InvitationConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	// DevOrgID seeds the in-memory store when no database is configured.
	DevOrgID uuid.UUID
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
	MaxAgentSteps    int
}

type ScannerConfig struct {
	URL     string
	Timeout time.Duration
}

type WebhookConfig struct {
	DeliveryTimeout time.Duration
	MaxRetries      int
	IdempotencyTTL  time.Duration
	Concurrency     int
}

type InvitationConfig struct {
	TTL time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	maxSteps, err := getEnvInt("AGENT_MAX_STEPS", 8)
	if err != nil {
		return nil, fmt.Errorf("invalid AGENT_MAX_STEPS: %w", err)
	}

	tokenTTL, err := getEnvDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}

	scanTimeout, err := getEnvDuration("SCANNER_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid SCANNER_TIMEOUT: %w", err)
	}

	deliveryTimeout, err := getEnvDuration("WEBHOOK_DELIVERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_DELIVERY_TIMEOUT: %w", err)
	}

	deliveryRetries, err := getEnvInt("WEBHOOK_MAX_RETRIES", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_MAX_RETRIES: %w", err)
	}

	idempotencyTTL, err := getEnvDuration("WEBHOOK_IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_IDEMPOTENCY_TTL: %w", err)
	}

	workerConcurrency, err := getEnvInt("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	inviteTTL, err := getEnvDuration("INVITATION_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid INVITATION_TTL: %w", err)
	}

	rpm, err := getEnvInt("RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPM: %w", err)
	}

	devOrg := uuid.Nil
	if v := getEnv("DEV_ORG_ID", ""); v != "" {
		devOrg, err = uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEV_ORG_ID: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: splitTrim(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
			DevOrgID:       devOrg,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "botfleet"),
			TokenTTL:  tokenTTL,
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
			MaxAgentSteps:    maxSteps,
		},
		Scanner: ScannerConfig{
			URL:     getEnv("SCANNER_URL", ""),
			Timeout: scanTimeout,
		},
		Webhook: WebhookConfig{
			DeliveryTimeout: deliveryTimeout,
			MaxRetries:      deliveryRetries,
			IdempotencyTTL:  idempotencyTTL,
			Concurrency:     workerConcurrency,
		},
		Invitations: InvitationConfig{
			TTL: inviteTTL,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: rpm,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports the settings the API server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitTrim(s, sep string) []string {
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
