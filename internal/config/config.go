package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	AppEnv         string        `envconfig:"APP_ENV" default:"development"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	DatabaseDriver string        `envconfig:"DATABASE_DRIVER" default:"postgres"`
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	JWTIssuer      string        `envconfig:"JWT_ISSUER" default:"all-in-iam"`
	JWTTTL         time.Duration `envconfig:"JWT_TTL" default:"60m"`
	BcryptCost     int           `envconfig:"BCRYPT_COST" default:"10"`
	CORSOrigins    []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr string        `envconfig:"REDIS_ADDR"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"60s"`

	EventSink  string `envconfig:"EVENT_SINK" default:"log"`
	AMQPURL    string `envconfig:"AMQP_URL"`
	AMQPQueue  string `envconfig:"AMQP_QUEUE" default:"iam.domain_events"`
	AsynqQueue string `envconfig:"ASYNQ_QUEUE" default:"domain_events"`

	SeedAdminEmail    string `envconfig:"SEED_ADMIN_EMAIL" default:"admin@example.com"`
	SeedAdminPassword string `envconfig:"SEED_ADMIN_PASSWORD" default:"password"`

	NodeID         int64 `envconfig:"NODE_ID" default:"1"`
	LoginRateLimit int   `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.CORSOrigins = cleanCSV(cfg.CORSOrigins)
	cfg.EventSink = strings.ToLower(strings.TrimSpace(cfg.EventSink))

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = 60 * time.Minute
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return Config{}, fmt.Errorf("DATABASE_DRIVER %q must be postgres or sqlite3", cfg.DatabaseDriver)
	}
	switch cfg.EventSink {
	case "log", "asynq":
	case "amqp":
		if cfg.AMQPURL == "" {
			return Config{}, errors.New("AMQP_URL is required when EVENT_SINK=amqp")
		}
	default:
		return Config{}, fmt.Errorf("EVENT_SINK %q must be log, amqp or asynq", cfg.EventSink)
	}
	if cfg.EventSink == "asynq" && cfg.RedisAddr == "" {
		return Config{}, errors.New("REDIS_ADDR is required when EVENT_SINK=asynq")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func cleanCSV(in []string) []string {
	var out []string
	for _, part := range in {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
