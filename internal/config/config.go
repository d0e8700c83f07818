package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds site service configuration loaded from the environment.
type Config struct {
	AppName             string
	Env                 string
	LogLevel            string
	LogFormat           string
	HTTPPort            string
	RabbitURL           string
	InquiryQueue        string
	DeadLetterQueue     string
	PrefetchCount       int
	WorkerCount         int
	DatabaseURL         string
	InquiryTable        string
	RedisURL            string
	PromptTimeout       time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	SiteName            string
	SiteShortName       string
	ThemeColor          string
	AllowedOrigins      []string
	IntakePerMinute     int
	IntakeBurst         int
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:             getEnv("APP_NAME", "dobeunet"),
		Env:                 strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		RabbitURL:           getEnv("RABBITMQ_URL", ""),
		InquiryQueue:        getEnv("INQUIRY_QUEUE", "inquiry.queue"),
		DeadLetterQueue:     getEnv("INQUIRY_DLQ", "inquiry.failed"),
		PrefetchCount:       getEnvAsInt("INQUIRY_PREFETCH", 20),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		InquiryTable:        getEnv("INQUIRY_TABLE", "inquiries"),
		RedisURL:            getEnv("REDIS_URL", ""),
		PromptTimeout:       getEnvAsDuration("PROMPT_TIMEOUT", 2*time.Minute),
		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
		RetryInitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
		RetryMaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 10*time.Second),
		SiteName:            getEnv("SITE_NAME", "DobeuNet Consulting"),
		SiteShortName:       getEnv("SITE_SHORT_NAME", "DobeuNet"),
		ThemeColor:          getEnv("THEME_COLOR", "#0f172a"),
		AllowedOrigins:      getEnvAsList("ALLOWED_ORIGINS", nil),
		IntakePerMinute:     getEnvAsInt("INTAKE_RATE_PER_MINUTE", 10),
		IntakeBurst:         getEnvAsInt("INTAKE_RATE_BURST", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Production reports whether the background update worker should be registered.
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.Env != EnvProduction && c.Env != EnvDevelopment {
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvProduction, EnvDevelopment, c.Env)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
