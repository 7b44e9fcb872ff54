// Package config loads the server configuration from the environment.
//
// Values are read once at startup into an immutable Config that is then
// passed to the stores, services and the AI bridge. Nothing else in the
// program calls os.Getenv.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage engines.
const (
	StoreSQLite = "sqlite"
	StoreJSON   = "json"
)

// Session backends.
const (
	SessionsDB    = "db"
	SessionsRedis = "redis"
)

// Default database paths per store driver.
const (
	DefaultSQLitePath = "data/chronicle.db"
	DefaultJSONPath   = "data/chronicle-db.json"
)

// Config holds every setting the server reads from the environment. Load
// fills it and Validate checks it; flags in cmd/server may override fields
// in between.
type Config struct {
	Port int

	StoreDriver string // StoreSQLite or StoreJSON
	DBPath      string

	SessionStore           string // SessionsDB or SessionsRedis
	RedisURL               string
	SessionTTL             time.Duration // 0 disables expiry
	SessionCleanupInterval time.Duration

	OpenAIAPIKey  string // empty selects the fallback replies
	OpenAIModel   string
	OpenAIBaseURL string
	AITimeout     time.Duration

	AllowedOrigins []string

	RateLimitGeneral int // requests per minute per user
	RateLimitAI      int // AI prompts per minute per user

	MetricsEnabled bool

	LogLevel  string
	LogFormat string
}

// LoadEnvFile loads KEY=value pairs from path into the process
// environment. Variables already set win over the file. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
// Every malformed variable is reported, not just the first.
func Load() (*Config, error) {
	var p parser

	cfg := &Config{
		Port:                   p.int("PORT", 8080),
		StoreDriver:            strings.ToLower(getEnvString("STORE_DRIVER", StoreSQLite)),
		DBPath:                 getEnvString("CHRONICLE_DB_PATH", ""),
		SessionStore:           strings.ToLower(getEnvString("SESSION_STORE", SessionsDB)),
		RedisURL:               getEnvString("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL:             p.duration("SESSION_TTL", 720*time.Hour),
		SessionCleanupInterval: p.duration("SESSION_CLEANUP_INTERVAL", time.Hour),
		OpenAIAPIKey:           getEnvString("OPENAI_API_KEY", ""),
		OpenAIModel:            getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:          getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AITimeout:              p.duration("AI_TIMEOUT", 30*time.Second),
		AllowedOrigins:         splitList(getEnvString("ALLOWED_ORIGINS", "http://localhost:5173")),
		RateLimitGeneral:       p.int("RATE_LIMIT_GENERAL", 120),
		RateLimitAI:            p.int("RATE_LIMIT_AI", 10),
		MetricsEnabled:         p.bool("METRICS_ENABLED", true),
		LogLevel:               strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(getEnvString("LOG_FORMAT", "text")),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and fills the driver-specific DBPath
// default. Call it again after overriding fields (e.g. from flags).
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			c.DBPath = DefaultSQLitePath
		}
	case StoreJSON:
		if c.DBPath == "" {
			c.DBPath = DefaultJSONPath
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreSQLite, StoreJSON, c.StoreDriver))
	}

	switch c.SessionStore {
	case SessionsDB:
	case SessionsRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when SESSION_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionsDB, SessionsRedis, c.SessionStore))
	}

	if c.SessionTTL < 0 {
		errs = append(errs, errors.New("SESSION_TTL must not be negative"))
	}
	if c.SessionCleanupInterval <= 0 {
		errs = append(errs, errors.New("SESSION_CLEANUP_INTERVAL must be positive"))
	}
	if c.AITimeout <= 0 {
		errs = append(errs, errors.New("AI_TIMEOUT must be positive"))
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitAI <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_GENERAL and RATE_LIMIT_AI must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// parser reads typed variables and remembers every malformed one.
type parser struct {
	errs []error
}

func (p *parser) int(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return i
}

func (p *parser) duration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func (p *parser) bool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
