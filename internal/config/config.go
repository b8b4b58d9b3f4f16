// Package config loads runtime settings from an optional YAML file, a .env file
// and the process environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds all configuration for the chat server.
type Config struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`

	StoreBackend  string `yaml:"store_backend"`
	DatabaseURL   string `yaml:"database_url"`
	MongoURI      string `yaml:"mongodb_uri"`
	MongoDatabase string `yaml:"mongodb_database"`
	RedisURL      string `yaml:"redis_url"`

	JWTSecret    string `yaml:"jwt_secret"`
	JWTKeys      string `yaml:"jwt_keys"` // kid:secret,kid2:secret2
	JWTActiveKid string `yaml:"jwt_active_kid"`

	UploadDir         string        `yaml:"upload_dir"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	SendRatePerMinute int           `yaml:"send_rate_per_minute"`
	TypingTTL         time.Duration `yaml:"typing_ttl"`
	LogLevel          string        `yaml:"log_level"`
}

// Load reads configuration. path may be empty; CONFIG_FILE is consulted then.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:              "8080",
		Env:               "development",
		StoreBackend:      BackendPostgres,
		MongoDatabase:     "staychat",
		UploadDir:         "uploads",
		AllowedOrigins:    []string{"*"},
		SendRatePerMinute: 120,
		TypingTTL:         DefaultTypingTTL,
		LogLevel:          "info",
	}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Missing .env is normal outside development.
	_ = godotenv.Load()

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MongoURI = getEnv("MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.MongoDatabase)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTKeys = getEnv("JWT_KEYS", cfg.JWTKeys)
	cfg.JWTActiveKid = getEnv("JWT_ACTIVE_KID", cfg.JWTActiveKid)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("SEND_RATE_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("SEND_RATE_PER_MINUTE must be a positive integer, got %q", v)
		}
		cfg.SendRatePerMinute = n
	}
	if v := os.Getenv("TYPING_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TYPING_TTL: %w", err)
		}
		cfg.TypingTTL = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that the server cannot start without.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" && !c.IsDevelopment() {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.JWTSecret == "" && c.JWTKeys == "" {
		return fmt.Errorf("either JWT_SECRET or JWT_KEYS must be set")
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = DefaultTypingTTL
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DatabaseDSN returns DATABASE_URL or the local development default.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=localhost user=user password=password dbname=staychat port=5432 sslmode=disable"
}

// ParseJWTKeys parses JWT_KEYS ("kid:secret,kid2:secret2").
func (c *Config) ParseJWTKeys() (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range splitList(c.JWTKeys) {
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
