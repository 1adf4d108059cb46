package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the invoicing service configuration. Values come from an
// optional YAML file, with environment variables taking precedence.
type Config struct {
	DatabaseURL        string        `yaml:"database_url"`
	HTTPAddr           string        `yaml:"http_addr"`
	StorageRoot        string        `yaml:"storage_root"`
	StandardCustomerID string        `yaml:"standard_customer_id"`
	CustomerColumn     string        `yaml:"customer_column"`
	DefaultCurrency    string        `yaml:"default_currency"`
	NumericPolicy      string        `yaml:"numeric_policy"`
	PercentMultipliers bool          `yaml:"percent_multipliers"`
	BucketTTL          time.Duration `yaml:"bucket_ttl"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	WebhookURL         string        `yaml:"webhook_url"`
	NotifyTemplate     string        `yaml:"notify_template"`
	JWTSecret          string        `yaml:"jwt_secret"`
}

// Load reads configuration. An INVOICING_CONFIG YAML file is applied first
// when present, then environment variables override it.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:           ":8080",
		StorageRoot:        filepath.FromSlash("var/invoicing"),
		StandardCustomerID: "standard",
		CustomerColumn:     "Billing Account",
		DefaultCurrency:    "EUR",
		NumericPolicy:      "lenient",
		BucketTTL:          30 * time.Minute,
		SweepInterval:      time.Minute,
	}

	if path := os.Getenv("INVOICING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.StorageRoot = getenvDefault("STORAGE_ROOT", cfg.StorageRoot)
	cfg.StandardCustomerID = getenvDefault("STANDARD_CUSTOMER_ID", cfg.StandardCustomerID)
	cfg.CustomerColumn = getenvDefault("CUSTOMER_COLUMN", cfg.CustomerColumn)
	cfg.DefaultCurrency = getenvDefault("DEFAULT_CURRENCY", cfg.DefaultCurrency)
	cfg.NumericPolicy = getenvDefault("NUMERIC_POLICY", cfg.NumericPolicy)
	cfg.PercentMultipliers = getenvBoolDefault("PERCENT_MULTIPLIERS", cfg.PercentMultipliers)
	cfg.BucketTTL = getenvDuration("BUCKET_TTL", cfg.BucketTTL)
	cfg.SweepInterval = getenvDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.WebhookURL = getenvDefault("NOTIFY_WEBHOOK_URL", cfg.WebhookURL)
	cfg.NotifyTemplate = getenvDefault("NOTIFY_TEMPLATE", cfg.NotifyTemplate)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.JWTSecret)

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
