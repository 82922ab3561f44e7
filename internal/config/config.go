package config

import (
	"fmt"
	"os"
	"strconv"

	"sellsync/internal/logger"
)

type Config struct {
	// Sellsy Configuration
	SellsyClientID     string
	SellsyClientSecret string
	SellsyAPIURL       string
	SellsyTokenURL     string

	// Airtable Configuration
	AirtableAPIKey    string
	AirtableBaseID    string
	AirtableTableName string
	AirtableAPIURL    string

	// Webhook Configuration
	WebhookSecret        string
	WebhookSkipSignature bool

	// PDF Storage Configuration
	PDFStorageDir string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		SellsyClientID:       getEnv("SELLSY_CLIENT_ID", ""),
		SellsyClientSecret:   getEnv("SELLSY_CLIENT_SECRET", ""),
		SellsyAPIURL:         getEnv("SELLSY_API_URL", "https://api.sellsy.com/v2"),
		SellsyTokenURL:       getEnv("SELLSY_TOKEN_URL", "https://login.sellsy.com/oauth2/access-tokens"),
		AirtableAPIKey:       getEnv("AIRTABLE_API_KEY", ""),
		AirtableBaseID:       getEnv("AIRTABLE_BASE_ID", ""),
		AirtableTableName:    getEnv("AIRTABLE_TABLE_NAME", ""),
		AirtableAPIURL:       getEnv("AIRTABLE_API_URL", "https://api.airtable.com/v0"),
		WebhookSecret:        getEnv("WEBHOOK_SECRET", ""),
		WebhookSkipSignature: getEnvBool("WEBHOOK_SKIP_SIGNATURE", false),
		PDFStorageDir:        getEnv("PDF_STORAGE_DIR", "pdf_invoices"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:        getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:            getEnv("LOG_OUTPUT", "stdout"),
	}

	return config, nil
}

// ValidateSellsy checks the variables every Sellsy API call depends on.
func (c *Config) ValidateSellsy() error {
	if c.SellsyClientID == "" {
		return fmt.Errorf("SELLSY_CLIENT_ID is required")
	}
	if c.SellsyClientSecret == "" {
		return fmt.Errorf("SELLSY_CLIENT_SECRET is required")
	}
	return nil
}

// ValidateAirtable checks the variables every Airtable API call depends on.
func (c *Config) ValidateAirtable() error {
	if c.AirtableAPIKey == "" {
		return fmt.Errorf("AIRTABLE_API_KEY is required")
	}
	if c.AirtableBaseID == "" {
		return fmt.Errorf("AIRTABLE_BASE_ID is required")
	}
	if c.AirtableTableName == "" {
		return fmt.Errorf("AIRTABLE_TABLE_NAME is required")
	}
	return nil
}

// ValidateWebhook checks the webhook receiver configuration. The signing
// secret is only optional when signature verification is explicitly disabled.
func (c *Config) ValidateWebhook() error {
	if c.WebhookSecret == "" && !c.WebhookSkipSignature {
		return fmt.Errorf("WEBHOOK_SECRET is required (or set WEBHOOK_SKIP_SIGNATURE=true for debugging)")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
