package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Backend selection
	DataBackend       string
	MemoryFixtureFile string

	// Collections
	MasterSheetID    string
	EffortSheetID    string
	SMESheetID       string
	ProgramSheetID   string
	MasterSheetName  string
	ConfigSheetName  string
	ProgramSheetName string

	// Google service account
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	StoreMaxAttempts         int
	StoreBackoff             time.Duration

	// Run behaviour
	InvoiceMatchMode      string
	InvoiceForceOverwrite bool
	AllowReprocess        bool
	ReadConcurrency       int
	CategoryRulesFile     string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL       string
	AMQPExchange  string
	AMQPQueue     string
	AMQPEventsKey string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		DataBackend:       getEnv("DATA_BACKEND", "sheets"),
		MemoryFixtureFile: getEnv("MEMORY_FIXTURE_FILE", ""),

		MasterSheetID:    getEnv("MASTER_SHEET_ID", ""),
		EffortSheetID:    getEnv("EFFORT_SHEET_ID", ""),
		SMESheetID:       getEnv("SME_SHEET_ID", ""),
		ProgramSheetID:   getEnv("PROGRAM_SHEET_ID", ""),
		MasterSheetName:  getEnv("MASTER_SHEET_NAME", "Master data"),
		ConfigSheetName:  getEnv("CONFIG_SHEET_NAME", "Config"),
		ProgramSheetName: getEnv("PROGRAM_SHEET_NAME", ""),

		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", getEnv("GCP_SA_KEY", "")),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		StoreMaxAttempts:         getEnvInt("STORE_MAX_ATTEMPTS", 3),
		StoreBackoff:             getEnvDuration("STORE_BACKOFF", time.Second),

		InvoiceMatchMode:      strings.ToLower(strings.TrimSpace(getEnv("INVOICE_MATCH_MODE", ""))),
		InvoiceForceOverwrite: getEnvBool("INVOICE_FORCE_OVERWRITE", false),
		AllowReprocess:        getEnvBool("ALLOW_REPROCESS", false),
		ReadConcurrency:       getEnvInt("READ_CONCURRENCY", 1),
		CategoryRulesFile:     getEnv("CATEGORY_RULES_FILE", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", ""),

		AMQPURL:       getEnv("AMQP_URL", ""),
		AMQPExchange:  getEnv("AMQP_EXCHANGE", "invoicer"),
		AMQPQueue:     getEnv("AMQP_QUEUE", "invoicer.process_period"),
		AMQPEventsKey: getEnv("AMQP_EVENTS_KEY", "invoicer.period_processed"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	validBackends := []string{"sheets", "memory"}
	if !oneOf(c.DataBackend, validBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Matching mode has no default on purpose
	if c.InvoiceMatchMode == "" {
		errors = append(errors, "INVOICE_MATCH_MODE is required: must be 'exact' or 'normalized'")
	} else if !oneOf(c.InvoiceMatchMode, []string{"exact", "normalized"}) {
		errors = append(errors, fmt.Sprintf("invalid invoice match mode '%s': must be 'exact' or 'normalized'", c.InvoiceMatchMode))
	}

	if c.DataBackend == "sheets" {
		required := []struct{ name, value string }{
			{"MASTER_SHEET_ID", c.MasterSheetID},
			{"EFFORT_SHEET_ID", c.EffortSheetID},
			{"SME_SHEET_ID", c.SMESheetID},
			{"PROGRAM_SHEET_ID", c.ProgramSheetID},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				errors = append(errors, fmt.Sprintf("%s is required when using sheets backend", r.name))
			}
		}

		hasJSON := c.GoogleServiceAccountJSON != ""
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasJSON && !hasFile {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if !hasJSON && hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.DataBackend == "memory" {
		if c.MemoryFixtureFile == "" {
			errors = append(errors, "MEMORY_FIXTURE_FILE is required when using memory backend")
		} else if _, err := os.Stat(c.MemoryFixtureFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("memory fixture file does not exist: %s", c.MemoryFixtureFile))
		}
	}

	if strings.TrimSpace(c.MasterSheetName) == "" {
		errors = append(errors, "master sheet name cannot be empty")
	}
	if strings.TrimSpace(c.ConfigSheetName) == "" {
		errors = append(errors, "config sheet name cannot be empty")
	}

	if c.CategoryRulesFile != "" {
		if _, err := os.Stat(c.CategoryRulesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("category rules file does not exist: %s", c.CategoryRulesFile))
		}
	}

	if c.ReadConcurrency < 1 || c.ReadConcurrency > 32 {
		errors = append(errors, fmt.Sprintf("invalid read concurrency %d: must be between 1 and 32", c.ReadConcurrency))
	}
	if c.StoreMaxAttempts < 1 || c.StoreMaxAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid store max attempts %d: must be between 1 and 10", c.StoreMaxAttempts))
	}
	if c.StoreBackoff < 0 || c.StoreBackoff > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid store backoff %v: must be between 0 and 1 minute", c.StoreBackoff))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventsKey == "" {
			errors = append(errors, "AMQP events routing key cannot be empty when AMQP URL is provided")
		}
	}

	if !oneOf(strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "error"}) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if !oneOf(strings.ToLower(c.LogFormat), []string{"text", "json"}) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// HistoryEnabled reports whether run history is persisted.
func (c *Config) HistoryEnabled() bool {
	return c.SQLiteDBPath != ""
}

// EventsEnabled reports whether an AMQP broker is configured.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
