// Package config defines the JSON-serializable job configuration for the
// rowsync CLI. It is intentionally small and explicit so job files can be
// loaded from disk and passed through the program without additional glue;
// decoding is performed by the standard library, with environment overrides
// (optionally from a .env file) layered on top for credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config is the top-level object decoded from a job file.
type Config struct {
	// DB selects the target store.
	DB DBConfig `json:"db"`

	// Input describes the CSV upload to reconcile.
	Input InputConfig `json:"input"`

	// Job carries the reconciliation parameters handed to the engine.
	Job JobConfig `json:"job"`

	// Logging configures slog level and format.
	Logging LogConfig `json:"logging"`
}

// DBConfig selects driver and connection string. DSN is usually left empty
// in job files and supplied via the ROWSYNC_DSN environment variable (a
// .env next to the working directory is honored).
type DBConfig struct {
	// Driver is one of "postgres", "sqlserver", "mysql", "sqlite".
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// InputConfig describes the CSV file.
type InputConfig struct {
	Path string `json:"path"`
	// Delimiter defaults to ",".
	Delimiter string `json:"delimiter,omitempty"`
}

// ForeignKeyConfig mirrors one foreign-key lookup rule.
type ForeignKeyConfig struct {
	Column       string `json:"column"`
	Table        string `json:"table"`
	IDColumn     string `json:"id_column"`
	LookupColumn string `json:"lookup_column"`
}

// JobConfig is the engine input in file form.
type JobConfig struct {
	Table           string             `json:"table"`
	Columns         []string           `json:"columns"`
	Mapping         map[string]string  `json:"mapping,omitempty"`
	Mode            string             `json:"mode"`
	KeyColumns      []string           `json:"key_columns,omitempty"`
	VolatileColumns []string           `json:"volatile_columns,omitempty"`
	RequiredColumns []string           `json:"required_columns,omitempty"`
	ForeignKeys     []ForeignKeyConfig `json:"foreign_keys,omitempty"`
	CleanLoad       bool               `json:"clean_load,omitempty"`
	BatchSize       int                `json:"batch_size,omitempty"`
	Workers         int                `json:"workers,omitempty"`
	DetailCap       int                `json:"detail_cap,omitempty"`
}

// LogConfig mirrors the logging package's Setup arguments.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// Load reads and decodes a job file, then applies environment overrides.
// A .env file in the working directory is loaded first when present;
// ROWSYNC_DSN and ROWSYNC_DB_DRIVER take precedence over the file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if v := os.Getenv("ROWSYNC_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("ROWSYNC_DB_DRIVER"); v != "" {
		cfg.DB.Driver = v
	}
	return &cfg, nil
}
