package config

import (
	"fmt"
	"strings"
)

// Validate checks the parts of the configuration the CLI needs before the
// engine applies its own job validation, and fills defaults in place.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case "postgres", "pgx", "sqlserver", "mssql", "mysql", "sqlite":
	case "":
		return fmt.Errorf("config: db.driver required")
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("config: db.dsn required (set ROWSYNC_DSN or db.dsn)")
	}
	if strings.TrimSpace(c.Input.Path) == "" {
		return fmt.Errorf("config: input.path required")
	}
	if c.Input.Delimiter == "" {
		c.Input.Delimiter = ","
	}
	if len(c.Input.Delimiter) > 1 {
		return fmt.Errorf("config: input.delimiter must be a single character")
	}
	if c.Job.Table == "" {
		return fmt.Errorf("config: job.table required")
	}
	if len(c.Job.Columns) == 0 {
		return fmt.Errorf("config: job.columns required")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}
