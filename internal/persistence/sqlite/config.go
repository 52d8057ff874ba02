package sqlite

import (
	"fmt"
	"strings"
	"time"
)

// Config holds SQLite-specific database configuration
type Config struct {
	// Path is the database file path. ":memory:" is rejected because every
	// pooled connection would see its own empty database.
	Path string

	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration

	// EnableForeignKeys enables foreign key constraint checking
	EnableForeignKeys bool

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	// MaxOpenConns sets the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum lifetime of connections
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a SQLite configuration with sensible defaults
func DefaultConfig(path string) Config {
	return Config{
		Path:              path,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		MaxOpenConns:      8,
		MaxIdleConns:      4,
		ConnMaxLifetime:   30 * time.Minute,
	}
}

var (
	validJournalModes = map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	validSyncModes    = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
)

// Validate validates the SQLite configuration
func (c Config) Validate() error {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if path == ":memory:" {
		return fmt.Errorf("in-memory databases are not supported, use the memory storage driver")
	}
	if strings.Contains(path, "?") {
		return fmt.Errorf("database path must not carry query parameters")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}
	if c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}
	if c.Synchronous != "" && !validSyncModes[strings.ToUpper(c.Synchronous)] {
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection pool sizes cannot be negative")
	}
	if c.ConnMaxLifetime < 0 {
		return fmt.Errorf("ConnMaxLifetime cannot be negative")
	}
	return nil
}

// DSN renders the driver connection string. PRAGMAs travel as _pragma
// parameters so the driver applies them to every new pooled connection, and
// write transactions begin IMMEDIATE so check-then-insert sequences hold the
// write lock from their first read.
func (c Config) DSN() string {
	params := []string{"_txlock=immediate"}
	if c.EnableForeignKeys {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if c.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		params = append(params, fmt.Sprintf("_pragma=journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		params = append(params, fmt.Sprintf("_pragma=synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}
	return "file:" + c.Path + "?" + strings.Join(params, "&")
}
