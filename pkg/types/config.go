// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL        = "https://webapi.bps.go.id/v1/api"
	DefaultUserAgent      = "bps-ingest/0.1"
	DefaultSourceID       = "25"
	DefaultRegion         = "0000000"
	DefaultAggregateLabel = "Indonesia"
	DefaultSchedule       = "@every 6h"
	DefaultDatabase       = "bps_db"
	DefaultCollection     = "ingested_documents"
)

// StoreDriver selects the persistence backend.
type StoreDriver string

const (
	DriverMongo    StoreDriver = "mongo"
	DriverPostgres StoreDriver = "postgres"
	DriverSQLite   StoreDriver = "sqlite"
	DriverMemory   StoreDriver = "memory"
)

// HTTPConfig holds the outbound request settings.
type HTTPConfig struct {
	// BaseURL is the API root the simdasi path is appended to.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds a single request attempt.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxAttempts is the total number of fetch attempts, the first included.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`

	// RateLimit caps outbound requests per second. 0 means unlimited.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver StoreDriver `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is the connection string: a mongodb:// URI, a postgres:// URL or a
	// SQLite file path. Unused by the memory driver.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`

	// Database is the Mongo database name.
	Database string `json:"database" yaml:"database" mapstructure:"database"`

	// Collection is the Mongo collection or SQL table name.
	Collection string `json:"collection" yaml:"collection" mapstructure:"collection"`

	// Timeout bounds a single store call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxAttempts is the total number of write attempts on connection loss.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RetryDelay is the fixed wait between write attempts.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
}

// Target names one table to ingest.
type Target struct {
	SourceID string `json:"source_id" yaml:"source_id" mapstructure:"source_id"`
	TableID  string `json:"table_id" yaml:"table_id" mapstructure:"table_id"`
	Year     string `json:"year" yaml:"year" mapstructure:"year"`
	Region   string `json:"region" yaml:"region" mapstructure:"region"`
}

// Identity returns the upsert key for the target.
func (t Target) Identity() Identity {
	return Identity{TableID: t.TableID, RequestedYear: t.Year}
}

// WithDefaults fills empty source and region with the defaults.
func (t Target) WithDefaults() Target {
	if t.SourceID == "" {
		t.SourceID = DefaultSourceID
	}
	if t.Region == "" {
		t.Region = DefaultRegion
	}
	return t
}

// LogConfig selects the log handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config is the full configuration tree.
type Config struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	Fetch HTTPConfig  `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Store StoreConfig `json:"store" yaml:"store" mapstructure:"store"`

	// Target is the single table used when Targets is empty.
	Target  Target   `json:"target" yaml:"target" mapstructure:"target"`
	Targets []Target `json:"targets,omitempty" yaml:"targets,omitempty" mapstructure:"targets"`

	// Variables maps variable-id to a human label. Every configured id is
	// emitted for every record; ids that cannot be read are reported.
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty" mapstructure:"variables"`

	// AggregateLabel is the label of the national-total row excluded from records.
	AggregateLabel string `json:"aggregate_label" yaml:"aggregate_label" mapstructure:"aggregate_label"`

	// Schedule is the cron spec used by the schedule command.
	Schedule string `json:"schedule" yaml:"schedule" mapstructure:"schedule"`

	Log LogConfig `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() Config {
	return Config{
		Fetch: HTTPConfig{
			BaseURL:     DefaultBaseURL,
			Timeout:     30 * time.Second,
			UserAgent:   DefaultUserAgent,
			MaxAttempts: 3,
			RetryDelay:  5 * time.Second,
		},
		Store: StoreConfig{
			Driver:      DriverMongo,
			Database:    DefaultDatabase,
			Collection:  DefaultCollection,
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
		Target: Target{
			SourceID: DefaultSourceID,
			Region:   DefaultRegion,
		},
		AggregateLabel: DefaultAggregateLabel,
		Schedule:       DefaultSchedule,
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// AllTargets returns Targets, or the single Target when the list is empty.
// Empty source and region fields are defaulted.
func (c Config) AllTargets() []Target {
	src := c.Targets
	if len(src) == 0 {
		src = []Target{c.Target}
	}
	out := make([]Target, 0, len(src))
	for _, t := range src {
		out = append(out, t.WithDefaults())
	}
	return out
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("api_key is required (BPS_API_KEY or .secrets/bps-api-key)"))
	}
	for i, t := range c.AllTargets() {
		if t.TableID == "" {
			errs = append(errs, fmt.Errorf("target %d: table_id is required", i))
		}
		if t.Year == "" {
			errs = append(errs, fmt.Errorf("target %d: year is required", i))
		}
	}
	if c.Fetch.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_attempts must be positive, got %d", c.Fetch.MaxAttempts))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %v", c.Fetch.Timeout))
	}
	if c.Fetch.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("fetch.rate_limit must not be negative, got %v", c.Fetch.RateLimit))
	}
	if c.Store.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("store.max_attempts must be positive, got %d", c.Store.MaxAttempts))
	}
	switch c.Store.Driver {
	case DriverMongo, DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}
