// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IlhamRichie/bps-ingest/internal/secrets"
	"github.com/IlhamRichie/bps-ingest/internal/store"
	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

const envPrefix = "BPS_INGEST"

// legacyEnv maps config keys to the environment names used by earlier
// deployments. The prefixed name is checked first.
var legacyEnv = map[string]string{
	"api_key":          "BPS_API_KEY",
	"store.dsn":        "MONGO_URI",
	"store.database":   "MONGO_DATABASE_NAME",
	"store.collection": "MONGO_COLLECTION_NAME",
}

// newViper returns a viper instance reading cfgFile, or bps-ingest.yaml from
// the working directory or ~/.config/bps-ingest/ when cfgFile is empty.
func newViper(cfgFile string) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("bps-ingest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "bps-ingest"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}

	setDefaults(v, types.DefaultConfig())
	return v
}

// setDefaults registers every key so AutomaticEnv can resolve nested keys.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("api_key", d.APIKey)

	v.SetDefault("fetch.base_url", d.Fetch.BaseURL)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.max_attempts", d.Fetch.MaxAttempts)
	v.SetDefault("fetch.retry_delay", d.Fetch.RetryDelay)
	v.SetDefault("fetch.rate_limit", d.Fetch.RateLimit)

	v.SetDefault("store.driver", string(d.Store.Driver))
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.database", d.Store.Database)
	v.SetDefault("store.collection", d.Store.Collection)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("store.max_attempts", d.Store.MaxAttempts)
	v.SetDefault("store.retry_delay", d.Store.RetryDelay)

	v.SetDefault("target.source_id", d.Target.SourceID)
	v.SetDefault("target.table_id", d.Target.TableID)
	v.SetDefault("target.year", d.Target.Year)
	v.SetDefault("target.region", d.Target.Region)

	v.SetDefault("aggregate_label", d.AggregateLabel)
	v.SetDefault("schedule", d.Schedule)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// loadConfig merges defaults, the config file, environment and .secrets/.
// A missing default config file is not an error; a missing --config file is.
func loadConfig(cfgFile string, stderr io.Writer) (types.Config, error) {
	v := newViper(cfgFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("reading config: %w", err)
		}
	} else {
		fmt.Fprintln(stderr, "Using config file:", v.ConfigFileUsed())
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.APIKey = secretDefault(secrets.APIKey, cfg.APIKey)
	cfg.Store.DSN = secretDefault(secrets.StoreDSN, cfg.Store.DSN)
	return cfg, nil
}

// commandConfig loads the configuration named by the --config flag and
// applies any target flags set on cmd.
func commandConfig(cmd *cobra.Command) (types.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(cfgFile, cmd.ErrOrStderr())
	if err != nil {
		return cfg, err
	}
	applyTargetFlags(cmd, &cfg)
	return cfg, nil
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("table-id", "", "table id (overrides target.table_id)")
	cmd.Flags().String("year", "", "requested data year (overrides target.year)")
	cmd.Flags().String("source-id", "", "simdasi data source id (overrides target.source_id)")
	cmd.Flags().String("region", "", "region filter code (overrides target.region)")
}

// applyTargetFlags narrows cfg to the single target named on the command
// line when any target flag is set.
func applyTargetFlags(cmd *cobra.Command, cfg *types.Config) {
	set := false
	for flag, field := range map[string]*string{
		"table-id":  &cfg.Target.TableID,
		"year":      &cfg.Target.Year,
		"source-id": &cfg.Target.SourceID,
		"region":    &cfg.Target.Region,
	} {
		f := cmd.Flags().Lookup(flag)
		if f != nil && f.Changed {
			*field = f.Value.String()
			set = true
		}
	}
	if set {
		cfg.Targets = nil
	}
}

// newLogger builds the slog logger selected by cfg, writing to w.
func newLogger(cfg types.LogConfig, w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Format)
	}
}

// openStore connects to the configured backend within the store timeout.
func openStore(ctx context.Context, cfg types.StoreConfig) (store.Store, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	return s, nil
}
