package stash

import (
	"github.com/joho/godotenv"
	"github.com/mfellner/kvstash/lib/engine"
	"github.com/mfellner/kvstash/lib/logging"
	"github.com/spf13/viper"
	"strings"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a stash. Zero fields fall back to the environment and
// then to DefaultOptions, see ResolveOptions.
type Options struct {
	// Dir is the directory the default bolt engine stores its database
	// files in. Ignored when Engine is set.
	Dir string

	// Database is the name of the database the stash operates on.
	Database string

	// Version is the schema version requested when opening the database.
	// Zero means unset and falls back to the environment or default.
	Version uint64

	// DefaultCollection is the collection used by DefaultCollection().
	DefaultCollection string

	// Engine overrides the storage engine. When nil, a process-wide bolt
	// engine for Dir is used.
	Engine engine.Engine

	// Logger overrides the stash logger.
	Logger logging.ILogger
}

// DefaultOptions returns the default configuration for a stash.
func DefaultOptions() Options {
	return Options{
		Dir:               ".kvstash",
		Database:          "kvstash",
		Version:           1,
		DefaultCollection: "default",
	}
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

// InitEnvConfig loads the .env and .env.local files (if present) and binds
// the KVSTASH_* environment variables to viper. Call this once at startup
// before resolving options from the environment.
func InitEnvConfig() {
	// load .env files, ignore errors if the files do not exist
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("kvstash")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// ResolveOptions merges the configuration layers into a complete Options
// value. Precedence, lowest first: DefaultOptions, KVSTASH_* environment
// variables, and the non-zero fields of overrides (may be nil).
func ResolveOptions(overrides *Options) Options {
	opts := DefaultOptions()

	if v := viper.GetString("dir"); v != "" {
		opts.Dir = v
	}
	if v := viper.GetString("database"); v != "" {
		opts.Database = v
	}
	if v := viper.GetUint64("version"); v != 0 {
		opts.Version = v
	}
	if v := viper.GetString("collection"); v != "" {
		opts.DefaultCollection = v
	}

	if overrides != nil {
		if overrides.Dir != "" {
			opts.Dir = overrides.Dir
		}
		if overrides.Database != "" {
			opts.Database = overrides.Database
		}
		if overrides.Version != 0 {
			opts.Version = overrides.Version
		}
		if overrides.DefaultCollection != "" {
			opts.DefaultCollection = overrides.DefaultCollection
		}
		opts.Engine = overrides.Engine
		opts.Logger = overrides.Logger
	}

	// version 0 would mean "adopt existing" and never create a fresh
	// database, so the facade always requests at least version 1
	if opts.Version == 0 {
		opts.Version = 1
	}

	return opts
}
