// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

// Package config loads ferry configuration: a YAML file checked against a
// generated JSON Schema, merged with command line flags.
package config

import (
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Mapping pairs a normalized resource model with its legacy record model.
type Mapping struct {
	Resource string `koanf:"resource" json:"resource" jsonschema:"description=Normalized resource model name"`
	Record   string `koanf:"record" json:"record" jsonschema:"description=Legacy record model name"`
}

// Config is the ferry runtime configuration.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string. Required for the
	// postgres driver.
	DatabaseURL string `koanf:"database-url" json:"database-url,omitempty" jsonschema:"description=PostgreSQL connection URL"`

	// Driver selects the record store backend.
	Driver string `koanf:"driver" json:"driver,omitempty" jsonschema:"enum=postgres,enum=sqlite,enum=memory,description=Record store backend"`

	// SQLitePath is the database file used by the sqlite driver. Empty
	// means ferry.db in the XDG data directory.
	SQLitePath string `koanf:"sqlite-path" json:"sqlite-path,omitempty" jsonschema:"description=SQLite database file path (empty uses the XDG data dir)"`

	// LogFormat selects json or text log output.
	LogFormat string `koanf:"log-format" json:"log-format,omitempty" jsonschema:"enum=json,enum=text,description=Log output format"`

	// MetricsAddr is the observability listen address; empty disables the
	// metrics endpoint.
	MetricsAddr string `koanf:"metrics-addr" json:"metrics-addr,omitempty" jsonschema:"description=Listen address for metrics and health probes (empty disables)"`

	// StrictSchema fails conversions on attributes outside a record
	// model's schema instead of dropping them.
	StrictSchema bool `koanf:"strict-schema" json:"strict-schema,omitempty" jsonschema:"description=Fail conversions on attributes outside the record model schema"`

	// StrictRegistry fails model registration when it would remap an
	// already-registered name.
	StrictRegistry bool `koanf:"strict-registry" json:"strict-registry,omitempty" jsonschema:"description=Fail when a model name is remapped"`

	// Requires constrains which ferry versions may load this file,
	// e.g. ">= 0.2.0, < 1.0.0".
	Requires string `koanf:"requires" json:"requires,omitempty" jsonschema:"description=Semver constraint on the ferry binary version"`

	// Mappings seed the model registry at startup.
	Mappings []Mapping `koanf:"mappings" json:"mappings,omitempty" jsonschema:"description=Resource and record model pairs registered at startup"`

	// Schemas lists the attribute patterns each record model accepts.
	// Models absent from the map are open.
	Schemas map[string][]string `koanf:"schemas" json:"schemas,omitempty" jsonschema:"description=Attribute glob patterns per record model"`
}

// Default returns the built-in configuration: in-memory store, JSON logs,
// metrics on a loopback port.
func Default() Config {
	return Config{
		Driver:      DriverMemory,
		LogFormat:   "json",
		MetricsAddr: "127.0.0.1:9464",
	}
}

// Load builds the configuration from an optional YAML file and an optional
// flag set, layered over Default(). File values override defaults; changed
// flags override the file.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateSchema(raw); err != nil {
			return nil, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		// Passing k lets unchanged flags yield to file values while still
		// filling keys the file leaves unset.
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database-url is required for the postgres driver")
		}
	case DriverSQLite, DriverMemory:
	default:
		return oops.Code("CONFIG_INVALID").With("driver", c.Driver).Errorf("driver must be postgres, sqlite, or memory")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").With("log-format", c.LogFormat).Errorf("log-format must be json or text")
	}

	for i, m := range c.Mappings {
		if m.Resource == "" || m.Record == "" {
			return oops.Code("CONFIG_INVALID").With("mapping", i).Errorf("mappings need both resource and record model names")
		}
	}

	if c.Requires != "" {
		if _, err := semver.NewConstraint(c.Requires); err != nil {
			return oops.Code("CONFIG_INVALID").With("requires", c.Requires).Wrap(err)
		}
	}

	return nil
}

// CheckRequires reports whether the running binary satisfies the requires
// constraint. Build versions that are not semver (dev builds) pass.
func (c *Config) CheckRequires(binaryVersion string) error {
	if c.Requires == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(c.Requires)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("requires", c.Requires).Wrap(err)
	}

	version, err := semver.NewVersion(binaryVersion)
	if err != nil {
		return nil
	}

	if !constraint.Check(version) {
		return oops.Code("VERSION_UNSUPPORTED").
			With("requires", c.Requires).
			With("version", binaryVersion).
			Errorf("configuration requires ferry %s", c.Requires)
	}
	return nil
}
