// Package config builds a kvmirror Store from KVMIRROR_* environment
// variables.
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"code.byted.org/khicago/kvmirror"
	"code.byted.org/khicago/kvmirror/driver/boltdb"
	"code.byted.org/khicago/kvmirror/driver/sqlite"
	"code.byted.org/khicago/kvmirror/driver/traced"
	"github.com/caarlos0/env/v11"
)

// Driver names accepted by KVMIRROR_DRIVER.
const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Config holds store settings.
type Config struct {
	Prefix     string `env:"KVMIRROR_PREFIX" envDefault:"@kvmirror:"`
	Driver     string `env:"KVMIRROR_DRIVER" envDefault:"memory"`
	Path       string `env:"KVMIRROR_PATH"`
	Preload    bool   `env:"KVMIRROR_PRELOAD" envDefault:"true"`
	SyncWrites bool   `env:"KVMIRROR_SYNC_WRITES"`
	Trace      bool   `env:"KVMIRROR_TRACE"`
	Verbose    bool   `env:"KVMIRROR_VERBOSE"`
	LogTag     string `env:"KVMIRROR_LOG_TAG" envDefault:"[kvmirror]"`
}

// Load reads Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	return cfg, cfg.Validate()
}

// Validate checks driver selection.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory, "":
		return nil
	case DriverBolt, DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("KVMIRROR_PATH is required for driver %q", c.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
}

type closer interface {
	Close() error
}

// OpenDriver opens the configured backing store. The returned close
// function releases files held by persistent drivers.
func OpenDriver(cfg Config) (kvmirror.Driver, func() error, error) {
	var (
		d   kvmirror.Driver
		res closer
	)
	switch cfg.Driver {
	case DriverMemory, "":
		d = kvmirror.NewMemory()
	case DriverBolt:
		s, err := boltdb.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		d, res = s, s
	case DriverSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		d, res = s, s
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	if cfg.Trace {
		d = traced.Wrap(d)
	}
	release := func() error { return nil }
	if res != nil {
		release = res.Close
	}
	return d, release, nil
}

// Open opens the driver, builds the store and waits for its initial
// restore. Extra options are applied after the configured ones. The
// returned function flushes the store and releases the driver.
func Open(ctx context.Context, cfg Config, opts ...kvmirror.Option) (*kvmirror.Store, func(context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	d, release, err := OpenDriver(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open driver: %w", err)
	}

	logger := kvmirror.NewStdLogger(log.New(os.Stderr, "", log.LstdFlags))
	logger.Verbose = cfg.Verbose

	base := []kvmirror.Option{
		kvmirror.WithDriver(d),
		kvmirror.WithLogger(logger),
		kvmirror.WithLogTag(cfg.LogTag),
		kvmirror.WithPreload(cfg.Preload),
	}
	if cfg.SyncWrites {
		base = append(base, kvmirror.WithSyncWrites())
	}
	store := kvmirror.New(cfg.Prefix, append(base, opts...)...)

	shutdown := func(ctx context.Context) error {
		err := store.Close(ctx)
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
		return err
	}
	if err := store.WaitReady(ctx); err != nil {
		_ = shutdown(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("restore: %w", err)
	}
	return store, shutdown, nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
