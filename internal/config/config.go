// Package config loads command configuration: BJPOLICY_* environment
// variables first, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

const (
	EnvPrefix     = "BJPOLICY_"
	appDirName    = "blackjack-policy"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Config holds every setting of the command.
type Config struct {
	Backend   string  `env:"BACKEND" envDefault:"sqlite"`
	DBPath    string  `env:"DB_PATH"`
	Horizon   int     `env:"HORIZON" envDefault:"22"`
	Timestep  int     `env:"TIMESTEP" envDefault:"2"`
	Workers   int     `env:"WORKERS"`
	Tolerance float64 `env:"TOLERANCE" envDefault:"1e-9"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:8077"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	ServerSeed  string        `env:"SERVER_SEED"`
	ClientSeed  string        `env:"CLIENT_SEED"`
	SeedProfile string        `env:"SEED_PROFILE"`
	SecretsPath string        `env:"SECRETS_PATH"`
	NonceStart  uint64        `env:"NONCE_START"`
	Hands       uint64        `env:"HANDS" envDefault:"100000"`
	SimTimeout  time.Duration `env:"SIM_TIMEOUT"`
	ScriptPath  string        `env:"SCRIPT"`

	Format    string `env:"FORMAT" envDefault:"text"`
	RunsLimit int    `env:"RUNS_LIMIT" envDefault:"20"`

	// Args holds the positional arguments left after flag parsing.
	Args []string
}

// ParseConfig reads the environment, then lets flags in args override it.
// Flags may appear before, between or after positional arguments; everything
// after "--" is positional.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SecretsPath == "" {
		cfg.SecretsPath = filepath.Join(appDataDir(), "seeds.json")
	}

	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend (sqlite|bolt)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the database file (default: BJPOLICY_DB_PATH or the user config dir)")
	fs.IntVar(&cfg.Horizon, "horizon", cfg.Horizon, "number of timesteps of the backward induction")
	fs.IntVar(&cfg.Timestep, "timestep", cfg.Timestep, "timestep the policy grid is read at")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker goroutines (0 = one per CPU)")
	fs.Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "tolerance on dealer outcome rows summing to 1")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console|json)")
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address for serve")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "per-request timeout for serve")
	fs.StringVar(&cfg.ServerSeed, "server-seed", cfg.ServerSeed, "server seed for simulate")
	fs.StringVar(&cfg.ClientSeed, "client-seed", cfg.ClientSeed, "client seed for simulate")
	fs.StringVar(&cfg.SeedProfile, "seed-profile", cfg.SeedProfile, "stored seed pair to simulate with when -server-seed is empty")
	fs.StringVar(&cfg.SecretsPath, "secrets", cfg.SecretsPath, "seed file used when no OS keychain is available")
	fs.Uint64Var(&cfg.NonceStart, "nonce-start", cfg.NonceStart, "first nonce for simulate")
	fs.Uint64Var(&cfg.Hands, "hands", cfg.Hands, "number of hands for simulate")
	fs.DurationVar(&cfg.SimTimeout, "sim-timeout", cfg.SimTimeout, "simulate timeout (0 = none)")
	fs.StringVar(&cfg.ScriptPath, "script", cfg.ScriptPath, "JavaScript strategy to simulate instead of the optimal policy")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format (text|csv|json)")
	fs.IntVar(&cfg.RunsLimit, "limit", cfg.RunsLimit, "max runs to list")
	rest, err := parseInterspersed(fs, args)
	if err != nil {
		return Config{}, err
	}
	cfg.Args = rest
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath(cfg.Backend)
	}
	return cfg, nil
}

func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var rest []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		left := fs.Args()
		if consumed := len(args) - len(left); consumed > 0 && args[consumed-1] == "--" {
			return append(rest, left...), nil
		}
		if len(left) == 0 {
			return rest, nil
		}
		rest = append(rest, left[0])
		args = left[1:]
	}
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var err error
	switch c.Backend {
	case BackendSQLite, BackendBolt:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.DBPath == "" {
		err = multierr.Append(err, errors.New("db path is required"))
	}
	// fewer timesteps than cards a hand can take leaves states unpriced
	if c.Horizon < blackjack.DefaultHorizon {
		err = multierr.Append(err, fmt.Errorf("horizon must be at least %d, got %d", blackjack.DefaultHorizon, c.Horizon))
	}
	if c.Timestep < 1 || c.Timestep >= c.Horizon {
		err = multierr.Append(err, fmt.Errorf("timestep must be in 1..%d, got %d", c.Horizon-1, c.Timestep))
	}
	if c.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Tolerance <= 0 || c.Tolerance >= 1 {
		err = multierr.Append(err, fmt.Errorf("tolerance must be in (0, 1), got %g", c.Tolerance))
	}
	if _, lerr := zerolog.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log level: %w", lerr))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	switch c.Format {
	case "text", "csv", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown output format %q", c.Format))
	}
	return err
}

// DefaultDBPath places the database under the user config directory.
func DefaultDBPath(backend string) string {
	name := "policy.db"
	if backend == BackendBolt {
		name = "policy.bolt"
	}
	return filepath.Join(appDataDir(), name)
}

func appDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appDirName)
	}
	return "."
}

// Exitf prints a formatted error and exits with status 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
