package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Load       LoadConfig
	Log        LogConfig
	Dates      DatesConfig
	TimeSeries TimeSeriesConfig
	Query      QueryConfig
	Forecast   ForecastConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout string
}

type StorageConfig struct {
	Driver   string
	DataDir  string
	DSN      string
	MaxConns int
}

type LoadConfig struct {
	CSVPath   string
	OnStartup bool
}

type LogConfig struct {
	Level string
}

type DatesConfig struct {
	// LenientCustomRange resolves a malformed or reversed custom range to last_30_days instead of rejecting it.
	LenientCustomRange bool
}

type TimeSeriesConfig struct {
	Densify bool
}

type QueryConfig struct {
	TopLimit int
}

type ForecastConfig struct {
	Method      string
	Horizon     int
	Workers     int
	Densify     bool
	PeakWindow  int
	MaxEvents   int
	ConfidenceZ float64
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: "30s",
		},
		Storage: StorageConfig{
			Driver:   "sqlite",
			DataDir:  defaultDataDir(),
			MaxConns: 8,
		},
		Load: LoadConfig{
			CSVPath:   "data/sales_data.csv",
			OnStartup: true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Query: QueryConfig{
			TopLimit: 10,
		},
		Forecast: ForecastConfig{
			Method:      "decomposition",
			Horizon:     30,
			Workers:     4,
			Densify:     true,
			PeakWindow:  1,
			MaxEvents:   5,
			ConfidenceZ: 1.96,
		},
	}
}

// Load reads configuration from the JSON file backend, a .env file in the
// working directory, and environment variables, in that order of precedence
// (later wins). Variables already set in the environment are not replaced by
// .env entries.
//
// The file lives at $XDG_CONFIG_HOME/salesdash/config.json. Secrets such as
// the Postgres DSN are read from the environment only.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend())
}

// loadDotEnv exports the entries of path that are not already set. A missing
// file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("missing required config: Postgres DSN. " +
				"Set it via environment variable SALESDASH_STORAGE_DSN")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q: want sqlite or postgres", c.Storage.Driver)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Server.RequestTimeout); err != nil {
		return fmt.Errorf("invalid server.request_timeout %q: %w", c.Server.RequestTimeout, err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Forecast.Horizon < 1 {
		return fmt.Errorf("invalid forecast.horizon %d: must be at least 1", c.Forecast.Horizon)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RequestTimeout returns the parsed server-side request timeout.
func (c Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.RequestTimeout)
	return d
}

// LogLevel returns the slog level for log.level.
func (c Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log.level %q: want debug, info, warn or error", s)
	}
	return l, nil
}
