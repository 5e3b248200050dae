package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SALESDASH_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SALESDASH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.request_timeout", typ: kString, env: "SALESDASH_SERVER_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Server.RequestTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.RequestTimeout },
	},
	{
		key: "storage.driver", typ: kString, env: "SALESDASH_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SALESDASH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.dsn", typ: kString, env: "SALESDASH_STORAGE_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "storage.max_conns", typ: kInt, env: "SALESDASH_STORAGE_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Storage.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.MaxConns },
	},
	{
		key: "load.csv_path", typ: kString, env: "SALESDASH_LOAD_CSV_PATH",
		apply:   func(cfg *Config, v any) { cfg.Load.CSVPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Load.CSVPath },
	},
	{
		key: "load.on_startup", typ: kBool, env: "SALESDASH_LOAD_ON_STARTUP",
		apply:   func(cfg *Config, v any) { cfg.Load.OnStartup = v.(bool) },
		extract: func(cfg Config) any { return cfg.Load.OnStartup },
	},
	{
		key: "log.level", typ: kString, env: "SALESDASH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "dates.lenient_custom_range", typ: kBool, env: "SALESDASH_DATES_LENIENT_CUSTOM_RANGE",
		apply:   func(cfg *Config, v any) { cfg.Dates.LenientCustomRange = v.(bool) },
		extract: func(cfg Config) any { return cfg.Dates.LenientCustomRange },
	},
	{
		key: "timeseries.densify", typ: kBool, env: "SALESDASH_TIMESERIES_DENSIFY",
		apply:   func(cfg *Config, v any) { cfg.TimeSeries.Densify = v.(bool) },
		extract: func(cfg Config) any { return cfg.TimeSeries.Densify },
	},
	{
		key: "query.top_limit", typ: kInt, env: "SALESDASH_QUERY_TOP_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Query.TopLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Query.TopLimit },
	},
	{
		key: "forecast.method", typ: kString, env: "SALESDASH_FORECAST_METHOD",
		apply:   func(cfg *Config, v any) { cfg.Forecast.Method = v.(string) },
		extract: func(cfg Config) any { return cfg.Forecast.Method },
	},
	{
		key: "forecast.horizon", typ: kInt, env: "SALESDASH_FORECAST_HORIZON",
		apply:   func(cfg *Config, v any) { cfg.Forecast.Horizon = v.(int) },
		extract: func(cfg Config) any { return cfg.Forecast.Horizon },
	},
	{
		key: "forecast.workers", typ: kInt, env: "SALESDASH_FORECAST_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Forecast.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Forecast.Workers },
	},
	{
		key: "forecast.densify", typ: kBool, env: "SALESDASH_FORECAST_DENSIFY",
		apply:   func(cfg *Config, v any) { cfg.Forecast.Densify = v.(bool) },
		extract: func(cfg Config) any { return cfg.Forecast.Densify },
	},
	{
		key: "forecast.peak_window", typ: kInt, env: "SALESDASH_FORECAST_PEAK_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Forecast.PeakWindow = v.(int) },
		extract: func(cfg Config) any { return cfg.Forecast.PeakWindow },
	},
	{
		key: "forecast.max_events", typ: kInt, env: "SALESDASH_FORECAST_MAX_EVENTS",
		apply:   func(cfg *Config, v any) { cfg.Forecast.MaxEvents = v.(int) },
		extract: func(cfg Config) any { return cfg.Forecast.MaxEvents },
	},
	{
		key: "forecast.confidence_z", typ: kFloat, env: "SALESDASH_FORECAST_CONFIDENCE_Z",
		apply:   func(cfg *Config, v any) { cfg.Forecast.ConfidenceZ = v.(float64) },
		extract: func(cfg Config) any { return cfg.Forecast.ConfidenceZ },
	},
}

// parse converts raw text into the key's Go type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func (s keySpec) typeName() string {
	switch s.typ {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typeName(), s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typeName(), s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
