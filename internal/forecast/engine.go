// Package forecast projects daily sales forward and decomposes them into trend
// and seasonal components.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/salesdash/internal/metrics"
)

var (
	ErrInsufficientData = errors.New("not enough data to forecast")
	ErrUnknownMethod    = errors.New("unknown forecast method")
	ErrInvalidHorizon   = errors.New("forecast horizon must be positive")
)

// MinPoints is the fewest observations a forecast is fitted on.
const MinPoints = 2

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

const dateLayout = "2006-01-02"

// Observation is one day's summed sales.
type Observation struct {
	Date  time.Time
	Value float64
}

type Point struct {
	Date       string  `json:"date"`
	Prediction float64 `json:"prediction"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// Event is a local extremum of the combined historical and forecast series.
type Event struct {
	Date     string  `json:"date"`
	Value    float64 `json:"value"`
	Forecast bool    `json:"is_forecast"`
}

type Result struct {
	Forecast        []Point            `json:"forecast"`
	GrowthRate      float64            `json:"growth_rate"`
	TrendDirection  string             `json:"trend_direction"`
	Seasonality     map[string]float64 `json:"seasonality"`
	ForecastTotal   float64            `json:"forecast_total"`
	HistoricalTotal float64            `json:"historical_total"`
	Peaks           []Event            `json:"peaks"`
	Troughs         []Event            `json:"troughs"`
	Method          string             `json:"method"`
}

// Fit is a fitted model. Predict takes the number of days after the last
// observation (1 for the next day).
type Fit struct {
	Predict     func(step int) float64
	Sigma       float64
	Slope       float64
	Seasonality map[string]float64
}

// Strategy fits a model to a chronologically ordered series.
type Strategy interface {
	Name() string
	Fit(series []Observation) (*Fit, error)
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	Method     string
	Densify    bool
	PeakWindow int
	MaxEvents  int
	Z          float64
}

const (
	DefaultMethod     = "decomposition"
	DefaultPeakWindow = 1
	DefaultMaxEvents  = 5
	DefaultZ          = 1.96
)

// Engine dispatches forecasts to registered strategies.
type Engine struct {
	cfg        Config
	strategies map[string]Strategy
	aliases    map[string]string
}

func NewEngine(cfg Config) *Engine {
	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}
	if cfg.PeakWindow <= 0 {
		cfg.PeakWindow = DefaultPeakWindow
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	if cfg.Z <= 0 {
		cfg.Z = DefaultZ
	}
	e := &Engine{cfg: cfg, strategies: make(map[string]Strategy), aliases: make(map[string]string)}
	e.Register(Decomposition{})
	e.Register(HoltWinters{})
	e.Register(Linear{})

	// Names accepted by earlier releases of the dashboard.
	e.Alias("prophet", "decomposition")
	e.Alias("sarima", "holtwinters")
	return e
}

// Register adds or replaces a strategy.
func (e *Engine) Register(s Strategy) {
	e.strategies[s.Name()] = s
}

// Alias makes name resolve to the strategy registered as target.
func (e *Engine) Alias(name, target string) {
	e.aliases[name] = target
}

// Aliases returns a copy of the alias table.
func (e *Engine) Aliases() map[string]string {
	out := make(map[string]string, len(e.aliases))
	for k, v := range e.aliases {
		out[k] = v
	}
	return out
}

// Methods lists registered strategy names in sorted order.
func (e *Engine) Methods() []string {
	names := make([]string, 0, len(e.strategies))
	for name := range e.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMethod returns the method used when a request names none.
func (e *Engine) DefaultMethod() string { return e.cfg.Method }

// Lookup resolves a method name, falling back to the default for "".
func (e *Engine) Lookup(method string) (Strategy, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = e.cfg.Method
	}
	if target, ok := e.aliases[method]; ok {
		method = target
	}
	s, ok := e.strategies[method]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownMethod, method, strings.Join(e.Methods(), ", "))
	}
	return s, nil
}

// Forecast projects series horizon days past its last observation.
func (e *Engine) Forecast(series []Observation, horizon int, method string) (Result, error) {
	if horizon < 1 {
		return Result{}, ErrInvalidHorizon
	}
	strategy, err := e.Lookup(method)
	if err != nil {
		return Result{}, err
	}

	series = normalize(series)
	if e.cfg.Densify {
		series = densify(series)
	}
	if len(series) < MinPoints {
		return Result{}, fmt.Errorf("%w: have %d points, need %d", ErrInsufficientData, len(series), MinPoints)
	}

	fit, err := strategy.Fit(series)
	if err != nil {
		return Result{}, err
	}

	last := series[len(series)-1].Date
	points := make([]Point, horizon)
	var forecastTotal float64
	for h := 1; h <= horizon; h++ {
		pred := fit.Predict(h)
		if pred < 0 || math.IsNaN(pred) {
			pred = 0
		}
		width := e.cfg.Z * fit.Sigma * math.Sqrt(float64(h))
		points[h-1] = Point{
			Date:       last.AddDate(0, 0, h).Format(dateLayout),
			Prediction: metrics.Round2(pred),
			LowerBound: metrics.Round2(math.Max(pred-width, 0)),
			UpperBound: metrics.Round2(pred + width),
		}
		forecastTotal += pred
	}

	var historicalTotal, mean float64
	for _, o := range series {
		historicalTotal += o.Value
	}
	mean = historicalTotal / float64(len(series))

	growth, _ := metrics.PercentChange(forecastTotal, historicalTotal)
	peaks, troughs := extrema(series, points, e.cfg.PeakWindow, e.cfg.MaxEvents)

	seasonality := fit.Seasonality
	if seasonality == nil {
		seasonality = map[string]float64{}
	}

	return Result{
		Forecast:        points,
		GrowthRate:      metrics.Round2(growth),
		TrendDirection:  trendDirection(fit.Slope, mean),
		Seasonality:     seasonality,
		ForecastTotal:   metrics.Round2(forecastTotal),
		HistoricalTotal: metrics.Round2(historicalTotal),
		Peaks:           peaks,
		Troughs:         troughs,
		Method:          strategy.Name(),
	}, nil
}

// trendDirection labels a per-day slope relative to the mean level.
func trendDirection(slope, mean float64) string {
	threshold := 0.001 * math.Abs(mean)
	switch {
	case math.Abs(slope) <= threshold:
		return TrendStable
	case slope > 0:
		return TrendIncreasing
	default:
		return TrendDecreasing
	}
}

// normalize sorts by date, truncates to calendar days and sums duplicates.
func normalize(series []Observation) []Observation {
	out := make([]Observation, 0, len(series))
	for _, o := range series {
		y, m, d := o.Date.Date()
		out = append(out, Observation{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Value: o.Value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	merged := out[:0]
	for _, o := range out {
		if n := len(merged); n > 0 && merged[n-1].Date.Equal(o.Date) {
			merged[n-1].Value += o.Value
			continue
		}
		merged = append(merged, o)
	}
	return merged
}

// densify inserts zero observations for days missing between the first and
// last observation. Input must be normalized.
func densify(series []Observation) []Observation {
	if len(series) < 2 {
		return series
	}
	first, last := series[0].Date, series[len(series)-1].Date
	out := make([]Observation, 0, daysBetween(first, last)+1)
	i := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if i < len(series) && series[i].Date.Equal(d) {
			out = append(out, series[i])
			i++
			continue
		}
		out = append(out, Observation{Date: d})
	}
	return out
}

func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}
