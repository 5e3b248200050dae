package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Linear fits an ordinary least squares trend on the day index.
type Linear struct{}

func (Linear) Name() string { return "linear" }

func (Linear) Fit(series []Observation) (*Fit, error) {
	t, y := design(series)
	intercept, slope := fitTrend(t, y)
	resid := detrend(t, y, intercept, slope)

	lastT := t[len(t)-1]
	return &Fit{
		Predict: func(step int) float64 { return intercept + slope*(lastT+float64(step)) },
		Sigma:   residualSigma(resid),
		Slope:   slope,
	}, nil
}

// Decomposition is an additive model: linear trend plus a day-of-week effect
// (with at least two weeks of data) plus a month-of-year effect (with more
// than a year of data).
type Decomposition struct{}

func (Decomposition) Name() string { return "decomposition" }

const (
	minWeeklyPoints = 14
	minYearlySpan   = 365
)

func (Decomposition) Fit(series []Observation) (*Fit, error) {
	t, y := design(series)
	intercept, slope := fitTrend(t, y)
	resid := detrend(t, y, intercept, slope)

	weekly := make([]float64, 7)
	hasWeekly := len(series) >= minWeeklyPoints
	if hasWeekly {
		weekly = groupEffects(series, resid, 7, func(d time.Time) int { return int(d.Weekday()) })
		for i := range resid {
			resid[i] -= weekly[series[i].Date.Weekday()]
		}
	}

	monthly := make([]float64, 12)
	hasYearly := daysBetween(series[0].Date, series[len(series)-1].Date) > minYearlySpan
	if hasYearly {
		monthly = groupEffects(series, resid, 12, func(d time.Time) int { return int(d.Month()) - 1 })
		for i := range resid {
			resid[i] -= monthly[series[i].Date.Month()-1]
		}
	}

	seasonality := map[string]float64{}
	if hasWeekly {
		seasonality["weekly"] = amplitude(weekly)
	}
	if hasYearly {
		seasonality["yearly"] = amplitude(monthly)
	}

	last := series[len(series)-1].Date
	lastT := t[len(t)-1]
	return &Fit{
		Predict: func(step int) float64 {
			d := last.AddDate(0, 0, step)
			v := intercept + slope*(lastT+float64(step))
			if hasWeekly {
				v += weekly[d.Weekday()]
			}
			if hasYearly {
				v += monthly[d.Month()-1]
			}
			return v
		},
		Sigma:       residualSigma(resid),
		Slope:       slope,
		Seasonality: seasonality,
	}, nil
}

// design returns day offsets from the first observation and the values.
func design(series []Observation) ([]float64, []float64) {
	t := make([]float64, len(series))
	y := make([]float64, len(series))
	first := series[0].Date
	for i, o := range series {
		t[i] = float64(daysBetween(first, o.Date))
		y[i] = o.Value
	}
	return t, y
}

// fitTrend returns the least squares intercept and slope of y on t. A series
// with a single distinct t has slope 0 and its mean as intercept.
func fitTrend(t, y []float64) (float64, float64) {
	if len(t) < 2 || stat.Variance(t, nil) == 0 {
		return stat.Mean(y, nil), 0
	}
	return stat.LinearRegression(t, y, nil, false)
}

// detrend returns y minus the fitted line.
func detrend(t, y []float64, intercept, slope float64) []float64 {
	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - (intercept + slope*t[i])
	}
	return resid
}

// groupEffects averages resid by key and centers the effects of the keys
// that were observed. Unobserved keys get 0.
func groupEffects(series []Observation, resid []float64, n int, key func(time.Time) int) []float64 {
	buckets := make([][]float64, n)
	for i, o := range series {
		k := key(o.Date)
		buckets[k] = append(buckets[k], resid[i])
	}
	effects := make([]float64, n)
	var observed []float64
	for k, b := range buckets {
		if len(b) > 0 {
			effects[k] = stat.Mean(b, nil)
			observed = append(observed, effects[k])
		}
	}
	if len(observed) == 0 {
		return effects
	}
	center := stat.Mean(observed, nil)
	for k, b := range buckets {
		if len(b) > 0 {
			effects[k] -= center
		}
	}
	return effects
}

func amplitude(effects []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range effects {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 0) {
		return 0
	}
	return hi - lo
}

// residualSigma is sqrt(SSE/(n-2)), or 0 when there are no degrees of freedom.
func residualSigma(resid []float64) float64 {
	n := len(resid)
	if n <= 2 {
		return 0
	}
	return math.Sqrt(floats.Dot(resid, resid) / float64(n-2))
}
