package forecast

import "math"

// HoltWinters is additive triple exponential smoothing with a weekly season.
// Series shorter than two seasons fall back to Holt's linear method. The
// series is treated as evenly spaced, so it should be densified.
type HoltWinters struct{}

func (HoltWinters) Name() string { return "holtwinters" }

const season = 7

var (
	alphaGrid = []float64{0.1, 0.3, 0.5, 0.7, 0.9}
	betaGrid  = []float64{0.01, 0.1, 0.3}
	gammaGrid = []float64{0.05, 0.1, 0.3}
)

type hwState struct {
	level, trend float64
	seasonal     []float64 // nil for Holt's linear method
	sse          float64
}

func (HoltWinters) Fit(series []Observation) (*Fit, error) {
	y := make([]float64, len(series))
	for i, o := range series {
		y[i] = o.Value
	}
	seasonal := len(y) >= 2*season

	best := hwState{sse: math.Inf(1)}
	var bestSeasonality map[string]float64
	for _, a := range alphaGrid {
		for _, b := range betaGrid {
			if !seasonal {
				if st := holt(y, a, b); st.sse < best.sse {
					best = st
				}
				continue
			}
			for _, g := range gammaGrid {
				if st := holtWinters(y, a, b, g); st.sse < best.sse {
					best = st
				}
			}
		}
	}
	if seasonal {
		bestSeasonality = map[string]float64{"weekly": amplitude(best.seasonal)}
	}

	n := len(y)
	sigma := 0.0
	if n > 1 {
		sigma = math.Sqrt(best.sse / float64(n-1))
	}
	return &Fit{
		Predict: func(step int) float64 {
			v := best.level + float64(step)*best.trend
			if best.seasonal != nil {
				v += best.seasonal[(n+step-1)%season]
			}
			return v
		},
		Sigma:       sigma,
		Slope:       best.trend,
		Seasonality: bestSeasonality,
	}, nil
}

// holt runs Holt's linear method and accumulates one-step-ahead squared errors.
func holt(y []float64, alpha, beta float64) hwState {
	level, trend := y[0], y[1]-y[0]
	var sse float64
	for i := 1; i < len(y); i++ {
		pred := level + trend
		err := y[i] - pred
		sse += err * err
		prevLevel := level
		level = alpha*y[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}
	return hwState{level: level, trend: trend, sse: sse}
}

// holtWinters runs the additive seasonal method. seasonal[i%season] holds the
// effect for position i of the series.
func holtWinters(y []float64, alpha, beta, gamma float64) hwState {
	var first, second float64
	for i := 0; i < season; i++ {
		first += y[i]
		second += y[season+i]
	}
	first /= season
	second /= season

	level := first
	trend := (second - first) / season
	seasonal := make([]float64, season)
	for i := 0; i < season; i++ {
		seasonal[i] = y[i] - first
	}

	var sse float64
	for i := season; i < len(y); i++ {
		s := seasonal[i%season]
		pred := level + trend + s
		err := y[i] - pred
		sse += err * err
		prevLevel := level
		level = alpha*(y[i]-s) + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
		seasonal[i%season] = gamma*(y[i]-level) + (1-gamma)*s
	}
	return hwState{level: level, trend: trend, seasonal: seasonal, sse: sse}
}
