package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func series(start time.Time, values ...float64) []Observation {
	out := make([]Observation, len(values))
	for i, v := range values {
		out[i] = Observation{Date: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

func TestForecast_LinearTrendExample(t *testing.T) {
	e := NewEngine(Config{})
	res, err := e.Forecast(series(day(2024, 1, 1), 100, 120, 110, 130), 2, "")
	require.NoError(t, err)

	require.Len(t, res.Forecast, 2)
	assert.Equal(t, "2024-01-05", res.Forecast[0].Date)
	assert.Equal(t, "2024-01-06", res.Forecast[1].Date)
	assert.Equal(t, 135.0, res.Forecast[0].Prediction)
	assert.Equal(t, 143.0, res.Forecast[1].Prediction)
	assert.Equal(t, TrendIncreasing, res.TrendDirection)
	assert.Equal(t, 278.0, res.ForecastTotal)
	assert.Equal(t, 460.0, res.HistoricalTotal)
	assert.Equal(t, -39.57, res.GrowthRate)
	assert.Equal(t, "decomposition", res.Method)
}

func TestForecast_InsufficientData(t *testing.T) {
	e := NewEngine(Config{})
	for _, in := range [][]Observation{nil, series(day(2024, 1, 1), 5)} {
		_, err := e.Forecast(in, 7, "")
		assert.True(t, errors.Is(err, ErrInsufficientData), "got %v", err)
	}
}

func TestForecast_UnknownMethod(t *testing.T) {
	_, err := NewEngine(Config{}).Forecast(series(day(2024, 1, 1), 1, 2, 3), 3, "arima")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestForecast_InvalidHorizon(t *testing.T) {
	_, err := NewEngine(Config{}).Forecast(series(day(2024, 1, 1), 1, 2, 3), 0, "")
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}

func noisyWeekly(n int) []Observation {
	out := make([]Observation, n)
	start := day(2023, 1, 2) // Monday
	for i := range out {
		weekend := 0.0
		if wd := start.AddDate(0, 0, i).Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend = 40
		}
		noise := 7 * math.Sin(float64(i)*1.7)
		out[i] = Observation{Date: start.AddDate(0, 0, i), Value: 200 + 0.5*float64(i) + weekend + noise}
	}
	return out
}

func TestForecast_BandContainsPredictionAndWidens(t *testing.T) {
	e := NewEngine(Config{Densify: true})
	for _, method := range e.Methods() {
		t.Run(method, func(t *testing.T) {
			res, err := e.Forecast(noisyWeekly(60), 30, method)
			require.NoError(t, err)
			require.Len(t, res.Forecast, 30)

			prevWidth := -1.0
			for i, p := range res.Forecast {
				assert.LessOrEqual(t, p.LowerBound, p.Prediction)
				assert.LessOrEqual(t, p.Prediction, p.UpperBound)
				assert.GreaterOrEqual(t, p.Prediction, 0.0)
				width := p.UpperBound - p.LowerBound
				assert.GreaterOrEqual(t, width, prevWidth-0.02, "band narrowed at step %d", i+1)
				prevWidth = width
			}
		})
	}
}

func TestForecast_DatesAreConsecutive(t *testing.T) {
	res, err := NewEngine(Config{}).Forecast(noisyWeekly(21), 10, "holtwinters")
	require.NoError(t, err)
	last := day(2023, 1, 2).AddDate(0, 0, 20)
	for i, p := range res.Forecast {
		assert.Equal(t, last.AddDate(0, 0, i+1).Format(dateLayout), p.Date)
	}
}

func TestForecast_DecompositionFindsWeeklySeasonality(t *testing.T) {
	res, err := NewEngine(Config{}).Forecast(noisyWeekly(56), 7, "decomposition")
	require.NoError(t, err)
	require.Contains(t, res.Seasonality, "weekly")
	assert.Greater(t, res.Seasonality["weekly"], 30.0)

	// Weekend days should be forecast above weekdays.
	byDay := map[time.Weekday]float64{}
	for _, p := range res.Forecast {
		d, _ := time.Parse(dateLayout, p.Date)
		byDay[d.Weekday()] = p.Prediction
	}
	assert.Greater(t, byDay[time.Saturday], byDay[time.Wednesday])
}

func TestForecast_StableTrend(t *testing.T) {
	res, err := NewEngine(Config{}).Forecast(series(day(2024, 1, 1), 50, 50, 50, 50, 50), 3, "linear")
	require.NoError(t, err)
	assert.Equal(t, TrendStable, res.TrendDirection)
	assert.Equal(t, 150.0, res.ForecastTotal)
	assert.Equal(t, -40.0, res.GrowthRate)
	for _, p := range res.Forecast {
		assert.Equal(t, 50.0, p.Prediction)
		assert.Equal(t, p.Prediction, p.LowerBound)
	}
}

func TestForecast_DecreasingClampsAtZero(t *testing.T) {
	res, err := NewEngine(Config{}).Forecast(series(day(2024, 1, 1), 40, 30, 20, 10), 5, "linear")
	require.NoError(t, err)
	assert.Equal(t, TrendDecreasing, res.TrendDirection)
	for _, p := range res.Forecast {
		assert.GreaterOrEqual(t, p.Prediction, 0.0)
	}
}

func TestForecast_LowerBoundNotNegative(t *testing.T) {
	in := series(day(2024, 1, 1), 5, 90, 2, 80, 1, 95, 3, 70)
	res, err := NewEngine(Config{}).Forecast(in, 10, "linear")
	require.NoError(t, err)
	var clamped bool
	for _, p := range res.Forecast {
		assert.GreaterOrEqual(t, p.LowerBound, 0.0)
		assert.LessOrEqual(t, p.LowerBound, p.Prediction)
		if p.LowerBound == 0 && p.UpperBound > 0 {
			clamped = true
		}
	}
	assert.True(t, clamped, "expected the band to reach zero")
}

func TestForecast_DensifyFillsGaps(t *testing.T) {
	in := []Observation{
		{Date: day(2024, 1, 1), Value: 10},
		{Date: day(2024, 1, 4), Value: 10},
	}
	res, err := NewEngine(Config{Densify: true}).Forecast(in, 1, "linear")
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.HistoricalTotal)
	assert.Equal(t, "2024-01-05", res.Forecast[0].Date)
}

func TestNormalize_MergesAndSorts(t *testing.T) {
	out := normalize([]Observation{
		{Date: day(2024, 1, 2), Value: 1},
		{Date: time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), Value: 2},
		{Date: day(2024, 1, 1), Value: 3},
	})
	require.Len(t, out, 2)
	assert.Equal(t, Observation{Date: day(2024, 1, 1), Value: 5}, out[0])
}

func TestExtrema(t *testing.T) {
	hist := series(day(2024, 1, 1), 1, 5, 2, 8, 3, 3, 0, 4)
	peaks, troughs := extrema(hist, nil, 1, 5)

	require.Len(t, peaks, 2)
	assert.Equal(t, 8.0, peaks[0].Value)
	assert.Equal(t, "2024-01-04", peaks[0].Date)
	assert.Equal(t, 5.0, peaks[1].Value)
	assert.False(t, peaks[0].Forecast)

	require.Len(t, troughs, 2)
	assert.Equal(t, 0.0, troughs[0].Value)
	assert.Equal(t, 2.0, troughs[1].Value)
}

func TestExtrema_PlateauIsNotPeak(t *testing.T) {
	peaks, troughs := extrema(series(day(2024, 1, 1), 1, 5, 5, 1), nil, 1, 5)
	assert.Empty(t, peaks)
	assert.Empty(t, troughs)
}

func TestExtrema_LimitAndForecastFlag(t *testing.T) {
	hist := series(day(2024, 1, 1), 0, 9, 0, 8, 0, 7, 0)
	fc := []Point{{Date: "2024-01-08", Prediction: 6}, {Date: "2024-01-09", Prediction: 0}}
	peaks, _ := extrema(hist, fc, 1, 2)
	require.Len(t, peaks, 2)
	assert.Equal(t, 9.0, peaks[0].Value)
	assert.Equal(t, 8.0, peaks[1].Value)

	peaks, _ = extrema(hist, fc, 1, 10)
	require.Len(t, peaks, 4)
	assert.True(t, peaks[3].Forecast)
}

func TestProfile_TooShortIsEmpty(t *testing.T) {
	p := NewEngine(Config{}).Profile(noisyWeekly(29))
	assert.Empty(t, p.Weekly)
	assert.Empty(t, p.Monthly)
	assert.Empty(t, p.Quarterly)
	assert.NotNil(t, p.Weekly)
}

func TestProfile_Weekly(t *testing.T) {
	p := NewEngine(Config{}).Profile(noisyWeekly(70))
	require.Len(t, p.Weekly, 7)
	assert.Greater(t, p.Weekly["Saturday"], p.Weekly["Tuesday"])
	assert.Greater(t, p.Weekly["Sunday"], 0.0)
	assert.Contains(t, p.Monthly, "Jan")
	assert.Contains(t, p.Quarterly, "Q1 (Jan-Mar)")
	assert.Greater(t, p.Components["weekly"], 30.0)
}

func TestLookup(t *testing.T) {
	e := NewEngine(Config{Method: "linear"})
	s, err := e.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "linear", s.Name())

	s, err = e.Lookup(" HoltWinters ")
	require.NoError(t, err)
	assert.Equal(t, "holtwinters", s.Name())

	assert.Equal(t, []string{"decomposition", "holtwinters", "linear"}, e.Methods())

	s, err = e.Lookup("Prophet")
	require.NoError(t, err)
	assert.Equal(t, "decomposition", s.Name())

	s, err = e.Lookup("sarima")
	require.NoError(t, err)
	assert.Equal(t, "holtwinters", s.Name())

	_, err = e.Lookup("arima")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestForecast_AliasReportsResolvedMethod(t *testing.T) {
	res, err := NewEngine(Config{}).Forecast(noisyWeekly(28), 7, "prophet")
	require.NoError(t, err)
	assert.Equal(t, "decomposition", res.Method)
	assert.Contains(t, res.Seasonality, "weekly")
}
