package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentChange_ZeroPrevious(t *testing.T) {
	for _, current := range []float64{0, 1, -5, 1e9} {
		change, pct := PercentChange(current, 0)
		assert.Equal(t, 0.0, change)
		assert.Equal(t, "0.00%", pct)
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		current, previous float64
		want              float64
		wantStr           string
	}{
		{150, 100, 50, "+50.00%"},
		{50, 100, -50, "-50.00%"},
		{100, 100, 0, "+0.00%"},
		{-50, -100, 50, "+50.00%"},
		{10, 3, 233.33333333333334, "+233.33%"},
	}
	for _, tt := range tests {
		change, pct := PercentChange(tt.current, tt.previous)
		assert.InDelta(t, tt.want, change, 1e-9)
		assert.Equal(t, tt.wantStr, pct)
		assert.InDelta(t, (tt.current-tt.previous)/math.Abs(tt.previous)*100, change, 1e-9)
	}
}

func TestTrendOf(t *testing.T) {
	assert.Equal(t, TrendUp, TrendOf(0.0001))
	assert.Equal(t, TrendDown, TrendOf(-3))
	assert.Equal(t, TrendFlat, TrendOf(0))
}

func TestNewKeyMetric(t *testing.T) {
	m := NewKeyMetric("Total Sales", 1500.5, 1000, FormatMoney)
	assert.Equal(t, "$1,500.50", m.DisplayValue)
	assert.Equal(t, "$1,000.00", m.DisplayPrevious)
	assert.InDelta(t, 50.05, m.Change, 1e-9)
	assert.Equal(t, "+50.05%", m.ChangePercent)
	assert.Equal(t, TrendUp, m.Trend)

	c := NewKeyMetric("Order Count", 12, 0, FormatCount)
	assert.Equal(t, "12", c.DisplayValue)
	assert.Equal(t, TrendFlat, c.Trend)
	assert.Equal(t, "0.00%", c.ChangePercent)
}

func TestAverageOrderValue(t *testing.T) {
	assert.Equal(t, 0.0, AverageOrderValue(500, 0))
	assert.Equal(t, 125.0, AverageOrderValue(500, 4))
}

func TestPercentOfTotal(t *testing.T) {
	assert.Equal(t, []float64{75, 25}, PercentOfTotal([]float64{300, 100}))
	assert.Equal(t, []float64{0, 0}, PercentOfTotal([]float64{0, 0}))
	assert.Empty(t, PercentOfTotal(nil))

	pcts := PercentOfTotal([]float64{1, 1, 1})
	var sum float64
	for _, p := range pcts {
		sum += p
	}
	assert.InDelta(t, 100, sum, 0.05)
}

func TestFormatCurrency(t *testing.T) {
	tests := map[float64]string{
		0:          "$0.00",
		5:          "$5.00",
		999.999:    "$1,000.00",
		1234.5:     "$1,234.50",
		1234567.89: "$1,234,567.89",
		-42.1:      "-$42.10",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatCurrency(in), "FormatCurrency(%v)", in)
	}
}

func TestFormatLargeNumber(t *testing.T) {
	assert.Equal(t, "999.00", FormatLargeNumber(999))
	assert.Equal(t, "1.00K", FormatLargeNumber(1000))
	assert.Equal(t, "2.50M", FormatLargeNumber(2_500_000))
	assert.Equal(t, "1.20B", FormatLargeNumber(1_200_000_000))
	assert.Equal(t, "-1.50K", FormatLargeNumber(-1500))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, Round2(33.333333))
	assert.Equal(t, 0.0, Round2(math.NaN()))
}
