// Package metrics computes period-over-period KPIs and formats them for display.
package metrics

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Trend is the sign of a change.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Format selects how a KeyMetric's values are rendered.
type Format int

const (
	FormatCount Format = iota
	FormatMoney
)

// KeyMetric is one KPI compared against the previous period.
type KeyMetric struct {
	Name            string  `json:"name"`
	Value           float64 `json:"value"`
	PreviousValue   float64 `json:"previous_value"`
	DisplayValue    string  `json:"display_value"`
	DisplayPrevious string  `json:"display_previous_value"`
	Change          float64 `json:"change"`
	ChangePercent   string  `json:"change_percent"`
	Trend           Trend   `json:"trend"`
}

// NewKeyMetric builds a KeyMetric from current and previous values.
func NewKeyMetric(name string, current, previous float64, format Format) KeyMetric {
	change, pct := PercentChange(current, previous)
	return KeyMetric{
		Name:            name,
		Value:           current,
		PreviousValue:   previous,
		DisplayValue:    display(current, format),
		DisplayPrevious: display(previous, format),
		Change:          change,
		ChangePercent:   pct,
		Trend:           TrendOf(change),
	}
}

func display(v float64, format Format) string {
	if format == FormatMoney {
		return FormatCurrency(v)
	}
	return fmt.Sprintf("%d", int64(math.Round(v)))
}

// PercentChange returns ((current-previous)/|previous|)*100 and its "+x.xx%" form.
// A zero previous value yields (0, "0.00%") regardless of current.
func PercentChange(current, previous float64) (float64, string) {
	if previous == 0 {
		return 0, "0.00%"
	}
	change := (current - previous) / math.Abs(previous) * 100
	return change, fmt.Sprintf("%+.2f%%", change)
}

// TrendOf is strictly sign based.
func TrendOf(change float64) Trend {
	switch {
	case change > 0:
		return TrendUp
	case change < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}

// AverageOrderValue returns sales/orders, or 0 when there are no orders.
func AverageOrderValue(sales float64, orders int64) float64 {
	if orders <= 0 {
		return 0
	}
	return sales / float64(orders)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// PercentOfTotal returns each value as a percentage of their sum, rounded to two
// decimal places. Every percentage is 0 when the sum is not positive.
func PercentOfTotal(values []float64) []float64 {
	out := make([]float64, len(values))
	var total float64
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = Round2(v / total * 100)
	}
	return out
}

// FormatCurrency renders v as "$1,234.56".
func FormatCurrency(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + "$" + groupThousands(whole) + "." + frac
}

// FormatLargeNumber renders v compactly with K/M/B suffixes.
func FormatLargeNumber(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.2fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.2fK", v/1_000)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
