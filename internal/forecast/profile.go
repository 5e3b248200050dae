package forecast

import (
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// MinProfilePoints is the fewest observations a seasonality profile is computed from.
const MinProfilePoints = 30

// Profile describes recurring patterns as additive effects around the trend.
type Profile struct {
	Components map[string]float64 `json:"components"`
	Weekly     map[string]float64 `json:"weekly"`
	Monthly    map[string]float64 `json:"monthly"`
	Quarterly  map[string]float64 `json:"quarterly"`
}

func emptyProfile() Profile {
	return Profile{
		Components: map[string]float64{},
		Weekly:     map[string]float64{},
		Monthly:    map[string]float64{},
		Quarterly:  map[string]float64{},
	}
}

var (
	weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	monthNames   = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	quarterNames = [4]string{"Q1 (Jan-Mar)", "Q2 (Apr-Jun)", "Q3 (Jul-Sep)", "Q4 (Oct-Dec)"}
)

// Profile returns the weekly, monthly and quarterly effects of series after
// removing a linear trend. Fewer than MinProfilePoints observations yield an
// empty profile.
func (e *Engine) Profile(series []Observation) Profile {
	series = normalize(series)
	if len(series) < MinProfilePoints {
		return emptyProfile()
	}
	if e.cfg.Densify {
		series = densify(series)
	}

	t, y := design(series)
	intercept, slope := fitTrend(t, y)
	resid := detrend(t, y, intercept, slope)

	p := emptyProfile()

	// Monday first.
	weekdayIdx := func(d time.Time) int { return (int(d.Weekday()) + 6) % 7 }
	weekly := groupEffects(series, resid, 7, weekdayIdx)
	observed := presence(series, 7, weekdayIdx)
	for i, name := range weekdayNames {
		if observed[i] {
			p.Weekly[name] = round4(weekly[i])
		}
	}
	p.Components["weekly"] = round4(amplitude(weekly))

	monthIdx := func(d time.Time) int { return int(d.Month()) - 1 }
	for i := range resid {
		resid[i] -= weekly[weekdayIdx(series[i].Date)]
	}
	monthly := groupEffects(series, resid, 12, monthIdx)
	seenMonth := presence(series, 12, monthIdx)
	var monthEffects []float64
	for i, name := range monthNames {
		if seenMonth[i] {
			p.Monthly[name] = round4(monthly[i])
			monthEffects = append(monthEffects, monthly[i])
		}
	}
	if len(monthEffects) > 1 {
		p.Components["yearly"] = round4(amplitude(monthEffects))
	}

	for q, name := range quarterNames {
		var effects []float64
		for m := q * 3; m < q*3+3; m++ {
			if seenMonth[m] {
				effects = append(effects, monthly[m])
			}
		}
		if len(effects) > 0 {
			p.Quarterly[name] = round4(stat.Mean(effects, nil))
		}
	}
	return p
}

func presence(series []Observation, n int, key func(time.Time) int) []bool {
	seen := make([]bool, n)
	for _, o := range series {
		seen[key(o.Date)] = true
	}
	return seen
}

func round4(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}
