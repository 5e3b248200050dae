package forecast

import (
	"sort"

	"github.com/kalambet/salesdash/internal/metrics"
)

// extrema finds strict local maxima and minima over the historical series
// followed by the forecast. A point qualifies when it is strictly greater
// (or smaller) than every neighbour within window on both sides; points
// closer than window to either end are never extrema.
func extrema(history []Observation, forecast []Point, window, maxEvents int) (peaks, troughs []Event) {
	events := make([]Event, 0, len(history)+len(forecast))
	for _, o := range history {
		events = append(events, Event{Date: o.Date.Format(dateLayout), Value: metrics.Round2(o.Value)})
	}
	for _, p := range forecast {
		events = append(events, Event{Date: p.Date, Value: p.Prediction, Forecast: true})
	}

	peaks, troughs = []Event{}, []Event{}
	for i := window; i < len(events)-window; i++ {
		isPeak, isTrough := true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if events[j].Value >= events[i].Value {
				isPeak = false
			}
			if events[j].Value <= events[i].Value {
				isTrough = false
			}
		}
		if isPeak {
			peaks = append(peaks, events[i])
		}
		if isTrough {
			troughs = append(troughs, events[i])
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Value > peaks[j].Value })
	sort.SliceStable(troughs, func(i, j int) bool { return troughs[i].Value < troughs[j].Value })
	if len(peaks) > maxEvents {
		peaks = peaks[:maxEvents]
	}
	if len(troughs) > maxEvents {
		troughs = troughs[:maxEvents]
	}
	return peaks, troughs
}
