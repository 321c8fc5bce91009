package recommend

import (
	"math"

	"github.com/MrWong99/oratio/internal/metrics"
)

// trendWindow is how many recent sessions form the comparison baseline.
const trendWindow = 3

// minTrendHistory is the number of earlier sessions needed for a trend.
const minTrendHistory = 2

// minDelta is the smallest change per area that counts as movement.
var minDelta = map[string]float64{
	AreaFillerWords:     0.005,
	AreaPace:            5,
	AreaClarity:         0.02,
	AreaEngagement:      0.02,
	AreaFluency:         0.02,
	AreaPauses:          1,
	AreaProfessionalism: 1,
}

// goodness maps a metric value so that larger is always better.
func goodness(area string, v float64) float64 {
	switch area {
	case AreaPace:
		return -math.Max(0, math.Max(paceMin-v, v-paceMax))
	case AreaFillerWords, AreaPauses, AreaProfessionalism:
		return -v
	}
	return v
}

// Trends compares the current session with the mean of the most recent
// earlier sessions, per area. It returns nil with fewer than two earlier
// sessions.
func Trends(in Input) map[string]string {
	if len(in.History) < minTrendHistory {
		return nil
	}
	recent := in.History[max(0, len(in.History)-trendWindow):]
	out := make(map[string]string, len(areaOrder))
	for _, area := range areaOrder {
		prev := make([]float64, len(recent))
		for i, s := range recent {
			prev[i] = goodness(area, Value(area, s.Metrics, s.Issues))
		}
		delta := goodness(area, Value(area, in.Metrics, in.Issues)) - metrics.Mean(prev)
		switch {
		case delta >= minDelta[area]:
			out[area] = TrendImproving
		case delta <= -minDelta[area]:
			out[area] = TrendDeclining
		default:
			out[area] = TrendStable
		}
	}
	return out
}
