package region

import "math"

// WeightMode selects the statistical weight estimator applied to each bin
// in a data window.
type WeightMode int

const (
	// WeightTrue uses sqrt(max(count, 1)) directly (Poisson counting
	// statistics, floored so empty bins don't yield a zero weight).
	WeightTrue WeightMode = iota
	// WeightPhillipsMarlow falls back to a local smoothed average for
	// near-zero bins, where raw Poisson counting statistics are too
	// noisy to trust, and uses true weighting otherwise.
	WeightPhillipsMarlow
)

// phillipsMarlowThreshold is the raw count above which smoothing is
// skipped in favor of plain counting statistics.
const phillipsMarlowThreshold = 9

// Weight computes the statistical weight for counts[i] under mode.
func Weight(counts []float64, i int, mode WeightMode) float64 {
	if mode == WeightTrue || counts[i] > phillipsMarlowThreshold {
		return math.Sqrt(math.Max(counts[i], 1))
	}
	lo, hi := i-2, i+2
	if lo < 0 {
		lo = 0
	}
	if hi >= len(counts) {
		hi = len(counts) - 1
	}
	sum := 0.0
	for j := lo; j <= hi; j++ {
		sum += counts[j]
	}
	avg := sum / float64(hi-lo+1)
	return math.Sqrt(math.Max(avg, 1))
}

// Point is one (channel, count, weight) triple in a Region's data window.
type Point struct {
	Channel float64
	Count   float64
	Weight  float64
}

// NewWindow builds a weighted data window from consecutive bin counts,
// starting at startChannel, using the chosen weight estimator.
func NewWindow(counts []float64, startChannel float64, mode WeightMode) []Point {
	pts := make([]Point, len(counts))
	for i, c := range counts {
		pts[i] = Point{Channel: startChannel + float64(i), Count: c, Weight: Weight(counts, i, mode)}
	}
	return pts
}
