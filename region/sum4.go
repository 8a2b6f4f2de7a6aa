package region

import (
	"math"

	"github.com/bcdannyboy/hypermet/uncertain"
)

// SUM4Edge is a baseline-sampling window: a contiguous run of channels
// assumed to contain only background, used to estimate the continuum
// under a peak independently of the fit.
type SUM4Edge struct {
	Min, Max float64 // inclusive channel bounds
}

// average returns the mean count and its Poisson-propagated uncertainty
// over this edge's channels.
func (e SUM4Edge) average(window []Point) uncertain.Double {
	sum, n := 0.0, 0.0
	for _, pt := range window {
		if pt.Channel >= e.Min && pt.Channel <= e.Max {
			sum += pt.Count
			n++
		}
	}
	if n == 0 {
		return uncertain.New(0, 0)
	}
	mean := sum / n
	sigma := math.Sqrt(math.Max(sum, 1)) / n
	return uncertain.New(mean, sigma)
}

// SUM4 is the independent numerical-integration peak-area estimator:
// gross counts in the peak region minus a flat baseline: the mean of the
// two surrounding edges' per-channel averages times the number of peak
// channels.
type SUM4 struct {
	Left, Right      SUM4Edge
	PeakMin, PeakMax float64
}

// Area estimates the net peak area and its uncertainty.
func (s SUM4) Area(window []Point) uncertain.Double {
	gross, n := 0.0, 0.0
	for _, pt := range window {
		if pt.Channel >= s.PeakMin && pt.Channel <= s.PeakMax {
			gross += pt.Count
			n++
		}
	}
	grossU := uncertain.New(gross, math.Sqrt(math.Max(gross, 1)))

	left := s.Left.average(window)
	right := s.Right.average(window)
	baselinePerChan := left.Add(right).Scale(0.5)
	baseline := baselinePerChan.Scale(n)

	return grossU.Sub(baseline)
}
