package main

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"github.com/bcdannyboy/hypermet/fitconfig"
	"github.com/bcdannyboy/hypermet/hypermet"
	"github.com/bcdannyboy/hypermet/optimize"
	"github.com/bcdannyboy/hypermet/region"
)

// syntheticCounts fabricates a single-Gaussian-on-flat-background window
// with Poisson-like scatter, standing in for a real acquired spectrum.
func syntheticCounts(n int, truePos, trueAmp, trueWidth, trueBase float64, rng *rand.Rand) []float64 {
	counts := make([]float64, n)
	for i := range counts {
		ch := float64(i)
		s := (ch - truePos) / trueWidth
		mean := trueBase + trueAmp*math.Exp(-s*s)
		counts[i] = math.Max(0, mean+rng.NormFloat64()*math.Sqrt(math.Max(mean, 1)))
	}
	return counts
}

func runDemo(cfg fitconfig.OptimizerConfig) error {
	optCfg, err := cfg.ToOptimizeConfig()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(42))
	const truePos, trueAmp, trueWidth, trueBase = 64.0, 800.0, 2.2, 12.0
	counts := syntheticCounts(128, truePos, trueAmp, trueWidth, trueBase, rng)

	channels := make([]float64, len(counts))
	weights := make([]float64, len(counts))
	for i := range counts {
		channels[i] = float64(i)
		weights[i] = region.Weight(counts, i, region.WeightTrue)
	}

	background := *hypermet.NewPolyBackground(truePos)
	background.Base.ToFit = true
	background.Slope.ToFit = true

	peak := hypermet.NewPeak(0, float64(len(counts)-1), truePos+3, trueAmp*0.7)
	peak.Position.ToFit = true
	peak.Amplitude.ToFit = true
	peak.WidthOverride = true
	peak.Width.ToFit = true

	r, err := region.New(channels, counts, weights, background, []hypermet.Peak{*peak})
	if err != nil {
		return err
	}
	fittedPeak := r.Peaks()[0]

	opt := optimize.NewBFGSOptimizer(optCfg)
	result, fitErr := opt.Minimize(context.Background(), r, rng)
	if fitErr != nil {
		log.WithError(fitErr).Error("fit failed")
		return fitErr
	}

	fields := logrus.Fields{
		"converged":      result.Converged,
		"iterations":     result.Iterations,
		"perturbations":  result.TotalPerturbations,
		"usedFiniteGrad": result.UsedFiniteGrads,
		"chiSq":          result.Value,
		"chiSqNorm":      r.ChiSqNorm(),
		"position":       fittedPeak.Position.Val(),
		"amplitude":      fittedPeak.Amplitude.Val(),
		"width":          fittedPeak.Width.Val(),
		"background":     r.Background.Base.Val(),
	}

	area := fittedPeak.Area(r.ChiSqNorm())
	fields["area"] = area.Value
	fields["areaSigma"] = area.Sigma

	if result.Converged {
		log.WithFields(fields).Info("fit converged")
	} else {
		log.WithFields(fields).Warn("fit reported non-convergence")
	}
	return nil
}
