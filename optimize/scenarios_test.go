package optimize_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/bcdannyboy/hypermet/hypermet"
	"github.com/bcdannyboy/hypermet/optimize"
	"github.com/bcdannyboy/hypermet/region"
)

// TestConstantScenarioConvergesQuickly mirrors the simplest end-to-end
// scenario: a single SineBounded value fit against a flat window,
// starting well off the true level.
func TestConstantScenarioConvergesQuickly(t *testing.T) {
	c := optimize.NewConstant(40, 10, 0, 40, 30)
	cfg := optimize.DefaultConfig()
	cfg.Tolerance = 1e-9
	opt := optimize.NewBFGSOptimizer(cfg)
	result, err := opt.Minimize(context.Background(), c, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.True(t, result.Converged)
	assert.LessOrEqual(t, result.Iterations, 11)
	assert.InDelta(t, 10.0, c.Value.Val(), 1e-4)
}

// TestLinearScenarioConvergesQuickly fits a single slope against a
// synthetic window growing linearly with channel index.
func TestLinearScenarioConvergesQuickly(t *testing.T) {
	l := optimize.NewLinear(40, 5, 0, 40, 30)
	cfg := optimize.DefaultConfig()
	cfg.Tolerance = 1e-11
	opt := optimize.NewBFGSOptimizer(cfg)
	result, err := opt.Minimize(context.Background(), l, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.True(t, result.Converged)
	assert.LessOrEqual(t, result.Iterations, 13)
	assert.InDelta(t, 5.0, l.Slope.Val(), 1e-4)
}

// TestRosenbrock10DFromZeroConverges exercises the harder all-zero start
// with the analytic gradient forced on throughout.
func TestRosenbrock10DFromZeroConverges(t *testing.T) {
	r := optimize.NewRosenbrockAtZero(10)
	cfg := optimize.DefaultConfig()
	cfg.GradientSelection = optimize.AnalyticAlways
	cfg.MaxIterations = 20
	opt := optimize.NewBFGSOptimizer(cfg)
	result, err := opt.Minimize(context.Background(), r, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.True(t, result.Converged)
	assert.LessOrEqual(t, result.Iterations, 20)
	assert.Less(t, result.Value, 1e-9)
}

// cancelingQuadratic cancels its own context after its third gradient
// evaluation, exercising the outer loop's cancellation-between-attempts
// check rather than a context that is already cancelled at entry.
type cancelingQuadratic struct {
	optimize.Quadratic
	calls  int
	cancel context.CancelFunc
}

func (c *cancelingQuadratic) ChiSqGradient(x, grad []float64) float64 {
	c.calls++
	if c.calls == 3 {
		c.cancel()
	}
	return c.Quadratic.ChiSqGradient(x, grad)
}

// TestCancellationStopsWithinOneIterationOfRequest mirrors scenario 6: a
// fit cancelled mid-flight must return non-convergent within one further
// iteration, reporting the best-so-far variables.
func TestCancellationStopsWithinOneIterationOfRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &cancelingQuadratic{Quadratic: *optimize.NewQuadratic([]float64{5, -5, 5, -5, 5})}
	q.cancel = cancel

	opt := optimize.NewBFGSOptimizer(optimize.DefaultConfig())
	result, err := opt.Minimize(ctx, q, rand.New(rand.NewSource(3)))
	require.Error(t, err)
	assert.False(t, result.Converged)
	assert.Equal(t, "Externally interrupted", result.ErrorMessage)
	assert.LessOrEqual(t, result.Iterations, 4)
}

// gaussianWindow builds a noise-free single-peak-on-linear-background
// synthetic spectrum, anchored so the true peak position sits at
// xOffset.
func gaussianWindow(n int, xOffset, truePos, trueAmp, trueWidth, trueBase, trueSlope float64) (channels, counts, weights []float64) {
	channels = make([]float64, n)
	counts = make([]float64, n)
	for i := range counts {
		ch := float64(i)
		s := (ch - truePos) / trueWidth
		channels[i] = ch
		counts[i] = trueBase + trueSlope*(ch-xOffset) + trueAmp*math.Exp(-s*s)
	}
	weights = make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	return channels, counts, weights
}

// TestGaussianPeakRecoveryAcrossRandomStarts mirrors scenario 3: fitting
// all six free parameters (background base/slope/curve, peak amplitude/
// position/width) must converge to the true position from at least 95%
// of 100 randomized starting points.
func TestGaussianPeakRecoveryAcrossRandomStarts(t *testing.T) {
	const (
		truePos, trueAmp, trueWidth = 51.0, 40000.0, 3.2
		trueBase, trueSlope         = 70.0, 1.0
		trials                      = 100
	)
	channels, counts, weights := gaussianWindow(100, truePos, truePos, trueAmp, trueWidth, trueBase, trueSlope)

	successes := 0
	for trial := 0; trial < trials; trial++ {
		rng := rand.New(rand.NewSource(uint64(1000 + trial)))

		background := *hypermet.NewPolyBackground(truePos)
		background.Base.ToFit = true
		background.Slope.ToFit = true
		background.CurveSet = true
		background.Curve.ToFit = true

		startPos := truePos + (rng.Float64()*2-1)*3
		startAmp := trueAmp * (0.75 + rng.Float64()*0.5)
		peak := hypermet.NewPeak(0, 99, startPos, startAmp)
		peak.Position.ToFit = true
		peak.Amplitude.ToFit = true
		peak.WidthOverride = true
		peak.Width.ToFit = true

		r, err := region.New(channels, counts, weights, background, []hypermet.Peak{*peak})
		require.NoError(t, err)
		r.Defaults.ShortTail.Enabled = false
		require.NoError(t, r.UpdateIndices())

		cfg := optimize.DefaultConfig()
		opt := optimize.NewBFGSOptimizer(cfg)
		result, fitErr := opt.Minimize(context.Background(), r, rng)
		if fitErr != nil || !result.Converged {
			continue
		}
		fitted := r.Peaks()[0]
		if math.Abs(fitted.Position.Val()-truePos) < 1e-2 {
			successes++
		}
	}

	assert.GreaterOrEqual(t, successes, 95, "expected at least 95/100 random starts to converge to the true position")
}

// TestSkewTailAmplitudeRecovery mirrors scenario 4: fitting a single
// long-tail amplitude (everything else held fixed) from a randomized
// start within its bound must recover the true amplitude quickly.
func TestSkewTailAmplitudeRecovery(t *testing.T) {
	const (
		truePos, trueAmp, trueWidth = 50.0, 1000.0, 2.0
		trueBase                    = 10.0
		trueTailAmp, trueTailSlope  = 0.05, 30.0
	)

	peak := hypermet.NewPeak(0, 99, truePos, trueAmp)
	peak.LongTail.Enabled = true
	peak.LongTail.Override = true
	peak.LongTail.Amplitude.SetValue(trueTailAmp)
	peak.LongTail.Slope.SetValue(trueTailSlope)

	channels := make([]float64, 100)
	counts := make([]float64, 100)
	weights := make([]float64, 100)
	for i := range counts {
		channels[i] = float64(i)
		counts[i] = trueBase + peak.Eval(channels[i]).All()
		weights[i] = 1
	}

	rng := rand.New(rand.NewSource(42))
	start := 0.001 + rng.Float64()*(0.15-0.001)
	peak.LongTail.Amplitude.SetValue(start)
	peak.LongTail.Amplitude.ToFit = true
	peak.WidthOverride = true

	background := *hypermet.NewPolyBackground(truePos)
	background.Base.SetValue(trueBase)

	r, err := region.New(channels, counts, weights, background, []hypermet.Peak{*peak})
	require.NoError(t, err)
	r.Defaults.ShortTail.Enabled = false
	require.NoError(t, r.UpdateIndices())

	cfg := optimize.DefaultConfig()
	cfg.Tolerance = 1e-7
	opt := optimize.NewBFGSOptimizer(cfg)
	result, fitErr := opt.Minimize(context.Background(), r, rng)
	require.NoError(t, fitErr)
	assert.True(t, result.Converged)
	assert.LessOrEqual(t, result.Iterations, 13)
	assert.InDelta(t, trueTailAmp, r.Peaks()[0].LongTail.Amplitude.Val(), 1e-3)
}
