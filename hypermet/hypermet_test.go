package hypermet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignAll(t *testing.T, peak *Peak) {
	t.Helper()
	peak.WidthOverride = true
	peak.ShortTail.Override = true
	peak.RightTail.Override = true
	peak.LongTail.Override = true
	peak.Step.Override = true
	peak.ShortTail.Enabled = true
	peak.RightTail.Enabled = true
	peak.LongTail.Enabled = true
	peak.Step.Enabled = true

	counter := 0
	peak.Position.ToFit = true
	peak.Amplitude.ToFit = true
	peak.Width.ToFit = true
	peak.ShortTail.Amplitude.ToFit = true
	peak.ShortTail.Slope.ToFit = true
	peak.RightTail.Amplitude.ToFit = true
	peak.RightTail.Slope.ToFit = true
	peak.LongTail.Amplitude.ToFit = true
	peak.LongTail.Slope.ToFit = true
	peak.Step.Amplitude.ToFit = true

	require.NoError(t, peak.UpdateIndices(&counter))
	assert.Equal(t, 10, counter)
}

func TestPeakGaussianOnlyMatchesClosedForm(t *testing.T) {
	p := NewPeak(0, 100, 50, 1000)
	counter := 0
	p.Position.ToFit = true
	p.Amplitude.ToFit = true
	require.NoError(t, p.UpdateIndices(&counter))

	c := p.Eval(52)
	s := (52.0 - 50.0) / p.Width.Val()
	want := p.Amplitude.Val() * math.Exp(-s*s)
	assert.InDelta(t, want, c.Gaussian, 1e-9)
	assert.Equal(t, 0.0, c.ShortTail+c.RightTail+c.LongTail+c.Step)
}

func TestPeakGradientMatchesCentralDifference(t *testing.T) {
	p := NewPeak(0, 100, 50, 1000)
	assignAll(t, p)

	n := 10
	channels := []float64{40, 45, 48, 49.5, 50, 50.5, 52, 55, 60, 70}
	const h = 1e-6

	for _, ch := range channels {
		grads := make([]float64, n)
		p.EvalGrad(ch, grads)

		for i := 0; i < n; i++ {
			xs := collectX(p)
			base := xs[i]

			xs[i] = base + h
			scatter(p, xs)
			plus := p.Eval(ch).All()

			xs[i] = base - h
			scatter(p, xs)
			minus := p.Eval(ch).All()

			xs[i] = base
			scatter(p, xs)

			numeric := (plus - minus) / (2 * h)
			assert.InDeltaf(t, numeric, grads[i], 1e-4, "index %d chan %v", i, ch)
		}
	}
}

func collectX(p *Peak) []float64 {
	return []float64{
		p.Amplitude.X(), p.Position.X(), p.Width.X(),
		p.ShortTail.Amplitude.X(), p.ShortTail.Slope.X(),
		p.RightTail.Amplitude.X(), p.RightTail.Slope.X(),
		p.LongTail.Amplitude.X(), p.LongTail.Slope.X(),
		p.Step.Amplitude.X(),
	}
}

func scatter(p *Peak, xs []float64) {
	p.Amplitude.SetX(xs[0])
	p.Position.SetX(xs[1])
	p.Width.SetX(xs[2])
	p.ShortTail.Amplitude.SetX(xs[3])
	p.ShortTail.Slope.SetX(xs[4])
	p.RightTail.Amplitude.SetX(xs[5])
	p.RightTail.Slope.SetX(xs[6])
	p.LongTail.Amplitude.SetX(xs[7])
	p.LongTail.Slope.SetX(xs[8])
	p.Step.Amplitude.SetX(xs[9])
}

func TestPeakSaneRejectsPositionOutsideWindow(t *testing.T) {
	p := NewPeak(0, 100, 50, 1000)
	assert.True(t, p.Sane(0, 100))
	p.Position.SetValue(150)
	assert.False(t, p.Sane(0, 100))
}

func TestPeakSaneRejectsNonPositiveAmplitude(t *testing.T) {
	p := NewPeak(0, 100, 50, 1000)
	p.Amplitude.SetX(p.Amplitude.Transform.Invert(0))
	// Under the Positive transform x=0 gives an amplitude of exactly zero,
	// which the guard must reject.
	assert.False(t, p.Sane(0, 100))
}

func TestPeakAreaMatchesGaussianWhenTailsDisabled(t *testing.T) {
	p := NewPeak(0, 100, 50, 1000)
	area := p.Area(0.5)
	want := p.Amplitude.Val() * p.Width.Val() * sqrtPi
	assert.InDelta(t, want, area.Value, 1e-9)
	assert.InDelta(t, math.Sqrt(want), area.Sigma, 1e-9)
}

func TestBackgroundGradientMatchesCentralDifference(t *testing.T) {
	b := NewPolyBackground(100)
	b.CurveSet = true
	b.Base.ToFit = true
	b.Slope.ToFit = true
	b.Curve.ToFit = true
	counter := 0
	require.NoError(t, b.UpdateIndices(&counter))
	assert.Equal(t, 3, counter)

	const h = 1e-5
	for _, ch := range []float64{50, 90, 100, 110, 200} {
		grads := make([]float64, 3)
		b.EvalGrad(ch, grads)

		xs := []float64{b.Base.X(), b.Slope.X(), b.Curve.X()}
		for i := range xs {
			base := xs[i]
			set := func(v float64) {
				switch i {
				case 0:
					b.Base.SetX(v)
				case 1:
					b.Slope.SetX(v)
				case 2:
					b.Curve.SetX(v)
				}
			}
			set(base + h)
			plus := b.Eval(ch)
			set(base - h)
			minus := b.Eval(ch)
			set(base)

			numeric := (plus - minus) / (2 * h)
			assert.InDeltaf(t, numeric, grads[i], 1e-4, "coeff %d chan %v", i, ch)
		}
	}
}
