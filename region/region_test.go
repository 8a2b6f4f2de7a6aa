package region

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/bcdannyboy/hypermet/hypermet"
)

func syntheticWindow(n int, peakPos, peakAmp, width, base float64) (channels, counts, weights []float64) {
	channels = make([]float64, n)
	counts = make([]float64, n)
	for i := range counts {
		chan_ := float64(i)
		s := (chan_ - peakPos) / width
		channels[i] = chan_
		counts[i] = base + peakAmp*math.Exp(-s*s)
	}
	weights = make([]float64, n)
	for i := range weights {
		weights[i] = Weight(counts, i, WeightTrue)
	}
	return channels, counts, weights
}

func newSinglePeakRegion(t *testing.T) (*Region, *hypermet.Peak) {
	t.Helper()
	channels, counts, weights := syntheticWindow(100, 50, 500, 1.5, 5)
	bg := hypermet.NewPolyBackground(50)
	bg.Base.ToFit = true

	p := hypermet.NewPeak(0, 99, 50, 500)
	p.Position.ToFit = true
	p.Amplitude.ToFit = true
	p.WidthOverride = true
	p.Width.ToFit = true

	r, err := New(channels, counts, weights, *bg, []hypermet.Peak{*p})
	require.NoError(t, err)
	return r, r.peaks[0]
}

func TestNewRejectsMismatchedLengths(t *testing.T) {
	bg := *hypermet.NewPolyBackground(0)
	_, err := New([]float64{1, 2, 3}, []float64{1, 2}, []float64{1, 1, 1}, bg, nil)
	require.Error(t, err)
}

func TestNewRejectsShortWindow(t *testing.T) {
	bg := *hypermet.NewPolyBackground(0)
	_, err := New([]float64{1, 2}, []float64{1, 2}, []float64{1, 1}, bg, nil)
	require.Error(t, err)
}

func TestNewRejectsNonPositiveWeight(t *testing.T) {
	bg := *hypermet.NewPolyBackground(0)
	channels := []float64{0, 1, 2, 3}
	counts := []float64{1, 2, 3, 4}
	weights := []float64{1, 1, 0, 1}
	_, err := New(channels, counts, weights, bg, nil)
	require.Error(t, err)
}

func TestUpdateIndicesCoversContiguousRange(t *testing.T) {
	r, p := newSinglePeakRegion(t)
	assert.Greater(t, r.VariableCount(), 0)

	seen := make([]bool, r.VariableCount())
	mark := func(idx int) {
		if idx >= 0 {
			assert.False(t, seen[idx], "index %d assigned twice", idx)
			seen[idx] = true
		}
	}
	mark(r.Background.Base.Index())
	mark(r.Background.Slope.Index())
	mark(r.Defaults.ShortTail.Amplitude.Index())
	mark(r.Defaults.ShortTail.Slope.Index())
	mark(p.Position.Index())
	mark(p.Amplitude.Index())
	mark(p.Width.Index())

	for _, s := range seen {
		assert.True(t, s)
	}
}

func TestChiSqIsNonNegative(t *testing.T) {
	r, _ := newSinglePeakRegion(t)
	x := r.Variables()
	assert.GreaterOrEqual(t, r.ChiSq(x), 0.0)
}

func TestChiSqGradientMatchesCentralDifference(t *testing.T) {
	r, _ := newSinglePeakRegion(t)
	x := r.Variables()
	n := len(x)
	grad := make([]float64, n)
	r.ChiSqGradient(x, grad)

	const h = 1e-5
	for i := 0; i < n; i++ {
		xp := append([]float64{}, x...)
		xm := append([]float64{}, x...)
		xp[i] += h
		xm[i] -= h
		numeric := (r.ChiSq(xp) - r.ChiSq(xm)) / (2 * h)
		assert.InDeltaf(t, numeric, grad[i], 1e-2, "index %d", i)
	}
}

func TestDisabledSkewHasNoIndexFootprint(t *testing.T) {
	_, p := newSinglePeakRegion(t)
	assert.False(t, p.RightTail.Amplitude.HasIndex())
	assert.False(t, p.LongTail.Amplitude.HasIndex())
	assert.False(t, p.Step.Amplitude.HasIndex())
}

func TestSharedWidthMirrorsDefault(t *testing.T) {
	channels, counts, weights := syntheticWindow(100, 50, 500, 1.5, 5)
	bg := *hypermet.NewPolyBackground(50)

	p1 := hypermet.NewPeak(0, 99, 40, 300)
	p1.Position.ToFit = true
	p1.Amplitude.ToFit = true
	// WidthOverride left false: shares the Region default width.

	p2 := hypermet.NewPeak(0, 99, 60, 300)
	p2.Position.ToFit = true
	p2.Amplitude.ToFit = true

	r, err := New(channels, counts, weights, bg, []hypermet.Peak{*p1, *p2})
	require.NoError(t, err)

	assert.True(t, r.Defaults.Width.HasIndex())
	peaks := r.Peaks()
	assert.Equal(t, r.Defaults.Width.Index(), peaks[0].Width.Index())
	assert.Equal(t, r.Defaults.Width.Index(), peaks[1].Width.Index())
}

func TestSaneRejectsPositionOutsideWindow(t *testing.T) {
	r, p := newSinglePeakRegion(t)
	x := r.Variables()
	assert.True(t, r.Sane(x))

	p.Position.SetValue(200)
	x2 := r.Variables()
	assert.False(t, r.Sane(x2))
}

func TestPerturbChangesVariables(t *testing.T) {
	r, _ := newSinglePeakRegion(t)
	before := r.Variables()
	rng := rand.New(rand.NewSource(7))
	assert.True(t, r.Perturb(rng))
	after := r.Variables()
	assert.NotEqual(t, before, after)
}

func TestDegreesOfFreedomPositive(t *testing.T) {
	r, _ := newSinglePeakRegion(t)
	assert.Greater(t, r.DegreesOfFreedom(), 0.0)
}

func TestSUM4AreaApproximatesSyntheticPeak(t *testing.T) {
	_, counts, weights := syntheticWindow(100, 50, 500, 1.5, 5)
	window := make([]Point, len(counts))
	for i := range counts {
		window[i] = Point{Channel: float64(i), Count: counts[i], Weight: weights[i]}
	}
	s := SUM4{
		Left:    SUM4Edge{Min: 20, Max: 30},
		Right:   SUM4Edge{Min: 70, Max: 80},
		PeakMin: 40,
		PeakMax: 60,
	}
	area := s.Area(window)
	assert.Greater(t, area.Value, 0.0)
	assert.Greater(t, area.Sigma, 0.0)
}

func TestRegionJSONRoundTrip(t *testing.T) {
	r, _ := newSinglePeakRegion(t)
	before := r.Variables()

	data, err := r.MarshalJSON()
	require.NoError(t, err)

	var restored Region
	require.NoError(t, restored.UnmarshalJSON(data))

	assert.Equal(t, before, restored.Variables())
	assert.Equal(t, r.PeakCount(), restored.PeakCount())
	assert.Equal(t, r.Width(), restored.Width())
	assert.InDelta(t, r.ChiSq(before), restored.ChiSq(restored.Variables()), 1e-9)
}
