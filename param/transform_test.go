package param

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleXs() []float64 {
	const n = 33
	xs := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = -4*math.Pi + float64(i)*(8*math.Pi)/float64(n-1)
	}
	return xs
}

func TestPositiveNeverNegative(t *testing.T) {
	tr := Positive{}
	for _, x := range sampleXs() {
		assert.GreaterOrEqual(t, tr.Value(x), 0.0)
	}
}

func TestSineBoundedStaysInBounds(t *testing.T) {
	tr := SineBounded{Min: 2, Max: 9}
	for _, x := range sampleXs() {
		v := tr.Value(x)
		assert.GreaterOrEqual(t, v, tr.Min)
		assert.LessOrEqual(t, v, tr.Max)
	}
}

func TestSineBoundedBijective(t *testing.T) {
	tr := SineBounded{Min: -5, Max: 12}
	for _, v := range []float64{-4.999, -3, -1, 0, 0.5, 5, 11.5, 11.999} {
		x := tr.Invert(v)
		got := tr.Value(x)
		require.InDelta(t, v, got, 1e-12)
	}
}

func TestArcTanBoundedBijective(t *testing.T) {
	tr := ArcTanBounded{Min: 1, Max: 3, Slope: 0.7}
	for _, v := range []float64{1.01, 1.5, 2.0, 2.5, 2.99} {
		x := tr.Invert(v)
		got := tr.Value(x)
		require.InDelta(t, v, got, 1e-9)
	}
}

func centralDiffGrad(tr Transform, x, h float64) float64 {
	return (tr.Value(x+h) - tr.Value(x-h)) / (2 * h)
}

func TestGradMatchesCentralDifference(t *testing.T) {
	const h = 1e-4
	transforms := map[string]Transform{
		"unbounded":     Unbounded{},
		"positive":      Positive{},
		"gam":           Gam{},
		"sine_bounded":  SineBounded{Min: -3, Max: 8},
		"arctan_bounded": ArcTanBounded{Min: -2, Max: 4, Slope: 1.3},
	}
	for name, tr := range transforms {
		t.Run(name, func(t *testing.T) {
			for _, x := range sampleXs() {
				analytic := tr.Grad(x)
				numeric := centralDiffGrad(tr, x, h)
				denom := math.Max(1, math.Abs(analytic))
				rel := math.Abs(analytic-numeric) / denom
				assert.Lessf(t, rel, 1e-5, "x=%v analytic=%v numeric=%v", x, analytic, numeric)
			}
		})
	}
}

func TestUpdateIndexAssignsContiguousSlots(t *testing.T) {
	a := New(Unbounded{}, 1)
	b := New(Positive{}, 2)
	a.ToFit = true
	b.ToFit = false

	counter := 0
	require.NoError(t, a.UpdateIndex(&counter))
	require.NoError(t, b.UpdateIndex(&counter))

	assert.Equal(t, 0, a.Index())
	assert.Equal(t, UnassignedIndex, b.Index())
	assert.Equal(t, 1, counter)
}

func TestUpdateIndexRejectsNegativeCounter(t *testing.T) {
	p := New(Unbounded{}, 0)
	p.ToFit = true
	counter := -1
	require.Error(t, p.UpdateIndex(&counter))
}

func TestPutGetRoundTrip(t *testing.T) {
	p := New(Positive{}, 4)
	p.ToFit = true
	counter := 0
	require.NoError(t, p.UpdateIndex(&counter))

	vec := make([]float64, 1)
	p.Put(vec)
	assert.Equal(t, p.X(), vec[0])

	vec[0] = 9
	p.Get(vec)
	assert.Equal(t, 9.0, p.X())
}

func TestDisabledParameterUntouchedByPutGet(t *testing.T) {
	p := New(Unbounded{}, 5)
	p.ToFit = false
	counter := 0
	require.NoError(t, p.UpdateIndex(&counter))
	assert.Equal(t, UnassignedIndex, p.Index())

	vec := []float64{42}
	p.Put(vec)
	assert.Equal(t, 42.0, vec[0])

	before := p.X()
	p.Get(vec)
	assert.Equal(t, before, p.X())
}
