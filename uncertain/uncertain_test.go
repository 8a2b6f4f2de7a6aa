package uncertain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddPropagatesQuadrature(t *testing.T) {
	a := New(3, 0.4)
	b := New(5, 0.3)
	sum := a.Add(b)
	assert.Equal(t, 8.0, sum.Value)
	assert.InDelta(t, math.Sqrt(0.4*0.4+0.3*0.3), sum.Sigma, 1e-12)
}

func TestMulPropagatesFirstOrder(t *testing.T) {
	a := New(2, 0.1)
	b := New(3, 0.2)
	prod := a.Mul(b)
	assert.Equal(t, 6.0, prod.Value)
	want := math.Sqrt(4*0.2*0.2 + 9*0.1*0.1)
	assert.InDelta(t, want, prod.Sigma, 1e-12)
}

func TestDivPropagatesFirstOrder(t *testing.T) {
	a := New(10, 1)
	b := New(2, 0.1)
	q := a.Div(b)
	assert.Equal(t, 5.0, q.Value)
	want := 5 * math.Sqrt((1.0/10)*(1.0/10)+(0.1/2)*(0.1/2))
	assert.InDelta(t, want, q.Sigma, 1e-12)
}

func TestAlmostWithinSigma(t *testing.T) {
	a := New(10, 1)
	b := New(10.5, 0.2)
	assert.True(t, a.Almost(b))
}

func TestAlmostOutsideSigma(t *testing.T) {
	a := New(10, 0.1)
	b := New(20, 0.1)
	assert.False(t, a.Almost(b))
}

func TestAverageEnvelope(t *testing.T) {
	avg := Average([]Double{New(10, 1), New(12, 1)})
	assert.InDelta(t, 11.0, avg.Value, 1e-9)
	assert.InDelta(t, 2.0, avg.Sigma, 1e-9)
}

func TestStringNonFinite(t *testing.T) {
	d := New(math.NaN(), 1)
	assert.Equal(t, "?", d.String())
}

func TestNewTakesAbsSigma(t *testing.T) {
	d := New(1, -2)
	assert.Equal(t, 2.0, d.Sigma)
}
