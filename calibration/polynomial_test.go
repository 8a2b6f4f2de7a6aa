package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformLinear(t *testing.T) {
	p := Polynomial{Coeffs: []float64{1, 2}}
	assert.InDelta(t, 1.0, p.Transform(0), 1e-12)
	assert.InDelta(t, 11.0, p.Transform(5), 1e-12)
}

func TestDerivativeLinear(t *testing.T) {
	p := Polynomial{Coeffs: []float64{1, 2, 3}}
	assert.InDelta(t, 2+6*4, p.Derivative(4), 1e-9)
}

func TestFitPolynomialRecoversExactLine(t *testing.T) {
	points := []Point{{0, 10}, {100, 210}, {200, 410}, {300, 610}}
	poly, err := FitPolynomial(points, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10, poly.Transform(0), 0.5)
	assert.InDelta(t, 210, poly.Transform(100), 0.5)
}

func TestFitPolynomialRejectsTooFewPoints(t *testing.T) {
	_, err := FitPolynomial([]Point{{0, 1}}, 2)
	require.Error(t, err)
}
