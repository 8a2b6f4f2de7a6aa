// Package calibration provides the channel-to-energy mapping external to
// the fitting core: a low-order polynomial plus a least-squares fit
// against calibration points, consumed by callers that need physical
// units (energy, FWHM-vs-energy) rather than raw channel numbers.
package calibration

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

// Polynomial transforms channel to energy as
// coeffs[0] + coeffs[1]*chan + coeffs[2]*chan^2 + ...
type Polynomial struct {
	Coeffs []float64
}

// Transform evaluates the polynomial at a channel via Horner's method.
func (p Polynomial) Transform(channel float64) float64 {
	result := 0.0
	for i := len(p.Coeffs) - 1; i >= 0; i-- {
		result = result*channel + p.Coeffs[i]
	}
	return result
}

// Derivative evaluates d(energy)/d(channel) at a channel.
func (p Polynomial) Derivative(channel float64) float64 {
	if len(p.Coeffs) < 2 {
		return 0
	}
	result := 0.0
	for i := len(p.Coeffs) - 1; i >= 1; i-- {
		result = result*channel + p.Coeffs[i]*float64(i)
	}
	return result
}

// Point is one (channel, energy) calibration anchor, e.g. a known isotope
// line identified by a peak finder.
type Point struct {
	Channel float64
	Energy  float64
}

// FitPolynomial fits a degree-th order Polynomial to points by
// unconstrained least squares, minimized with Nelder-Mead (the surface is
// smooth but the problem is small enough that a derivative-free method is
// simpler than hand-rolling normal equations for every degree).
func FitPolynomial(points []Point, degree int) (Polynomial, error) {
	if degree < 0 {
		return Polynomial{}, errors.New("calibration: degree must be >= 0")
	}
	if len(points) < degree+1 {
		return Polynomial{}, fmt.Errorf("calibration: need at least %d points for degree %d, got %d", degree+1, degree, len(points))
	}

	residual := func(coeffs []float64) float64 {
		poly := Polynomial{Coeffs: coeffs}
		sum := 0.0
		for _, pt := range points {
			d := poly.Transform(pt.Channel) - pt.Energy
			sum += d * d
		}
		return sum
	}

	init := make([]float64, degree+1)
	if len(points) > 0 {
		init[0] = points[0].Energy
	}
	if degree >= 1 && points[len(points)-1].Channel != points[0].Channel {
		init[1] = (points[len(points)-1].Energy - points[0].Energy) / (points[len(points)-1].Channel - points[0].Channel)
	}

	problem := optimize.Problem{Func: residual}
	result, err := optimize.Minimize(problem, init, nil, &optimize.NelderMead{})
	if err != nil {
		return Polynomial{}, fmt.Errorf("calibration: fit failed: %w", err)
	}

	return Polynomial{Coeffs: result.X}, nil
}
