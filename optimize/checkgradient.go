package optimize

import "math"

// defaultGradientTolerance is CheckGradient's default relative agreement
// threshold between analytic and central-difference gradients.
const defaultGradientTolerance = 1e-5

// defaultGradientStep is the central-difference step CheckGradient uses
// when probing each free variable.
const defaultGradientStep = 1e-4

// CheckGradient compares f's analytic ChiSqGradient against a central
// difference approximation at x, one free variable at a time, and reports
// whether every component agrees within defaultGradientTolerance. It is
// used to sanity-check an analytic-gradient attempt before trusting it
// (see Config.UseEpsilonCheck) rather than discovering a broken gradient
// only after the optimizer fails to converge.
func CheckGradient(f Fittable, x []float64) bool {
	n := len(x)
	analytic := make([]float64, n)
	f.ChiSqGradient(x, analytic)

	xt := append([]float64{}, x...)
	h := defaultGradientStep
	for i := range xt {
		orig := xt[i]
		xt[i] = orig + h
		fp := f.ChiSq(xt)
		xt[i] = orig - h
		fm := f.ChiSq(xt)
		xt[i] = orig

		numeric := (fp - fm) / (2 * h)
		denom := math.Max(1, math.Abs(analytic[i]))
		if math.Abs(analytic[i]-numeric)/denom > defaultGradientTolerance {
			return false
		}
	}
	return true
}
