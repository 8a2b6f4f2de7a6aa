// Package optimize implements a hand-rolled BFGS quasi-Newton solver with
// a Brent-with-derivative line search, perturbation-on-failure retries,
// and an optional finite-difference gradient fallback. Unlike the
// calibration package's use of gonum/optimize, the core solver here is
// deliberately not delegated to a library: the objective (region.Region)
// supplies analytic gradients and the convergence/perturbation machinery
// mirrors a specific reference optimizer closely enough that reusing a
// generic library solver would lose the properties this package tests
// for (bounded perturbation counts, finite-gradient retry accounting).
package optimize

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Fittable is the objective contract the optimizer drives. Implementations
// own their own parameter vector layout; the optimizer only ever sees a
// flat []float64 of unconstrained x values.
type Fittable interface {
	// Variables returns the current unconstrained x vector (length
	// VariableCount()), used as the optimizer's starting point.
	Variables() []float64
	VariableCount() int

	// ChiSq evaluates the objective at x.
	ChiSq(x []float64) float64
	// ChiSqGradient evaluates the objective and writes its gradient into
	// grad (which has length VariableCount()), returning the objective
	// value.
	ChiSqGradient(x []float64, grad []float64) float64

	// SaveFit is called once with the final result, so the Fittable can
	// write variable values/uncertainties back into its own model.
	SaveFit(result *FitResult)

	// Sane reports whether x is physically plausible (finite positive
	// widths/amplitudes, positions inside the window, etc). A false
	// result after convergence triggers a perturbation retry rather than
	// reporting false convergence.
	Sane(x []float64) bool

	// Perturb randomly jitters the Fittable's own state in place (used
	// between optimizer attempts after a non-convergent or insane
	// result) and reports whether it changed anything.
	Perturb(rng *rand.Rand) bool

	// DegreesOfFreedom is variable-count-adjusted sample size, used for
	// uncertainty scaling; zero or negative aborts the fit.
	DegreesOfFreedom() float64
}

// GradientSelection controls whether ChiSqGradient's analytic gradient is
// trusted, ignored in favor of finite differences, or used first with a
// finite-difference retry on non-convergence.
type GradientSelection int

const (
	AnalyticAlways GradientSelection = iota
	FiniteAlways
	DefaultToFinite
)

// Config tunes the solver. NewBFGSOptimizer replaces zero-valued numeric
// fields with DefaultConfig's values; GradientSelection, UseEpsilonCheck,
// PerformSanityChecks and Verbosity are used as given. Field names and defaults
// mirror the reference OptimizerConfig's twelve tuning knobs, plus a
// handful of Go-specific line-search constants the reference leaves as
// file-local literals.
type Config struct {
	GradientSelection GradientSelection

	MaxIterations    int
	MaxPerturbations int

	// Tolerance is the relative chi-square-improvement stop threshold
	// of the outer BFGS iteration; the line search uses Epsilon instead.
	Tolerance float64
	// FiniteDiffStep is the central-difference step for finite gradients.
	FiniteDiffStep float64

	// MinXDelta, MinFDelta, and MinGNorm are additional outer-loop stop
	// criteria: the Euclidean step size, the raw objective improvement,
	// and the infinity-norm of the gradient at the new point.
	MinXDelta float64
	MinFDelta float64
	MinGNorm  float64

	// MaxCondition bounds the inverse-Hessian diagonal condition number
	// (max/min); exceeding it (or the ratio going non-finite) ends the
	// current attempt as a numerical-degenerate failure.
	MaxCondition float64

	// UseEpsilonCheck, when true, runs CheckGradient once before trusting
	// an analytic-gradient attempt, falling back to finite differences
	// for that attempt if the check fails.
	UseEpsilonCheck bool
	// Epsilon is the small numerical-tolerance constant used by the line
	// search's own convergence test (tol1 = Epsilon*|x| + 1e-10).
	Epsilon float64

	// PerformSanityChecks gates whether Fittable.Sane is consulted before
	// accepting a converged attempt; disabling it accepts any converged
	// result regardless of physical plausibility.
	PerformSanityChecks bool

	// Verbosity selects the default logger's level when BFGSOptimizer.Logger
	// is left nil: 0 silences logging, 1 warnings only, 2 adds info-level
	// convergence/perturbation messages, 3+ adds per-iteration debug detail.
	Verbosity int

	BracketMaxIterations int
	BrentMaxIterations   int
	BracketGoldenRatio   float64
	BracketGlimit        float64
	BracketTiny          float64
}

// DefaultConfig matches the reference optimizer's tuning constants.
func DefaultConfig() Config {
	return Config{
		GradientSelection:    DefaultToFinite,
		MaxIterations:        200,
		MaxPerturbations:     10,
		Tolerance:            1e-10,
		FiniteDiffStep:       1e-4,
		MinXDelta:            1e-12,
		MinFDelta:            1e-12,
		MinGNorm:             1e-8,
		MaxCondition:         1e12,
		UseEpsilonCheck:      false,
		Epsilon:              1e-8,
		PerformSanityChecks:  true,
		Verbosity:            1,
		BracketMaxIterations: 50,
		BrentMaxIterations:   500,
		BracketGoldenRatio:   1.618034,
		BracketGlimit:        100.0,
		BracketTiny:          1e-20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxPerturbations <= 0 {
		c.MaxPerturbations = d.MaxPerturbations
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.FiniteDiffStep <= 0 {
		c.FiniteDiffStep = d.FiniteDiffStep
	}
	if c.MinXDelta <= 0 {
		c.MinXDelta = d.MinXDelta
	}
	if c.MinFDelta <= 0 {
		c.MinFDelta = d.MinFDelta
	}
	if c.MinGNorm <= 0 {
		c.MinGNorm = d.MinGNorm
	}
	if c.MaxCondition <= 0 {
		c.MaxCondition = d.MaxCondition
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.BracketMaxIterations <= 0 {
		c.BracketMaxIterations = d.BracketMaxIterations
	}
	if c.BrentMaxIterations <= 0 {
		c.BrentMaxIterations = d.BrentMaxIterations
	}
	if c.BracketGoldenRatio <= 0 {
		c.BracketGoldenRatio = d.BracketGoldenRatio
	}
	if c.BracketGlimit <= 0 {
		c.BracketGlimit = d.BracketGlimit
	}
	if c.BracketTiny <= 0 {
		c.BracketTiny = d.BracketTiny
	}
	return c
}

// FitResult is the outcome of Minimize, matching the observable state a
// caller needs: final variables, the inverse-Hessian approximation (for
// per-parameter uncertainty), and diagnostics.
type FitResult struct {
	Variables          []float64
	InvHessian         *mat.Dense
	Iterations         int
	Converged          bool
	Value              float64
	TotalPerturbations int
	UsedFiniteGrads    bool
	ErrorMessage       string
	Log                []string
}

func (r *FitResult) logf(format string, args ...interface{}) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// sign returns -1, 0, or 1.
func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// cancelled reports whether ctx has been cancelled, replacing the
// reference implementation's atomic-bool interrupt poll with idiomatic Go
// cancellation.
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

