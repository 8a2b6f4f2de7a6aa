package optimize

import (
	"context"
	"errors"
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// discardLogger is the nil-safe fallback used whenever a BFGSOptimizer has
// no Logger of its own and Verbosity silences logging entirely.
var discardLogger = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// verbosityLogger builds a logger whose level reflects Config.Verbosity:
// 0 silences everything, 1 is warnings, 2 adds info, 3+ adds per-iteration
// debug detail.
func verbosityLogger(verbosity int) *logrus.Logger {
	l := logrus.New()
	switch {
	case verbosity <= 0:
		l.SetOutput(io.Discard)
	case verbosity == 1:
		l.SetLevel(logrus.WarnLevel)
	case verbosity == 2:
		l.SetLevel(logrus.InfoLevel)
	default:
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// BFGSOptimizer drives Fittable to a local chi-square minimum using a
// quasi-Newton inverse-Hessian update and a Brent-with-derivative line
// search, retrying with a finite-difference gradient and perturbing the
// Fittable's own state on repeated non-convergence. Logger is optional: a
// nil Logger falls back to a level derived from Config.Verbosity.
type BFGSOptimizer struct {
	Config Config
	Logger *logrus.Logger
}

// NewBFGSOptimizer builds an optimizer, filling zero-valued numeric Config
// fields with DefaultConfig's values (see Config) and attaching a default
// logger sized to Config.Verbosity.
func NewBFGSOptimizer(cfg Config) *BFGSOptimizer {
	cfg = cfg.withDefaults()
	return &BFGSOptimizer{Config: cfg, Logger: verbosityLogger(cfg.Verbosity)}
}

func (o *BFGSOptimizer) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	if o.Config.Verbosity <= 0 {
		return discardLogger
	}
	return verbosityLogger(o.Config.Verbosity)
}

// Minimize runs the perturbation-retry outer loop around solve: each
// attempt runs BFGS to local convergence (optionally retrying once with a
// finite-difference gradient under DefaultToFinite), checks Sane, and
// perturbs the Fittable's own state before trying again if the result is
// non-convergent or insane. ctx cancellation is checked between line
// search steps and between attempts.
func (o *BFGSOptimizer) Minimize(ctx context.Context, f Fittable, rng *rand.Rand) (*FitResult, error) {
	result := &FitResult{}
	log := o.logger()

	n := f.VariableCount()
	if n <= 0 {
		return nil, errors.New("optimize: fittable has no free variables")
	}
	if f.DegreesOfFreedom() <= 0 {
		return nil, errors.New("optimize: fittable has non-positive degrees of freedom")
	}

	perturbations := 0
	var lastConditionFailed bool
	for {
		if cancelled(ctx) {
			result.ErrorMessage = "Externally interrupted"
			result.logf("context cancelled before first attempt")
			log.Warn("fit cancelled before first attempt")
			return result, ctx.Err()
		}

		useFinite := o.Config.GradientSelection == FiniteAlways
		x := append([]float64{}, f.Variables()...)

		if !useFinite && o.Config.UseEpsilonCheck && !CheckGradient(f, x) {
			result.logf("analytic gradient failed epsilon check, using finite differences for this attempt")
			log.Debug("analytic gradient failed epsilon check, switching to finite differences")
			useFinite = true
		}

		sr := o.solve(ctx, f, x, useFinite)
		result.Iterations += sr.iterations
		lastConditionFailed = sr.conditionFailed

		if sr.cancelled || cancelled(ctx) {
			result.Variables = sr.x
			result.Value = sr.value
			result.ErrorMessage = "Externally interrupted"
			result.logf("context cancelled mid-attempt after %d iterations", sr.iterations)
			log.Warn("fit cancelled mid-attempt")
			return result, ctx.Err()
		}

		if sr.conditionFailed {
			result.logf("inverse-Hessian condition number exceeded MaxCondition after %d iterations", sr.iterations)
			log.Warn("inverse-Hessian condition number exceeded MaxCondition")
		}

		if !sr.converged && o.Config.GradientSelection == DefaultToFinite && !useFinite {
			result.logf("analytic gradient did not converge, retrying with finite differences")
			log.Debug("analytic gradient did not converge, retrying with finite differences")
			x2 := append([]float64{}, f.Variables()...)
			sr2 := o.solve(ctx, f, x2, true)
			result.Iterations += sr2.iterations
			if sr2.cancelled {
				result.Variables = sr2.x
				result.Value = sr2.value
				result.ErrorMessage = "Externally interrupted"
				return result, ctx.Err()
			}
			if sr2.converged {
				sr = sr2
				useFinite = true
			}
			lastConditionFailed = sr.conditionFailed
		}

		sane := !o.Config.PerformSanityChecks || f.Sane(sr.x)
		if sr.converged && sane {
			result.Variables = sr.x
			result.InvHessian = sr.invHessian
			result.Value = sr.value
			result.Converged = true
			result.UsedFiniteGrads = useFinite
			result.TotalPerturbations = perturbations
			result.logf("converged: value=%g iterations=%d perturbations=%d finite=%v", sr.value, result.Iterations, perturbations, useFinite)
			log.WithFields(logrus.Fields{
				"value":         sr.value,
				"iterations":    result.Iterations,
				"perturbations": perturbations,
				"finite":        useFinite,
			}).Info("fit converged")
			f.SaveFit(result)
			return result, nil
		}

		if sr.converged {
			result.logf("converged but failed sanity check, perturbing")
			log.Warn("converged but failed sanity check, perturbing")
		} else {
			result.logf("did not converge within %d iterations, perturbing", o.Config.MaxIterations)
			log.Debug("did not converge, perturbing")
		}

		perturbations++
		result.TotalPerturbations = perturbations
		if perturbations > o.Config.MaxPerturbations {
			if lastConditionFailed {
				result.ErrorMessage = "exceeded maximum perturbations: inverse-Hessian condition number repeatedly exceeded MaxCondition"
			} else {
				result.ErrorMessage = "exceeded maximum perturbations without a sane convergent fit"
			}
			log.WithError(errors.New(result.ErrorMessage)).Error("giving up")
			return result, errors.New(result.ErrorMessage)
		}
		if !f.Perturb(rng) {
			result.ErrorMessage = "fittable declined to perturb further"
			log.Warn(result.ErrorMessage)
			return result, errors.New(result.ErrorMessage)
		}
	}
}

type solveResult struct {
	converged       bool
	conditionFailed bool
	cancelled       bool
	iterations      int
	x               []float64
	invHessian      *mat.Dense
	value           float64
}

// solve runs the BFGS inverse-Hessian loop from x (in place) until
// convergence, a numerical-degenerate condition failure, MaxIterations, or
// cancellation. Each iteration follows the reference algorithm: derive a
// descent direction (resetting to steepest-descent if it is not a descent
// direction or contains non-finites), line-search along it, update the
// inverse-Hessian via the rank-2 BFGS formula, then check Δx/Δf/‖g‖∞ stop
// criteria and the Hessian's diagonal condition number before committing
// the step.
func (o *BFGSOptimizer) solve(ctx context.Context, f Fittable, x []float64, useFinite bool) solveResult {
	const eps = 1e-12
	cfg := o.Config
	n := len(x)
	log := o.logger()

	invH := identity(n)
	grad := make([]float64, n)
	var fp float64
	if useFinite {
		fp = o.finiteGradient(f, x, grad)
	} else {
		fp = f.ChiSqGradient(x, grad)
	}

	dir := make([]float64, n)
	resetDirection(dir, grad)

	iterations := 0
	converged := false
	conditionFailed := false
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		iterations++
		if cancelled(ctx) {
			return solveResult{cancelled: true, iterations: iterations, x: x, invHessian: invH, value: fp}
		}

		if floats.Dot(grad, dir) >= 0 || !finiteVector(dir) {
			invH = identity(n)
			resetDirection(dir, grad)
		}

		xOld := append([]float64{}, x...)
		fret, exhausted := o.linMinStep(f, x, dir, cfg)
		if exhausted {
			log.Debug("line search exhausted its iteration budget, continuing with best-so-far point")
		}
		deltaX := floats.Distance(x, xOld, 2)

		gradNew := make([]float64, n)
		if useFinite {
			o.finiteGradient(f, x, gradNew)
		} else {
			f.ChiSqGradient(x, gradNew)
		}

		y := make([]float64, n)
		floats.SubTo(y, gradNew, grad)

		s := dir // linMinStep rewrote dir in place to hold the actual displacement
		ys := floats.Dot(y, s)
		rho := 0.0
		if math.Abs(ys) > eps {
			rho = 1 / ys
		}
		hy := make([]float64, n)
		mulMatVec(invH, y, hy)
		yhy := floats.Dot(y, hy)

		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := invH.At(i, j) - rho*(s[i]*hy[j]+hy[i]*s[j]) + rho*(rho*yhy+1)*s[i]*s[j]
				invH.Set(i, j, v)
			}
		}

		deltaF := fret - fp
		gNormInf := floats.Norm(gradNew, math.Inf(1))
		relConverged := 2*math.Abs(deltaF) <= cfg.Tolerance*(math.Abs(fret)+math.Abs(fp)+eps)
		if relConverged || deltaX <= cfg.MinXDelta || math.Abs(deltaF) <= cfg.MinFDelta || gNormInf <= cfg.MinGNorm {
			fp = fret
			grad = gradNew
			converged = true
			break
		}

		minDiag, maxDiag := diagRange(invH)
		condition := maxDiag / minDiag
		if math.IsNaN(condition) || math.IsInf(condition, 0) || condition > cfg.MaxCondition {
			fp = fret
			grad = gradNew
			conditionFailed = true
			break
		}

		fp = fret
		grad = gradNew

		next := make([]float64, n)
		mulMatVec(invH, grad, next)
		for i := range next {
			dir[i] = -next[i]
		}

		if iter%20 == 0 {
			log.WithFields(logrus.Fields{"iteration": iterations, "value": fp}).Debug("bfgs iteration")
		}
	}

	return solveResult{converged: converged, conditionFailed: conditionFailed, iterations: iterations, x: x, invHessian: invH, value: fp}
}

// resetDirection sets dir to the steepest-descent direction -grad.
func resetDirection(dir, grad []float64) {
	for i := range dir {
		dir[i] = -grad[i]
	}
}

// finiteVector reports whether every element of v is finite.
func finiteVector(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// mulMatVec computes out = m*v for a square m.
func mulMatVec(m *mat.Dense, v, out []float64) {
	n := len(v)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += m.At(i, j) * v[j]
		}
		out[i] = sum
	}
}

// diagRange returns the min and max of m's diagonal.
func diagRange(m *mat.Dense) (min, max float64) {
	n, _ := m.Dims()
	min, max = math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		d := m.At(i, i)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

// linMinStep performs a full line minimization from x along dir, moving x
// in place to the new point and rewriting dir in place to hold the actual
// displacement taken (as dfpmin-style BFGS loops expect), returning the
// objective value at the new point and whether the line search exhausted
// its iteration budget without its own convergence test firing.
func (o *BFGSOptimizer) linMinStep(f Fittable, x, dir []float64, cfg Config) (float64, bool) {
	x0 := append([]float64{}, x...)
	fmin, exhausted := linMin(f, x0, dir, cfg, x)
	for i := range dir {
		dir[i] = x[i] - x0[i]
	}
	return fmin, exhausted
}

// finiteGradient fills grad with central-difference derivatives and
// returns the objective value at x.
func (o *BFGSOptimizer) finiteGradient(f Fittable, x, grad []float64) float64 {
	h := o.Config.FiniteDiffStep
	base := f.ChiSq(x)
	xt := append([]float64{}, x...)
	for i := range x {
		orig := xt[i]
		xt[i] = orig + h
		fp := f.ChiSq(xt)
		xt[i] = orig - h
		fm := f.ChiSq(xt)
		xt[i] = orig
		grad[i] = (fp - fm) / (2 * h)
	}
	return base
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
