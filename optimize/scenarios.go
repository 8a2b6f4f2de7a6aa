package optimize

import (
	"golang.org/x/exp/rand"

	"github.com/bcdannyboy/hypermet/param"
)

// Constant is the simplest synthetic Fittable: one SineBounded scalar
// fit against a flat synthetic window, used to exercise the optimizer
// plumbing end to end without any Hypermet domain complexity.
type Constant struct {
	Value  *param.Parameter
	Target []float64
}

// NewConstant builds an n-bin window at level target, with the single fit
// variable bounded to [boundMin, boundMax] and starting at initial.
func NewConstant(n int, target, boundMin, boundMax, initial float64) *Constant {
	window := make([]float64, n)
	for i := range window {
		window[i] = target
	}
	c := &Constant{
		Value:  param.New(param.SineBounded{Min: boundMin, Max: boundMax}, initial),
		Target: window,
	}
	c.Value.ToFit = true
	counter := 0
	c.Value.UpdateIndex(&counter)
	return c
}

func (c *Constant) Variables() []float64 {
	vec := make([]float64, 1)
	c.Value.Put(vec)
	return vec
}
func (c *Constant) VariableCount() int { return 1 }

func (c *Constant) ChiSq(x []float64) float64 {
	v := c.Value.ValFrom(x)
	sum := 0.0
	for _, y := range c.Target {
		d := y - v
		sum += d * d
	}
	return sum
}

func (c *Constant) ChiSqGradient(x, grad []float64) float64 {
	v := c.Value.ValFrom(x)
	dvdx := c.Value.GradFrom(x)
	sum, deriv := 0.0, 0.0
	for _, y := range c.Target {
		d := y - v
		sum += d * d
		deriv += -2 * d
	}
	grad[0] = deriv * dvdx
	return sum
}

func (c *Constant) SaveFit(result *FitResult) { c.Value.Get(result.Variables) }
func (c *Constant) Sane(x []float64) bool      { return true }
func (c *Constant) Perturb(rng *rand.Rand) bool {
	c.Value.SetX(c.Value.X() + rng.NormFloat64())
	return true
}
func (c *Constant) DegreesOfFreedom() float64 { return float64(len(c.Target) - 1) }

// Linear fits a single SineBounded slope against a synthetic window whose
// target grows linearly with channel index: target[i] = coeff*i.
type Linear struct {
	Slope  *param.Parameter
	Target []float64
}

// NewLinear builds an n-bin window with target[i] = coeff*i, the free
// slope bounded to [boundMin, boundMax] and starting at initial.
func NewLinear(n int, coeff, boundMin, boundMax, initial float64) *Linear {
	target := make([]float64, n)
	for i := range target {
		target[i] = coeff * float64(i)
	}
	l := &Linear{
		Slope:  param.New(param.SineBounded{Min: boundMin, Max: boundMax}, initial),
		Target: target,
	}
	l.Slope.ToFit = true
	counter := 0
	l.Slope.UpdateIndex(&counter)
	return l
}

func (l *Linear) Variables() []float64 {
	vec := make([]float64, 1)
	l.Slope.Put(vec)
	return vec
}
func (l *Linear) VariableCount() int { return 1 }

func (l *Linear) ChiSq(x []float64) float64 {
	slope := l.Slope.ValFrom(x)
	sum := 0.0
	for i, y := range l.Target {
		d := y - slope*float64(i)
		sum += d * d
	}
	return sum
}

func (l *Linear) ChiSqGradient(x, grad []float64) float64 {
	slope := l.Slope.ValFrom(x)
	dvdx := l.Slope.GradFrom(x)
	sum, deriv := 0.0, 0.0
	for i, y := range l.Target {
		chan_ := float64(i)
		d := y - slope*chan_
		sum += d * d
		deriv += -2 * d * chan_
	}
	grad[0] = deriv * dvdx
	return sum
}

func (l *Linear) SaveFit(result *FitResult) { l.Slope.Get(result.Variables) }
func (l *Linear) Sane(x []float64) bool      { return true }
func (l *Linear) Perturb(rng *rand.Rand) bool {
	l.Slope.SetX(l.Slope.X() + rng.NormFloat64())
	return true
}
func (l *Linear) DegreesOfFreedom() float64 { return float64(len(l.Target) - 1) }

// Quadratic is a sum-of-squares bowl, f(x) = sum((x_i - Targets_i)^2), for
// exercising the BFGS/line-search plumbing on an unconstrained, separable
// surface.
type Quadratic struct {
	Targets []float64
	x       []float64
}

// NewQuadratic starts three units away from the target in every
// dimension.
func NewQuadratic(targets []float64) *Quadratic {
	start := make([]float64, len(targets))
	for i := range start {
		start[i] = targets[i] + 3
	}
	return &Quadratic{Targets: targets, x: start}
}

func (q *Quadratic) Variables() []float64 { return append([]float64{}, q.x...) }
func (q *Quadratic) VariableCount() int   { return len(q.Targets) }

func (q *Quadratic) ChiSq(x []float64) float64 {
	sum := 0.0
	for i, v := range x {
		d := v - q.Targets[i]
		sum += d * d
	}
	return sum
}

func (q *Quadratic) ChiSqGradient(x, grad []float64) float64 {
	for i, v := range x {
		grad[i] = 2 * (v - q.Targets[i])
	}
	return q.ChiSq(x)
}

func (q *Quadratic) SaveFit(r *FitResult)  { q.x = append([]float64{}, r.Variables...) }
func (q *Quadratic) Sane(x []float64) bool { return true }
func (q *Quadratic) Perturb(rng *rand.Rand) bool {
	for i := range q.x {
		q.x[i] += rng.NormFloat64()
	}
	return true
}
func (q *Quadratic) DegreesOfFreedom() float64 { return float64(len(q.Targets) + 1) }

// Rosenbrock is the standard banana-shaped valley, a harder nonconvex
// test of the line search and Hessian update.
type Rosenbrock struct {
	N int
	x []float64
}

// NewRosenbrock starts from the classic alternating (-1.2, 1, -1.2, 1...)
// point.
func NewRosenbrock(n int) *Rosenbrock {
	x := make([]float64, n)
	for i := range x {
		x[i] = -1.2
		if i%2 == 1 {
			x[i] = 1.0
		}
	}
	return &Rosenbrock{N: n, x: x}
}

// NewRosenbrockAtZero starts from the origin, the harder start spec.md
// §8 scenario 5 asks for.
func NewRosenbrockAtZero(n int) *Rosenbrock {
	return &Rosenbrock{N: n, x: make([]float64, n)}
}

func (r *Rosenbrock) Variables() []float64 { return append([]float64{}, r.x...) }
func (r *Rosenbrock) VariableCount() int   { return r.N }

func (r *Rosenbrock) ChiSq(x []float64) float64 {
	sum := 0.0
	for i := 0; i < r.N-1; i++ {
		t1 := x[i+1] - x[i]*x[i]
		t2 := 1 - x[i]
		sum += 100*t1*t1 + t2*t2
	}
	return sum
}

func (r *Rosenbrock) ChiSqGradient(x, grad []float64) float64 {
	for i := range grad {
		grad[i] = 0
	}
	for i := 0; i < r.N-1; i++ {
		t1 := x[i+1] - x[i]*x[i]
		grad[i] += -400*x[i]*t1 - 2*(1-x[i])
		grad[i+1] += 200 * t1
	}
	return r.ChiSq(x)
}

func (r *Rosenbrock) SaveFit(res *FitResult) { r.x = append([]float64{}, res.Variables...) }
func (r *Rosenbrock) Sane(x []float64) bool  { return true }
func (r *Rosenbrock) Perturb(rng *rand.Rand) bool {
	for i := range r.x {
		r.x[i] += 0.1 * rng.NormFloat64()
	}
	return true
}
func (r *Rosenbrock) DegreesOfFreedom() float64 { return float64(r.N + 1) }
