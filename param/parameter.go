package param

import (
	"errors"
	"math"
)

// UnassignedIndex marks a Parameter that does not currently own a slot in
// the optimizer's variable vector.
const UnassignedIndex = -1

// Parameter is a scalar fit variable: x is what the optimizer sees, Value
// is what the physics sees, related by Transform.
type Parameter struct {
	Transform Transform
	ToFit     bool

	x      float64
	index  int
	uncert float64
}

// New builds a Parameter at the given initial value under transform t.
func New(t Transform, initialValue float64) *Parameter {
	p := &Parameter{Transform: t, index: UnassignedIndex}
	p.SetValue(initialValue)
	return p
}

// UpdateIndex assigns the next free slot if ToFit, else marks the
// Parameter unassigned. A negative counter is rejected with an error.
func (p *Parameter) UpdateIndex(counter *int) error {
	if *counter < 0 {
		return errNegativeCounter
	}
	if p.ToFit {
		p.index = *counter
		*counter++
	} else {
		p.index = UnassignedIndex
	}
	return nil
}

// Index reports the current slot, or UnassignedIndex.
func (p *Parameter) Index() int { return p.index }

// ShareIndex adopts another Parameter's slot directly, without going
// through UpdateIndex. This is how a Peak mirrors a Region default: the
// peer reads and writes the same vector slot as the default it shares,
// rather than aliasing the default's Parameter value itself.
func (p *Parameter) ShareIndex(index int) { p.index = index }

// HasIndex reports whether the Parameter currently owns a slot.
func (p *Parameter) HasIndex() bool { return p.index > UnassignedIndex }

// X returns the cached unconstrained coordinate.
func (p *Parameter) X() float64 { return p.x }

// Val evaluates the transform at the cached x.
func (p *Parameter) Val() float64 { return p.Transform.Value(p.x) }

// Grad evaluates d(value)/d(x) at the cached x.
func (p *Parameter) Grad() float64 { return p.Transform.Grad(p.x) }

// ValFrom evaluates the transform at vec[index] without mutating state; if
// unindexed, it falls back to the cached value.
func (p *Parameter) ValFrom(vec []float64) float64 {
	if p.HasIndex() {
		return p.Transform.Value(vec[p.index])
	}
	return p.Val()
}

// GradFrom evaluates the gradient at vec[index] without mutating state; if
// unindexed, it falls back to the cached gradient.
func (p *Parameter) GradFrom(vec []float64) float64 {
	if p.HasIndex() {
		return p.Transform.Grad(vec[p.index])
	}
	return p.Grad()
}

// Put writes the cached x into vec at this Parameter's index, if assigned.
func (p *Parameter) Put(vec []float64) {
	if p.HasIndex() {
		vec[p.index] = p.x
	}
}

// Get reads vec at this Parameter's index back into the cached x, if
// assigned.
func (p *Parameter) Get(vec []float64) {
	if p.HasIndex() {
		p.x = vec[p.index]
	}
}

// SetX overwrites the cached unconstrained coordinate directly.
func (p *Parameter) SetX(x float64) { p.x = x }

// SetValue inverts the transform to set the cached x from a target value;
// bounded transforms clamp out-of-range targets via their own Invert.
func (p *Parameter) SetValue(value float64) {
	p.x = p.Transform.Invert(value)
}

// Uncert returns the 1-sigma uncertainty last computed by GetUncert.
func (p *Parameter) Uncert() float64 { return p.uncert }

// GetUncert derives sigma = sqrt(|diag * grad^2 * chiSqNorm|) from the
// inverse-Hessian diagonal entry at this Parameter's index.
func (p *Parameter) GetUncert(diag []float64, chiSqNorm float64) {
	if !p.HasIndex() {
		return
	}
	g := p.Grad()
	p.uncert = math.Sqrt(math.Abs(diag[p.index] * g * g * chiSqNorm))
}

var errNegativeCounter = errors.New("param: variable index counter must not be negative")
