package hypermet

import "github.com/bcdannyboy/hypermet/param"

// PolyBackground is a quadratic baseline anchored at XOffset:
//
//	B(chan) = Base + Slope*delta + Curve*delta^2, delta = chan - XOffset
type PolyBackground struct {
	Base     *param.Parameter
	Slope    *param.Parameter
	Curve    *param.Parameter
	XOffset  float64
	CurveSet bool // false keeps Curve fixed at 0 and out of the fit
}

// NewPolyBackground builds a background with unbounded coefficients.
func NewPolyBackground(xOffset float64) *PolyBackground {
	return &PolyBackground{
		Base:    param.New(param.Unbounded{}, 0),
		Slope:   param.New(param.Unbounded{}, 0),
		Curve:   param.New(param.Unbounded{}, 0),
		XOffset: xOffset,
	}
}

func (b *PolyBackground) delta(channel float64) float64 { return channel - b.XOffset }

// Eval returns the background value at a channel using cached x.
func (b *PolyBackground) Eval(channel float64) float64 {
	d := b.delta(channel)
	return b.Base.Val() + b.Slope.Val()*d + b.Curve.Val()*d*d
}

// EvalAt is the stateless variant reading coefficients from vec.
func (b *PolyBackground) EvalAt(channel float64, vec []float64) float64 {
	d := b.delta(channel)
	return b.Base.ValFrom(vec) + b.Slope.ValFrom(vec)*d + b.Curve.ValFrom(vec)*d*d
}

// EvalGrad accumulates d(background)/d(x) into grads at each enabled
// coefficient's index and returns the background value.
func (b *PolyBackground) EvalGrad(channel float64, grads []float64) float64 {
	d := b.delta(channel)
	value := b.Base.Val() + b.Slope.Val()*d + b.Curve.Val()*d*d
	if b.Base.HasIndex() {
		grads[b.Base.Index()] += b.Base.Grad()
	}
	if b.Slope.HasIndex() {
		grads[b.Slope.Index()] += b.Slope.Grad() * d
	}
	if b.Curve.HasIndex() {
		grads[b.Curve.Index()] += b.Curve.Grad() * d * d
	}
	return value
}

// EvalGradAt is the stateless variant for use inside the optimizer's
// objective.
func (b *PolyBackground) EvalGradAt(channel float64, vec []float64, grads []float64) float64 {
	d := b.delta(channel)
	value := b.Base.ValFrom(vec) + b.Slope.ValFrom(vec)*d + b.Curve.ValFrom(vec)*d*d
	if b.Base.HasIndex() {
		grads[b.Base.Index()] += b.Base.GradFrom(vec)
	}
	if b.Slope.HasIndex() {
		grads[b.Slope.Index()] += b.Slope.GradFrom(vec) * d
	}
	if b.Curve.HasIndex() {
		grads[b.Curve.Index()] += b.Curve.GradFrom(vec) * d * d
	}
	return value
}

// UpdateIndices assigns base, slope, and (if enabled) curve indices in
// that order.
func (b *PolyBackground) UpdateIndices(counter *int) error {
	if err := b.Base.UpdateIndex(counter); err != nil {
		return err
	}
	if err := b.Slope.UpdateIndex(counter); err != nil {
		return err
	}
	if !b.CurveSet {
		b.Curve.ToFit = false
	}
	return b.Curve.UpdateIndex(counter)
}

// Put writes every coefficient's cached x into vec.
func (b *PolyBackground) Put(vec []float64) {
	b.Base.Put(vec)
	b.Slope.Put(vec)
	b.Curve.Put(vec)
}

// Get reads every coefficient's x back from vec.
func (b *PolyBackground) Get(vec []float64) {
	b.Base.Get(vec)
	b.Slope.Get(vec)
	b.Curve.Get(vec)
}
