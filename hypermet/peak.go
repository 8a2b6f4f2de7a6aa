package hypermet

import (
	"math"

	"github.com/bcdannyboy/hypermet/calibration"
	"github.com/bcdannyboy/hypermet/param"
	"github.com/bcdannyboy/hypermet/uncertain"
)

// sqrtLn2 converts a Gaussian sigma to FWHM: FWHM = 2*sqrt(ln 2)*sigma.
var sqrtLn2 = math.Sqrt(math.Ln2)

// Bound ranges for skew components, taken from the reference detector
// response model. These are applied uniformly to every Peak and to the
// Region's default peak, so that override=false sharing (by index) never
// changes a component's transform.
const (
	widthMin, widthMax           = 0.8, 4.0
	shortTailAmpMin, shortTailAmpMax     = 0.02, 1.5
	shortTailSlopeMin, shortTailSlopeMax = 0.2, 0.5
	rightTailAmpMin, rightTailAmpMax     = 0.01, 0.9
	rightTailSlopeMin, rightTailSlopeMax = 0.3, 1.5
	longTailAmpMin, longTailAmpMax       = 0.0001, 0.15
	longTailSlopeMin, longTailSlopeMax   = 2.5, 50
	stepAmpMin, stepAmpMax               = 0.000001, 0.05
)

var sqrtPi = math.Sqrt(math.Pi)

func gaussianValue(pre PrecalcVals) float64 {
	return pre.Ampl * math.Exp(-pre.Spread*pre.Spread)
}

// PeakDefaults holds the Region-wide shared width and skew components that
// a Peak mirrors whenever its own Override flag is false.
type PeakDefaults struct {
	Width     *param.Parameter
	ShortTail Tail
	RightTail Tail
	LongTail  Tail
	Step      Step
}

// NewPeakDefaults builds the default width and skew set with standard
// bounds, short tail enabled (the usual convention: short tail is almost
// always on, the other three are situational).
func NewPeakDefaults() *PeakDefaults {
	return &PeakDefaults{
		Width:     param.New(param.SineBounded{Min: widthMin, Max: widthMax}, 1.0),
		ShortTail: withEnabled(defaultTail(shortTailAmpMin, shortTailAmpMax, shortTailSlopeMin, shortTailSlopeMax, Left), true),
		RightTail: withEnabled(defaultTail(rightTailAmpMin, rightTailAmpMax, rightTailSlopeMin, rightTailSlopeMax, Right), false),
		LongTail:  withEnabled(defaultTail(longTailAmpMin, longTailAmpMax, longTailSlopeMin, longTailSlopeMax, Left), false),
		Step:      defaultStep(stepAmpMin, stepAmpMax),
	}
}

func withEnabled(t Tail, enabled bool) Tail {
	t.Enabled = enabled
	return t
}

// UpdateIndices assigns indices to every default component whose Shared
// flag is set by the caller (Region decides sharing per peak-set).
func (d *PeakDefaults) UpdateIndices(counter *int, shareWidth, shareShort, shareRight, shareLong, shareStep bool) error {
	d.Width.ToFit = shareWidth
	if err := d.Width.UpdateIndex(counter); err != nil {
		return err
	}
	shortFit := shareShort && d.ShortTail.Enabled
	d.ShortTail.Amplitude.ToFit = shortFit
	d.ShortTail.Slope.ToFit = shortFit
	if err := d.ShortTail.UpdateIndices(counter); err != nil {
		return err
	}
	rightFit := shareRight && d.RightTail.Enabled
	d.RightTail.Amplitude.ToFit = rightFit
	d.RightTail.Slope.ToFit = rightFit
	if err := d.RightTail.UpdateIndices(counter); err != nil {
		return err
	}
	longFit := shareLong && d.LongTail.Enabled
	d.LongTail.Amplitude.ToFit = longFit
	d.LongTail.Slope.ToFit = longFit
	if err := d.LongTail.UpdateIndices(counter); err != nil {
		return err
	}
	stepFit := shareStep && d.Step.Enabled
	d.Step.Amplitude.ToFit = stepFit
	return d.Step.UpdateIndices(counter)
}

// Peak is a Gaussian core plus up to four optional asymmetric skew
// components. When a skew's Override is false, its index is shared with
// the Region default's equivalent component (see param.Parameter.ShareIndex)
// so Eval/EvalGrad never need to know whether a value is owned or shared.
type Peak struct {
	Position *param.Parameter
	Amplitude *param.Parameter

	WidthOverride bool
	Width         *param.Parameter

	ShortTail Tail
	RightTail Tail
	LongTail  Tail
	Step      Step
}

// NewPeak builds a Peak bounded to the given window, with the same skew
// bounds as the Region defaults.
func NewPeak(windowMin, windowMax, initialPosition, initialAmplitude float64) *Peak {
	return &Peak{
		Position:  param.New(param.SineBounded{Min: windowMin, Max: windowMax}, initialPosition),
		Amplitude: param.New(param.Positive{}, initialAmplitude),
		Width:     param.New(param.SineBounded{Min: widthMin, Max: widthMax}, 1.0),
		ShortTail: defaultTail(shortTailAmpMin, shortTailAmpMax, shortTailSlopeMin, shortTailSlopeMax, Left),
		RightTail: defaultTail(rightTailAmpMin, rightTailAmpMax, rightTailSlopeMin, rightTailSlopeMax, Right),
		LongTail:  defaultTail(longTailAmpMin, longTailAmpMax, longTailSlopeMin, longTailSlopeMax, Left),
		Step:      defaultStep(stepAmpMin, stepAmpMax),
	}
}

func (p *Peak) precalc(channel float64) PrecalcVals {
	width := p.Width.Val()
	ampl := p.Amplitude.Val()
	pos := p.Position.Val()
	return PrecalcVals{
		Ampl: ampl, HalfAmpl: 0.5 * ampl, Width: width, Spread: (channel - pos) / width,
		AmpGrad: p.Amplitude.Grad(), WidthGrad: p.Width.Grad(), PosGrad: p.Position.Grad(),
		AmpIndex: p.Amplitude.Index(), WidthIndex: p.Width.Index(), PosIndex: p.Position.Index(),
	}
}

func (p *Peak) precalcAt(channel float64, vec []float64) PrecalcVals {
	width := p.Width.ValFrom(vec)
	ampl := p.Amplitude.ValFrom(vec)
	pos := p.Position.ValFrom(vec)
	return PrecalcVals{
		Ampl: ampl, HalfAmpl: 0.5 * ampl, Width: width, Spread: (channel - pos) / width,
		AmpGrad: p.Amplitude.GradFrom(vec), WidthGrad: p.Width.GradFrom(vec), PosGrad: p.Position.GradFrom(vec),
		AmpIndex: p.Amplitude.Index(), WidthIndex: p.Width.Index(), PosIndex: p.Position.Index(),
	}
}

// Eval evaluates every enabled component at a channel using cached x.
func (p *Peak) Eval(channel float64) Components {
	pre := p.precalc(channel)
	var c Components
	c.Gaussian = gaussianValue(pre)
	if p.ShortTail.Enabled {
		c.ShortTail = p.ShortTail.Eval(pre)
	}
	if p.RightTail.Enabled {
		c.RightTail = p.RightTail.Eval(pre)
	}
	if p.LongTail.Enabled {
		c.LongTail = p.LongTail.Eval(pre)
	}
	if p.Step.Enabled {
		c.Step = p.Step.Eval(pre)
	}
	return c
}

// EvalAt is the stateless variant reading parameters from an external
// vector, for use inside the optimizer's objective.
func (p *Peak) EvalAt(channel float64, vec []float64) Components {
	pre := p.precalcAt(channel, vec)
	var c Components
	c.Gaussian = gaussianValue(pre)
	if p.ShortTail.Enabled {
		c.ShortTail = p.ShortTail.EvalAt(pre, vec)
	}
	if p.RightTail.Enabled {
		c.RightTail = p.RightTail.EvalAt(pre, vec)
	}
	if p.LongTail.Enabled {
		c.LongTail = p.LongTail.EvalAt(pre, vec)
	}
	if p.Step.Enabled {
		c.Step = p.Step.EvalAt(pre, vec)
	}
	return c
}

// EvalGrad evaluates components and accumulates analytic gradients using
// cached x.
func (p *Peak) EvalGrad(channel float64, grads []float64) Components {
	pre := p.precalc(channel)
	return p.gradAt(pre, grads, false, nil)
}

// EvalGradAt is the stateless variant for use inside the optimizer's
// objective.
func (p *Peak) EvalGradAt(channel float64, vec []float64, grads []float64) Components {
	pre := p.precalcAt(channel, vec)
	return p.gradAt(pre, grads, true, vec)
}

func (p *Peak) gradAt(pre PrecalcVals, grads []float64, stateless bool, vec []float64) Components {
	g := gaussianValue(pre)
	if pre.WidthIndex >= 0 {
		grads[pre.WidthIndex] += pre.WidthGrad * 2 * pre.Spread * pre.Spread * g / pre.Width
	}
	if pre.PosIndex >= 0 {
		grads[pre.PosIndex] += pre.PosGrad * 2 * pre.Spread * g / pre.Width
	}
	if pre.AmpIndex >= 0 && pre.Ampl != 0 {
		grads[pre.AmpIndex] += pre.AmpGrad * g / pre.Ampl
	}

	var c Components
	c.Gaussian = g
	if p.ShortTail.Enabled {
		if stateless {
			c.ShortTail = p.ShortTail.EvalGradAt(pre, vec, grads)
		} else {
			c.ShortTail = p.ShortTail.EvalGrad(pre, grads)
		}
	}
	if p.RightTail.Enabled {
		if stateless {
			c.RightTail = p.RightTail.EvalGradAt(pre, vec, grads)
		} else {
			c.RightTail = p.RightTail.EvalGrad(pre, grads)
		}
	}
	if p.LongTail.Enabled {
		if stateless {
			c.LongTail = p.LongTail.EvalGradAt(pre, vec, grads)
		} else {
			c.LongTail = p.LongTail.EvalGrad(pre, grads)
		}
	}
	if p.Step.Enabled {
		if stateless {
			c.Step = p.Step.EvalGradAt(pre, vec, grads)
		} else {
			c.Step = p.Step.EvalGrad(pre, grads)
		}
	}
	return c
}

// Sane reports whether this Peak satisfies the basic physical-sanity
// invariants: finite positive amplitude, finite positive width, and a
// position strictly inside [windowMin, windowMax].
func (p *Peak) Sane(windowMin, windowMax float64) bool {
	amp := p.Amplitude.Val()
	width := p.Width.Val()
	pos := p.Position.Val()
	if !finitePositive(amp) || !finitePositive(width) {
		return false
	}
	return pos > windowMin && pos < windowMax
}

// SaneAt is the stateless variant of Sane, reading amplitude/width/
// position from an external vector.
func (p *Peak) SaneAt(windowMin, windowMax float64, vec []float64) bool {
	amp := p.Amplitude.ValFrom(vec)
	width := p.Width.ValFrom(vec)
	pos := p.Position.ValFrom(vec)
	if !finitePositive(amp) || !finitePositive(width) {
		return false
	}
	return pos > windowMin && pos < windowMax
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// Area returns the analytically-derived peak area and its simplified
// uncertainty, sqrt(area * max(chiSqNorm, 1)).
func (p *Peak) Area(chiSqNorm float64) uncertain.Double {
	width := p.Width.Val()
	ampl := p.Amplitude.Val()
	sum := sqrtPi
	for _, t := range p.enabledTails() {
		beta := t.Slope.Val()
		sum += t.Amplitude.Val() * beta * math.Exp(-1/(4*beta*beta))
	}
	area := ampl * width * sum
	norm := chiSqNorm
	if norm < 1 {
		norm = 1
	}
	sigma := math.Sqrt(math.Abs(area) * norm)
	return uncertain.New(area, sigma)
}

// EnergyPosition converts this Peak's fitted channel position into energy
// units via cal, propagating the position's uncertainty through the
// calibration's local derivative (first-order linearization).
func (p *Peak) EnergyPosition(cal calibration.Polynomial) uncertain.Double {
	chan_ := p.Position.Val()
	energy := cal.Transform(chan_)
	sigma := math.Abs(cal.Derivative(chan_)) * p.Position.Uncert()
	return uncertain.New(energy, sigma)
}

// EnergyFWHM converts this Peak's Gaussian width into a FWHM in energy
// units via cal's local derivative at the peak's position.
func (p *Peak) EnergyFWHM(cal calibration.Polynomial) uncertain.Double {
	chan_ := p.Position.Val()
	slope := math.Abs(cal.Derivative(chan_))
	fwhmChan := 2 * sqrtLn2 * p.Width.Val()
	sigmaChan := 2 * sqrtLn2 * p.Width.Uncert()
	return uncertain.New(fwhmChan*slope, sigmaChan*slope)
}

func (p *Peak) enabledTails() []*Tail {
	var tails []*Tail
	if p.ShortTail.Enabled {
		tails = append(tails, &p.ShortTail)
	}
	if p.RightTail.Enabled {
		tails = append(tails, &p.RightTail)
	}
	if p.LongTail.Enabled {
		tails = append(tails, &p.LongTail)
	}
	return tails
}

// UpdateIndices assigns indices to every parameter this Peak owns
// outright: amplitude, position, then any width/skew marked Override.
// Non-overridden components must already have had their index shared
// from the Region default by the caller.
func (p *Peak) UpdateIndices(counter *int) error {
	if err := p.Amplitude.UpdateIndex(counter); err != nil {
		return err
	}
	if err := p.Position.UpdateIndex(counter); err != nil {
		return err
	}
	if p.WidthOverride {
		if err := p.Width.UpdateIndex(counter); err != nil {
			return err
		}
	}
	if p.ShortTail.Override {
		if err := p.ShortTail.UpdateIndices(counter); err != nil {
			return err
		}
	}
	if p.RightTail.Override {
		if err := p.RightTail.UpdateIndices(counter); err != nil {
			return err
		}
	}
	if p.LongTail.Override {
		if err := p.LongTail.UpdateIndices(counter); err != nil {
			return err
		}
	}
	if p.Step.Override {
		if err := p.Step.UpdateIndices(counter); err != nil {
			return err
		}
	}
	return nil
}

// ShareFrom mirrors this Peak's non-overridden width and skew components
// from the Region default: index (vector slot) and Enabled state.
func (p *Peak) ShareFrom(d *PeakDefaults) {
	if !p.WidthOverride {
		p.Width.ShareIndex(d.Width.Index())
	}
	if !p.ShortTail.Override {
		p.ShortTail.Enabled = d.ShortTail.Enabled
		p.ShortTail.Amplitude.ShareIndex(d.ShortTail.Amplitude.Index())
		p.ShortTail.Slope.ShareIndex(d.ShortTail.Slope.Index())
	}
	if !p.RightTail.Override {
		p.RightTail.Enabled = d.RightTail.Enabled
		p.RightTail.Amplitude.ShareIndex(d.RightTail.Amplitude.Index())
		p.RightTail.Slope.ShareIndex(d.RightTail.Slope.Index())
	}
	if !p.LongTail.Override {
		p.LongTail.Enabled = d.LongTail.Enabled
		p.LongTail.Amplitude.ShareIndex(d.LongTail.Amplitude.Index())
		p.LongTail.Slope.ShareIndex(d.LongTail.Slope.Index())
	}
	if !p.Step.Override {
		p.Step.Enabled = d.Step.Enabled
		p.Step.Amplitude.ShareIndex(d.Step.Amplitude.Index())
	}
}

// Put writes every owned parameter's cached x into vec. Shared
// (non-overridden) components are intentionally skipped: the default
// already wrote that slot.
func (p *Peak) Put(vec []float64) {
	p.Position.Put(vec)
	p.Amplitude.Put(vec)
	if p.WidthOverride {
		p.Width.Put(vec)
	}
	if p.ShortTail.Override {
		p.ShortTail.Amplitude.Put(vec)
		p.ShortTail.Slope.Put(vec)
	}
	if p.RightTail.Override {
		p.RightTail.Amplitude.Put(vec)
		p.RightTail.Slope.Put(vec)
	}
	if p.LongTail.Override {
		p.LongTail.Amplitude.Put(vec)
		p.LongTail.Slope.Put(vec)
	}
	if p.Step.Override {
		p.Step.Amplitude.Put(vec)
	}
}

// Get reads every parameter's x back from vec, including shared ones (the
// shared slot already holds the correct value via the default).
func (p *Peak) Get(vec []float64) {
	p.Position.Get(vec)
	p.Amplitude.Get(vec)
	p.Width.Get(vec)
	p.ShortTail.Amplitude.Get(vec)
	p.ShortTail.Slope.Get(vec)
	p.RightTail.Amplitude.Get(vec)
	p.RightTail.Slope.Get(vec)
	p.LongTail.Amplitude.Get(vec)
	p.LongTail.Slope.Get(vec)
	p.Step.Amplitude.Get(vec)
}
