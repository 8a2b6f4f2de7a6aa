package hypermet

import (
	"math"

	"github.com/bcdannyboy/hypermet/param"
)

// Side selects which way a skew component's argument is flipped. Per the
// fixed convention (spec §9 Design Notes), Left is the full-energy-peak
// side and yields a positive step argument.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) flip() float64 {
	if s == Right {
		return -1
	}
	return 1
}

const twoOverSqrtPi = 1.1283791670955126 // 2/sqrt(pi)

// Tail is an asymmetric exponential-times-erfc add-on (short/right/long
// tail), evaluated at a Gaussian-normalized spread s = (chan-pos)/width:
//
//	T(s) = (Ampl/2) * A * exp(u/beta) * erfc(1/(2*beta) + u), u = flip(side) * s
//
// where Ampl is the peak amplitude and A the tail's own amplitude.
func defaultTail(ampMin, ampMax, slopeMin, slopeMax float64, side Side) Tail {
	return Tail{
		Amplitude: param.New(param.SineBounded{Min: ampMin, Max: ampMax}, ampMin),
		Slope:     param.New(param.SineBounded{Min: slopeMin, Max: slopeMax}, slopeMin),
		Side:      side,
	}
}

// Tail models short-tail, right-tail, and long-tail skew components.
type Tail struct {
	Amplitude *param.Parameter
	Slope     *param.Parameter
	Enabled   bool
	Override  bool
	Side      Side
}

// Eval returns the tail's contribution at the precomputed channel state.
func (t *Tail) Eval(pre PrecalcVals) float64 {
	beta := t.Slope.Val()
	u := t.Side.flip() * pre.Spread
	c := 0.5 / beta
	return pre.HalfAmpl * t.Amplitude.Val() * math.Exp(u/beta) * math.Erfc(c+u)
}

// EvalAt is the stateless variant reading amplitude/slope from an external
// vector rather than cached x.
func (t *Tail) EvalAt(pre PrecalcVals, vec []float64) float64 {
	beta := t.Slope.ValFrom(vec)
	u := t.Side.flip() * pre.Spread
	c := 0.5 / beta
	return pre.HalfAmpl * t.Amplitude.ValFrom(vec) * math.Exp(u/beta) * math.Erfc(c+u)
}

// EvalGrad accumulates this tail's analytic partial derivatives into grads
// at the width/position/peak-amplitude indices (via pre) and at its own
// amplitude/slope indices, using the cached-x API.
func (t *Tail) EvalGrad(pre PrecalcVals, grads []float64) float64 {
	return t.evalGrad(pre, grads, func() float64 { return t.Slope.Val() }, func() float64 { return t.Amplitude.Val() },
		t.Slope.Grad(), t.Amplitude.Grad())
}

// EvalGradAt is the stateless variant for use inside the optimizer's
// objective, reading amplitude/slope from an external vector.
func (t *Tail) EvalGradAt(pre PrecalcVals, vec []float64, grads []float64) float64 {
	return t.evalGrad(pre, grads, func() float64 { return t.Slope.ValFrom(vec) }, func() float64 { return t.Amplitude.ValFrom(vec) },
		t.Slope.GradFrom(vec), t.Amplitude.GradFrom(vec))
}

func (t *Tail) evalGrad(pre PrecalcVals, grads []float64, slopeVal, ampVal func() float64, slopeGrad, ampGrad float64) float64 {
	beta := slopeVal()
	ownAmp := ampVal()
	flip := t.Side.flip()
	s := pre.Spread
	u := flip * s
	c := 0.5 / beta
	expU := math.Exp(u / beta)
	erfcTerm := math.Erfc(c + u)
	gaussPart := math.Exp(-(c + u) * (c + u))

	value := pre.HalfAmpl * ownAmp * expU * erfcTerm

	dT_du := pre.HalfAmpl * ownAmp * expU * (erfcTerm/beta - twoOverSqrtPi*gaussPart)
	du_dw := -flip * s / pre.Width
	du_dpos := -flip / pre.Width

	if pre.WidthIndex >= 0 {
		grads[pre.WidthIndex] += pre.WidthGrad * dT_du * du_dw
	}
	if pre.PosIndex >= 0 {
		grads[pre.PosIndex] += pre.PosGrad * dT_du * du_dpos
	}
	if pre.AmpIndex >= 0 && pre.Ampl != 0 {
		grads[pre.AmpIndex] += pre.AmpGrad * value / pre.Ampl
	}
	if t.Amplitude.HasIndex() {
		grads[t.Amplitude.Index()] += ampGrad * value / ownAmp
	}
	if t.Slope.HasIndex() {
		dT_dbeta := pre.HalfAmpl * ownAmp * expU / (beta * beta) *
			(-u*erfcTerm + gaussPart/math.Sqrt(math.Pi))
		grads[t.Slope.Index()] += slopeGrad * dT_dbeta
	}

	return value
}

// Step is the smooth sigmoidal "baseline lift" component; it has no
// slope, only an amplitude.
type Step struct {
	Amplitude *param.Parameter
	Enabled   bool
	Override  bool
	Side      Side
}

func defaultStep(ampMin, ampMax float64) Step {
	return Step{Amplitude: param.New(param.SineBounded{Min: ampMin, Max: ampMax}, ampMin), Side: Left}
}

// Eval returns the step's contribution at the precomputed channel state.
func (st *Step) Eval(pre PrecalcVals) float64 {
	sign := st.Side.flip()
	return pre.HalfAmpl * st.Amplitude.Val() * math.Erfc(sign*pre.Spread)
}

// EvalAt is the stateless variant.
func (st *Step) EvalAt(pre PrecalcVals, vec []float64) float64 {
	sign := st.Side.flip()
	return pre.HalfAmpl * st.Amplitude.ValFrom(vec) * math.Erfc(sign*pre.Spread)
}

// EvalGrad accumulates analytic partials into grads.
func (st *Step) EvalGrad(pre PrecalcVals, grads []float64) float64 {
	return st.evalGrad(pre, grads, st.Amplitude.Val(), st.Amplitude.Grad())
}

// EvalGradAt is the stateless variant.
func (st *Step) EvalGradAt(pre PrecalcVals, vec []float64, grads []float64) float64 {
	return st.evalGrad(pre, grads, st.Amplitude.ValFrom(vec), st.Amplitude.GradFrom(vec))
}

func (st *Step) evalGrad(pre PrecalcVals, grads []float64, ownAmp, ampGrad float64) float64 {
	sign := st.Side.flip()
	s := pre.Spread
	erfcArg := sign * s
	value := pre.HalfAmpl * ownAmp * math.Erfc(erfcArg)

	dV_ds := pre.HalfAmpl * ownAmp * (-sign) * twoOverSqrtPi * math.Exp(-s*s)
	dV_dw := dV_ds * (-s / pre.Width)
	dV_dpos := dV_ds * (-1 / pre.Width)

	if pre.WidthIndex >= 0 {
		grads[pre.WidthIndex] += pre.WidthGrad * dV_dw
	}
	if pre.PosIndex >= 0 {
		grads[pre.PosIndex] += pre.PosGrad * dV_dpos
	}
	if pre.AmpIndex >= 0 && pre.Ampl != 0 {
		grads[pre.AmpIndex] += pre.AmpGrad * value / pre.Ampl
	}
	if st.Amplitude.HasIndex() {
		grads[st.Amplitude.Index()] += ampGrad * value / ownAmp
	}

	return value
}

// UpdateIndices assigns this tail's own amplitude/slope indices if it is
// enabled; a disabled or non-owning (Override==false, resolved elsewhere)
// tail is left untouched by the caller.
func (t *Tail) UpdateIndices(counter *int) error {
	if !t.Enabled {
		t.Amplitude.ShareIndex(param.UnassignedIndex)
		t.Slope.ShareIndex(param.UnassignedIndex)
		return nil
	}
	if err := t.Amplitude.UpdateIndex(counter); err != nil {
		return err
	}
	return t.Slope.UpdateIndex(counter)
}

// UpdateIndices assigns this step's own amplitude index if it is enabled;
// a disabled step's amplitude is left unassigned.
func (st *Step) UpdateIndices(counter *int) error {
	if !st.Enabled {
		st.Amplitude.ShareIndex(param.UnassignedIndex)
		return nil
	}
	return st.Amplitude.UpdateIndex(counter)
}
