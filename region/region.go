// Package region implements the fitting objective: a polynomial
// background plus a collection of Hypermet peaks evaluated over a
// weighted data window, exposing chi-square and its gradient to the
// optimizer via the optimize.Fittable contract.
package region

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bcdannyboy/hypermet/hypermet"
	"github.com/bcdannyboy/hypermet/optimize"
	"github.com/bcdannyboy/hypermet/param"
)

// Region owns a background, a set of peaks sharing default width/skew
// behavior, a weighted data window, and a SUM4 cross-check estimator. It
// implements optimize.Fittable.
type Region struct {
	Background *hypermet.PolyBackground
	Defaults   *hypermet.PeakDefaults
	Window     []Point
	SUM4       SUM4

	peaks []*hypermet.Peak

	variableCount int
	chiSqNorm     float64
}

// minWindowLength is the smallest data window Validate accepts: three
// points leave no degrees of freedom once a single peak's three core
// parameters (position, amplitude, width) are free.
const minWindowLength = 4

var errWindowTooShort = fmt.Errorf("region: data window must have at least %d points", minWindowLength)
var errLengthMismatch = errors.New("region: channels, counts, and weights must have equal length")

// New builds a Region from parallel channel/count/weight slices, a
// background (typically fresh from hypermet.NewPolyBackground, anchored
// at the window's midpoint), and its initial peaks. It fails fast with
// InvalidArgument-style errors before any fit can start: mismatched
// slice lengths or a window shorter than minWindowLength.
func New(channels, counts, weights []float64, background hypermet.PolyBackground, peaks []hypermet.Peak) (*Region, error) {
	if len(channels) != len(counts) || len(channels) != len(weights) {
		return nil, errLengthMismatch
	}

	window := make([]Point, len(channels))
	for i := range channels {
		window[i] = Point{Channel: channels[i], Count: counts[i], Weight: weights[i]}
	}

	bg := background
	r := &Region{
		Background: &bg,
		Defaults:   hypermet.NewPeakDefaults(),
		Window:     window,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.peaks = make([]*hypermet.Peak, len(peaks))
	for i := range peaks {
		p := peaks[i]
		r.peaks[i] = &p
	}
	if err := r.UpdateIndices(); err != nil {
		return nil, err
	}
	return r, nil
}

// WindowBounds returns the first and last channel in the data window.
func (r *Region) WindowBounds() (min, max float64) {
	if len(r.Window) == 0 {
		return 0, 0
	}
	return r.Window[0].Channel, r.Window[len(r.Window)-1].Channel
}

// LeftBin is the first channel in the data window.
func (r *Region) LeftBin() float64 { min, _ := r.WindowBounds(); return min }

// RightBin is the last channel in the data window.
func (r *Region) RightBin() float64 { _, max := r.WindowBounds(); return max }

// Width is the number of bins in the data window.
func (r *Region) Width() int { return len(r.Window) }

// PeakCount is the number of peaks currently owned by this Region.
func (r *Region) PeakCount() int { return len(r.peaks) }

// Peaks returns the owned peaks ordered by fitted channel position.
func (r *Region) Peaks() []*hypermet.Peak { return r.sortedPeaks() }

func (r *Region) sortedPeaks() []*hypermet.Peak {
	ordered := append([]*hypermet.Peak{}, r.peaks...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Position.Val() < ordered[j].Position.Val()
	})
	return ordered
}

// UpdateIndices assigns a contiguous [0, VariableCount()) index layout:
// background coefficients, then the default width/skews wherever any
// peak shares them, then each peak in position order (its own amplitude
// and position, then its own overridden width/skews).
func (r *Region) UpdateIndices() error {
	counter := 0
	if err := r.Background.UpdateIndices(&counter); err != nil {
		return err
	}

	ordered := r.sortedPeaks()
	shareWidth, shareShort, shareRight, shareLong, shareStep := false, false, false, false, false
	for _, p := range ordered {
		shareWidth = shareWidth || !p.WidthOverride
		shareShort = shareShort || !p.ShortTail.Override
		shareRight = shareRight || !p.RightTail.Override
		shareLong = shareLong || !p.LongTail.Override
		shareStep = shareStep || !p.Step.Override
	}
	if err := r.Defaults.UpdateIndices(&counter, shareWidth, shareShort, shareRight, shareLong, shareStep); err != nil {
		return err
	}

	for _, p := range ordered {
		p.ShareFrom(r.Defaults)
		if err := p.UpdateIndices(&counter); err != nil {
			return err
		}
	}

	r.variableCount = counter
	return nil
}

// VariableCount is the number of free scalars in the current fit.
func (r *Region) VariableCount() int { return r.variableCount }

// Variables returns the current x vector, read from every parameter's
// cached x via Put.
func (r *Region) Variables() []float64 {
	vec := make([]float64, r.variableCount)
	r.Background.Put(vec)
	d := r.Defaults
	d.Width.Put(vec)
	d.ShortTail.Amplitude.Put(vec)
	d.ShortTail.Slope.Put(vec)
	d.RightTail.Amplitude.Put(vec)
	d.RightTail.Slope.Put(vec)
	d.LongTail.Amplitude.Put(vec)
	d.LongTail.Slope.Put(vec)
	d.Step.Amplitude.Put(vec)
	for _, p := range r.sortedPeaks() {
		p.Put(vec)
	}
	return vec
}

func (r *Region) modelAt(channel float64, vec []float64) float64 {
	value := r.Background.EvalAt(channel, vec)
	for _, p := range r.peaks {
		value += p.EvalAt(channel, vec).All()
	}
	return value
}

// ChiSq evaluates the weighted chi-square residual over the data window.
func (r *Region) ChiSq(x []float64) float64 {
	sum := 0.0
	for _, pt := range r.Window {
		resid := (pt.Count - r.modelAt(pt.Channel, x)) / pt.Weight
		sum += resid * resid
	}
	return sum
}

// ChiSqGradient evaluates chi-square and accumulates its gradient into
// grad, which must have length VariableCount().
func (r *Region) ChiSqGradient(x []float64, grad []float64) float64 {
	for i := range grad {
		grad[i] = 0
	}
	modelGrad := make([]float64, len(grad))

	sum := 0.0
	for _, pt := range r.Window {
		for i := range modelGrad {
			modelGrad[i] = 0
		}
		model := r.Background.EvalGradAt(pt.Channel, x, modelGrad)
		for _, p := range r.peaks {
			model += p.EvalGradAt(pt.Channel, x, modelGrad).All()
		}

		resid := (pt.Count - model) / pt.Weight
		sum += resid * resid

		scale := -2 * resid / pt.Weight
		for i := range grad {
			grad[i] += scale * modelGrad[i]
		}
	}
	return sum
}

// DegreesOfFreedom is the window size minus the number of free variables.
func (r *Region) DegreesOfFreedom() float64 {
	return float64(len(r.Window) - r.variableCount)
}

// ChiSqNormalized is chi-square divided by degrees of freedom.
func (r *Region) ChiSqNormalized(chiSq float64) float64 {
	dof := r.DegreesOfFreedom()
	if dof <= 0 {
		return math.Inf(1)
	}
	return chiSq / dof
}

// Sane reports whether every peak's position, width, and amplitude
// resolved from x are physically plausible.
func (r *Region) Sane(x []float64) bool {
	windowMin, windowMax := r.WindowBounds()
	for _, p := range r.peaks {
		if !p.SaneAt(windowMin, windowMax, x) {
			return false
		}
	}
	return true
}

// SaveFit writes the final vector back into every owned parameter (via
// Get) and derives each free parameter's uncertainty from the diagonal of
// the inverse-Hessian approximation, scaled by the simplified
// normalization sigma_area-style rule: chisq_norm = max(chi_sq_normalized,
// 1) * 0.5.
func (r *Region) SaveFit(result *optimize.FitResult) {
	vec := result.Variables
	r.Background.Get(vec)
	d := r.Defaults
	d.Width.Get(vec)
	d.ShortTail.Amplitude.Get(vec)
	d.ShortTail.Slope.Get(vec)
	d.RightTail.Amplitude.Get(vec)
	d.RightTail.Slope.Get(vec)
	d.LongTail.Amplitude.Get(vec)
	d.LongTail.Slope.Get(vec)
	d.Step.Amplitude.Get(vec)
	for _, p := range r.peaks {
		p.Get(vec)
	}

	chiSqNorm := r.ChiSqNormalized(result.Value)
	if chiSqNorm < 1 || math.IsInf(chiSqNorm, 0) {
		chiSqNorm = 1
	}
	chiSqNorm *= 0.5
	r.chiSqNorm = chiSqNorm

	diag := make([]float64, r.variableCount)
	if result.InvHessian != nil {
		for i := 0; i < r.variableCount; i++ {
			diag[i] = result.InvHessian.At(i, i)
		}
	}

	r.Background.Base.GetUncert(diag, chiSqNorm)
	r.Background.Slope.GetUncert(diag, chiSqNorm)
	r.Background.Curve.GetUncert(diag, chiSqNorm)
	r.Defaults.Width.GetUncert(diag, chiSqNorm)
	getUncertTail(r.Defaults.ShortTail, diag, chiSqNorm)
	getUncertTail(r.Defaults.RightTail, diag, chiSqNorm)
	getUncertTail(r.Defaults.LongTail, diag, chiSqNorm)
	r.Defaults.Step.Amplitude.GetUncert(diag, chiSqNorm)

	for _, p := range r.peaks {
		p.Position.GetUncert(diag, chiSqNorm)
		p.Amplitude.GetUncert(diag, chiSqNorm)
		p.Width.GetUncert(diag, chiSqNorm)
		getUncertTail(p.ShortTail, diag, chiSqNorm)
		getUncertTail(p.RightTail, diag, chiSqNorm)
		getUncertTail(p.LongTail, diag, chiSqNorm)
		p.Step.Amplitude.GetUncert(diag, chiSqNorm)
	}
}

func getUncertTail(t hypermet.Tail, diag []float64, chiSqNorm float64) {
	t.Amplitude.GetUncert(diag, chiSqNorm)
	t.Slope.GetUncert(diag, chiSqNorm)
}

// ChiSqNorm returns the normalization factor computed by the last
// SaveFit call (0 before any fit completes).
func (r *Region) ChiSqNorm() float64 { return r.chiSqNorm }

// Perturb jitters every free parameter's unconstrained coordinate: bounded
// (sine/arctan) parameters get a fresh x drawn uniformly from (-π/2, π/2),
// unbounded/positive parameters get a local Gaussian nudge. It always
// returns true when there is at least one free variable.
func (r *Region) Perturb(rng *rand.Rand) bool {
	if r.variableCount == 0 {
		return false
	}
	perturbParam(r.Background.Base, rng)
	perturbParam(r.Background.Slope, rng)
	perturbParam(r.Background.Curve, rng)
	perturbParam(r.Defaults.Width, rng)
	perturbTail(r.Defaults.ShortTail, rng)
	perturbTail(r.Defaults.RightTail, rng)
	perturbTail(r.Defaults.LongTail, rng)
	perturbParam(r.Defaults.Step.Amplitude, rng)
	for _, p := range r.peaks {
		perturbParam(p.Position, rng)
		perturbParam(p.Amplitude, rng)
		perturbParam(p.Width, rng)
		perturbTail(p.ShortTail, rng)
		perturbTail(p.RightTail, rng)
		perturbTail(p.LongTail, rng)
		perturbParam(p.Step.Amplitude, rng)
	}
	return true
}

func perturbTail(t hypermet.Tail, rng *rand.Rand) {
	perturbParam(t.Amplitude, rng)
	perturbParam(t.Slope, rng)
}

func perturbParam(p *param.Parameter, rng *rand.Rand) {
	if !p.HasIndex() {
		return
	}
	switch p.Transform.(type) {
	case param.SineBounded, param.ArcTanBounded:
		u := distuv.Uniform{Min: -math.Pi / 2, Max: math.Pi / 2, Src: rng}
		p.SetX(u.Rand())
	default:
		n := distuv.Normal{Mu: p.X(), Sigma: 0.5, Src: rng}
		p.SetX(n.Rand())
	}
}

// Validate checks the invariants required before a fit can start: a
// window of at least minWindowLength points, each with a positive
// weight.
func (r *Region) Validate() error {
	if len(r.Window) < minWindowLength {
		return errWindowTooShort
	}
	for _, pt := range r.Window {
		if pt.Weight <= 0 || math.IsNaN(pt.Weight) || math.IsInf(pt.Weight, 0) {
			return fmt.Errorf("region: non-positive weight at channel %g", pt.Channel)
		}
	}
	return nil
}
