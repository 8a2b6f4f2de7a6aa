package hypermet

// PrecalcVals carries the per-channel state a Peak and its skew components
// share during a single Eval/EvalGrad call, so each component only has to
// know its own formula, not how to recompute spread or chase indices.
type PrecalcVals struct {
	Ampl     float64 // peak amplitude value
	HalfAmpl float64 // 0.5 * Ampl
	Width    float64 // peak width value (sigma)
	Spread   float64 // (channel - position) / Width

	AmpGrad   float64 // d(amplitude value)/d(amplitude x)
	WidthGrad float64 // d(width value)/d(width x)
	PosGrad   float64 // d(position value)/d(position x)

	AmpIndex   int
	WidthIndex int
	PosIndex   int
}

// Components holds the per-channel contribution of each Hypermet shape
// term, grouped the way spec.md §4.3 groups them for area and output
// purposes.
type Components struct {
	Gaussian  float64
	ShortTail float64
	RightTail float64
	LongTail  float64
	Step      float64
}

// PeakSkews is the Gaussian plus the two "peak-like" skews (short and
// right tail) — the part of the shape that moves with the peak itself.
func (c Components) PeakSkews() float64 { return c.Gaussian + c.ShortTail + c.RightTail }

// StepTail is the long tail plus the step — the part of the shape that
// behaves like a baseline perturbation extending away from the peak.
func (c Components) StepTail() float64 { return c.LongTail + c.Step }

// All sums every enabled contribution.
func (c Components) All() float64 { return c.PeakSkews() + c.StepTail() }
