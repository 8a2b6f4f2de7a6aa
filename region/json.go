package region

import (
	"github.com/xhhuango/json"

	"github.com/bcdannyboy/hypermet/hypermet"
	"github.com/bcdannyboy/hypermet/param"
)

// wirePoint is one data-window sample.
type wirePoint struct {
	Channel float64 `json:"channel"`
	Count   float64 `json:"count"`
	Weight  float64 `json:"weight"`
}

// wireBackground carries PolyBackground's anchor/flag plus each
// coefficient's own wire form (delegated to param.Parameter's
// MarshalJSON/UnmarshalJSON).
type wireBackground struct {
	XOffset  float64         `json:"x_offset"`
	CurveSet bool            `json:"curve_set"`
	Base     json.RawMessage `json:"base"`
	Slope    json.RawMessage `json:"slope"`
	Curve    json.RawMessage `json:"curve"`
}

type wireTail struct {
	Enabled   bool            `json:"enabled"`
	Override  bool            `json:"override"`
	Side      hypermet.Side   `json:"side"`
	Amplitude json.RawMessage `json:"amplitude"`
	Slope     json.RawMessage `json:"slope"`
}

type wireStep struct {
	Enabled   bool            `json:"enabled"`
	Override  bool            `json:"override"`
	Side      hypermet.Side   `json:"side"`
	Amplitude json.RawMessage `json:"amplitude"`
}

// wirePeak carries the one per-instance bound (the position's window) a
// fresh hypermet.NewPeak needs, plus every owned parameter's own wire
// form. Width/tail/step bounds are fixed package constants reproduced
// identically by NewPeak, so they need no wire representation.
type wirePeak struct {
	PositionMin   float64         `json:"position_min"`
	PositionMax   float64         `json:"position_max"`
	Position      json.RawMessage `json:"position"`
	Amplitude     json.RawMessage `json:"amplitude"`
	WidthOverride bool            `json:"width_override"`
	Width         json.RawMessage `json:"width"`
	ShortTail     wireTail        `json:"short_tail"`
	RightTail     wireTail        `json:"right_tail"`
	LongTail      wireTail        `json:"long_tail"`
	Step          wireStep        `json:"step"`
}

type wireSUM4Edge struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type wireSUM4 struct {
	Left    wireSUM4Edge `json:"left"`
	Right   wireSUM4Edge `json:"right"`
	PeakMin float64      `json:"peak_min"`
	PeakMax float64      `json:"peak_max"`
}

// wireRegion is the lossless JSON rendering of a Region: its data window,
// background, peaks (in construction order), and SUM4 edges.
type wireRegion struct {
	Window     []wirePoint    `json:"window"`
	Background wireBackground `json:"background"`
	Peaks      []wirePeak     `json:"peaks"`
	SUM4       wireSUM4       `json:"sum4"`
}

func marshalParam(p *param.Parameter) (json.RawMessage, error) { return p.MarshalJSON() }

func marshalTail(t *hypermet.Tail) (wireTail, error) {
	amp, err := marshalParam(t.Amplitude)
	if err != nil {
		return wireTail{}, err
	}
	slope, err := marshalParam(t.Slope)
	if err != nil {
		return wireTail{}, err
	}
	return wireTail{Enabled: t.Enabled, Override: t.Override, Side: t.Side, Amplitude: amp, Slope: slope}, nil
}

func marshalStep(st *hypermet.Step) (wireStep, error) {
	amp, err := marshalParam(st.Amplitude)
	if err != nil {
		return wireStep{}, err
	}
	return wireStep{Enabled: st.Enabled, Override: st.Override, Side: st.Side, Amplitude: amp}, nil
}

// MarshalJSON implements json.Marshaler, rendering the window, background,
// peaks (with overrides and uncertainties) and SUM4 edges. The Region's
// shared Defaults (width and skew components, their values and Enabled
// flags) are not written; UnmarshalJSON rebuilds them with
// hypermet.NewPeakDefaults.
func (r *Region) MarshalJSON() ([]byte, error) {
	w := wireRegion{
		Window: make([]wirePoint, len(r.Window)),
		SUM4: wireSUM4{
			Left:    wireSUM4Edge{Min: r.SUM4.Left.Min, Max: r.SUM4.Left.Max},
			Right:   wireSUM4Edge{Min: r.SUM4.Right.Min, Max: r.SUM4.Right.Max},
			PeakMin: r.SUM4.PeakMin,
			PeakMax: r.SUM4.PeakMax,
		},
	}
	for i, pt := range r.Window {
		w.Window[i] = wirePoint{Channel: pt.Channel, Count: pt.Count, Weight: pt.Weight}
	}

	base, err := marshalParam(r.Background.Base)
	if err != nil {
		return nil, err
	}
	slope, err := marshalParam(r.Background.Slope)
	if err != nil {
		return nil, err
	}
	curve, err := marshalParam(r.Background.Curve)
	if err != nil {
		return nil, err
	}
	w.Background = wireBackground{
		XOffset:  r.Background.XOffset,
		CurveSet: r.Background.CurveSet,
		Base:     base,
		Slope:    slope,
		Curve:    curve,
	}

	w.Peaks = make([]wirePeak, len(r.peaks))
	for i, p := range r.peaks {
		wp, err := marshalPeak(p)
		if err != nil {
			return nil, err
		}
		w.Peaks[i] = wp
	}

	return json.Marshal(w)
}

func marshalPeak(p *hypermet.Peak) (wirePeak, error) {
	sb, _ := p.Position.Transform.(param.SineBounded)

	pos, err := marshalParam(p.Position)
	if err != nil {
		return wirePeak{}, err
	}
	amp, err := marshalParam(p.Amplitude)
	if err != nil {
		return wirePeak{}, err
	}
	width, err := marshalParam(p.Width)
	if err != nil {
		return wirePeak{}, err
	}
	shortTail, err := marshalTail(&p.ShortTail)
	if err != nil {
		return wirePeak{}, err
	}
	rightTail, err := marshalTail(&p.RightTail)
	if err != nil {
		return wirePeak{}, err
	}
	longTail, err := marshalTail(&p.LongTail)
	if err != nil {
		return wirePeak{}, err
	}
	step, err := marshalStep(&p.Step)
	if err != nil {
		return wirePeak{}, err
	}

	return wirePeak{
		PositionMin:   sb.Min,
		PositionMax:   sb.Max,
		Position:      pos,
		Amplitude:     amp,
		WidthOverride: p.WidthOverride,
		Width:         width,
		ShortTail:     shortTail,
		RightTail:     rightTail,
		LongTail:      longTail,
		Step:          step,
	}, nil
}

func unmarshalTail(w wireTail, t *hypermet.Tail) error {
	t.Enabled = w.Enabled
	t.Override = w.Override
	t.Side = w.Side
	if err := t.Amplitude.UnmarshalJSON(w.Amplitude); err != nil {
		return err
	}
	return t.Slope.UnmarshalJSON(w.Slope)
}

func unmarshalStep(w wireStep, st *hypermet.Step) error {
	st.Enabled = w.Enabled
	st.Override = w.Override
	st.Side = w.Side
	return st.Amplitude.UnmarshalJSON(w.Amplitude)
}

func unmarshalPeak(w wirePeak) (*hypermet.Peak, error) {
	p := hypermet.NewPeak(w.PositionMin, w.PositionMax, w.PositionMin, 1)
	if err := p.Position.UnmarshalJSON(w.Position); err != nil {
		return nil, err
	}
	if err := p.Amplitude.UnmarshalJSON(w.Amplitude); err != nil {
		return nil, err
	}
	p.WidthOverride = w.WidthOverride
	if err := p.Width.UnmarshalJSON(w.Width); err != nil {
		return nil, err
	}
	if err := unmarshalTail(w.ShortTail, &p.ShortTail); err != nil {
		return nil, err
	}
	if err := unmarshalTail(w.RightTail, &p.RightTail); err != nil {
		return nil, err
	}
	if err := unmarshalTail(w.LongTail, &p.LongTail); err != nil {
		return nil, err
	}
	if err := unmarshalStep(w.Step, &p.Step); err != nil {
		return nil, err
	}
	return p, nil
}

// UnmarshalJSON implements json.Unmarshaler, rebuilding background and
// peaks with their correct bounded transforms before restoring fit state,
// then re-running UpdateIndices so the result is immediately fittable.
func (r *Region) UnmarshalJSON(data []byte) error {
	var w wireRegion
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	r.Window = make([]Point, len(w.Window))
	for i, pt := range w.Window {
		r.Window[i] = Point{Channel: pt.Channel, Count: pt.Count, Weight: pt.Weight}
	}
	r.SUM4 = SUM4{
		Left:    SUM4Edge{Min: w.SUM4.Left.Min, Max: w.SUM4.Left.Max},
		Right:   SUM4Edge{Min: w.SUM4.Right.Min, Max: w.SUM4.Right.Max},
		PeakMin: w.SUM4.PeakMin,
		PeakMax: w.SUM4.PeakMax,
	}

	r.Background = hypermet.NewPolyBackground(w.Background.XOffset)
	r.Background.CurveSet = w.Background.CurveSet
	if err := r.Background.Base.UnmarshalJSON(w.Background.Base); err != nil {
		return err
	}
	if err := r.Background.Slope.UnmarshalJSON(w.Background.Slope); err != nil {
		return err
	}
	if err := r.Background.Curve.UnmarshalJSON(w.Background.Curve); err != nil {
		return err
	}

	r.Defaults = hypermet.NewPeakDefaults()
	r.peaks = make([]*hypermet.Peak, len(w.Peaks))
	for i, wp := range w.Peaks {
		p, err := unmarshalPeak(wp)
		if err != nil {
			return err
		}
		r.peaks[i] = p
	}

	return r.UpdateIndices()
}
