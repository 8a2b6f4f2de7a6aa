package param

import "github.com/xhhuango/json"

// wireParameter is the lossless JSON rendering of a Parameter's fit state.
// The Transform itself is not serialized here: callers reconstruct a
// Parameter with the correct Transform (bounds are a property of the
// owning component, e.g. Peak's amplitude is always Positive) and then
// restore x/ToFit/uncert from the wire form.
type wireParameter struct {
	X      float64 `json:"x"`
	ToFit  bool    `json:"to_fit"`
	Uncert float64 `json:"uncert_value"`
}

// MarshalJSON implements json.Marshaler.
func (p *Parameter) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireParameter{X: p.x, ToFit: p.ToFit, Uncert: p.uncert})
}

// UnmarshalJSON implements json.Unmarshaler. The Transform field must
// already be set by the caller (via New) before unmarshaling; only the
// fit state is restored.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	var w wireParameter
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.x = w.X
	p.ToFit = w.ToFit
	p.uncert = w.Uncert
	p.index = UnassignedIndex
	return nil
}
