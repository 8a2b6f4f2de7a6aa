// Package uncertain implements UncertainDouble: a value paired with its
// 1-sigma uncertainty, with the arithmetic propagation rules spec.md §3
// specifies.
package uncertain

import (
	"fmt"
	"math"
	"strings"
)

// Double is a (value, sigma) pair with standard first-order error
// propagation.
type Double struct {
	Value float64
	Sigma float64
}

// New builds a Double, taking the absolute value of sigma per the source
// convention (a negative sigma has no meaning).
func New(value, sigma float64) Double {
	return Double{Value: value, Sigma: math.Abs(sigma)}
}

// IsFinite reports whether the value is finite; an infinite or NaN sigma
// is still considered "finite" in the value sense used by Error.
func (d Double) IsFinite() bool { return !math.IsNaN(d.Value) && !math.IsInf(d.Value, 0) }

// Error returns the relative uncertainty |sigma/value|, or +Inf if value
// is zero, or NaN if the value itself is non-finite.
func (d Double) Error() float64 {
	if !d.IsFinite() {
		return math.NaN()
	}
	if d.Value != 0 {
		return math.Abs(d.Sigma / d.Value)
	}
	return math.Inf(1)
}

// Add propagates uncertainty as sqrt(sigma1^2 + sigma2^2).
func (d Double) Add(o Double) Double {
	return Double{Value: d.Value + o.Value, Sigma: additiveSigma(d, o)}
}

// Sub propagates uncertainty as sqrt(sigma1^2 + sigma2^2).
func (d Double) Sub(o Double) Double {
	return Double{Value: d.Value - o.Value, Sigma: additiveSigma(d, o)}
}

func additiveSigma(d, o Double) float64 {
	if !d.IsFinite() || !o.IsFinite() {
		return math.NaN()
	}
	return math.Sqrt(d.Sigma*d.Sigma + o.Sigma*o.Sigma)
}

// Mul propagates uncertainty using the standard first-order product rule.
func (d Double) Mul(o Double) Double {
	value := d.Value * o.Value
	sigma := math.NaN()
	if d.IsFinite() && o.IsFinite() {
		sigma = math.Sqrt(square(d.Value)*square(o.Sigma) + square(o.Value)*square(d.Sigma))
	}
	return Double{Value: value, Sigma: sigma}
}

// Div propagates uncertainty using the standard first-order quotient rule.
func (d Double) Div(o Double) Double {
	value := d.Value / o.Value
	sigma := math.NaN()
	if d.IsFinite() && o.IsFinite() {
		sigma = math.Sqrt(square(d.Sigma/o.Value) + square(d.Value*o.Sigma/(o.Value*o.Value)))
	}
	return Double{Value: value, Sigma: sigma}
}

// Scale multiplies by a plain scalar, scaling sigma linearly.
func (d Double) Scale(k float64) Double {
	return Double{Value: d.Value * k, Sigma: math.Abs(d.Sigma * k)}
}

// Almost reports whether two Doubles agree within either one's sigma.
func (d Double) Almost(o Double) bool {
	if d.Value == o.Value {
		return true
	}
	delta := math.Abs(d.Value - o.Value)
	if !math.IsNaN(d.Sigma) && !math.IsInf(d.Sigma, 0) && delta <= d.Sigma {
		return true
	}
	if !math.IsNaN(o.Sigma) && !math.IsInf(o.Sigma, 0) && delta <= o.Sigma {
		return true
	}
	return false
}

// Average combines a list of Doubles into the midpoint of their
// min/max-extended ranges, matching the source's envelope-averaging rule.
func Average(ds []Double) Double {
	if len(ds) == 0 {
		return Double{}
	}
	sum := 0.0
	for _, d := range ds {
		sum += d.Value
	}
	avg := sum / float64(len(ds))
	min, max := avg, avg
	for _, d := range ds {
		if math.IsInf(d.Sigma, 0) || math.IsNaN(d.Sigma) {
			continue
		}
		if d.Value-d.Sigma < min {
			min = d.Value - d.Sigma
		}
		if d.Value+d.Sigma > max {
			max = d.Value + d.Sigma
		}
	}
	return Double{Value: (max + min) * 0.5, Sigma: (max - min) * 0.5}
}

func square(x float64) float64 { return x * x }

// orderOf returns floor(log10(|x|)), the decimal order of magnitude, or 0
// for zero/non-finite input.
func orderOf(x float64) int {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int(math.Floor(math.Log10(math.Abs(x))))
}

// exponent returns the shared power-of-ten exponent used to render value
// and sigma together, or 0 if both are within a "normal" printable range.
func (d Double) exponent() int {
	target := orderOf(d.Value)
	if o := orderOf(d.Sigma); o > target {
		target = o
	}
	if target > 5 || target < -3 {
		return target
	}
	return 0
}

// String renders "value(uncert)×10^exp", matching the source's
// superscript-exponent formatting; non-finite values render as "?".
func (d Double) String() string {
	if !d.IsFinite() {
		return "?"
	}
	exp := d.exponent()
	scale := math.Pow(10, float64(exp))

	var b strings.Builder
	if math.IsInf(d.Sigma, 0) {
		b.WriteString("~")
	}
	fmt.Fprintf(&b, "%g", d.Value/scale)

	if !math.IsNaN(d.Sigma) && d.Sigma != 0 {
		fmt.Fprintf(&b, "(%g)", d.Sigma/scale)
	}
	if exp != 0 {
		fmt.Fprintf(&b, "×10%s", superscript(exp))
	}
	return b.String()
}

var superDigits = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
	'-': '⁻',
}

func superscript(n int) string {
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for _, r := range s {
		if sup, ok := superDigits[r]; ok {
			b.WriteRune(sup)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
