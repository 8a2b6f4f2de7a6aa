package optimize

import "math"

// lineObjective evaluates a Fittable's chi-square and its derivative along
// a fixed direction from a fixed base point, so the line search only ever
// deals with a scalar function of the step length t.
type lineObjective struct {
	f    Fittable
	x0   []float64
	dir  []float64
	xt   []float64
	grad []float64
}

func newLineObjective(f Fittable, x0, dir []float64) *lineObjective {
	n := len(x0)
	return &lineObjective{f: f, x0: x0, dir: dir, xt: make([]float64, n), grad: make([]float64, n)}
}

func (lo *lineObjective) pointAt(t float64) []float64 {
	for i := range lo.xt {
		lo.xt[i] = lo.x0[i] + t*lo.dir[i]
	}
	return lo.xt
}

// value is f(x0 + t*dir).
func (lo *lineObjective) value(t float64) float64 {
	return lo.f.ChiSq(lo.pointAt(t))
}

// deriv is d/dt f(x0 + t*dir) = grad(x0+t*dir) . dir.
func (lo *lineObjective) deriv(t float64) float64 {
	lo.f.ChiSqGradient(lo.pointAt(t), lo.grad)
	d := 0.0
	for i := range lo.grad {
		d += lo.grad[i] * lo.dir[i]
	}
	return d
}

func signOf(mag, sgn float64) float64 {
	if sgn >= 0 {
		return math.Abs(mag)
	}
	return -math.Abs(mag)
}

// bracket implements golden-ratio bracket expansion with parabolic
// interpolation shortcuts, mirroring the reference optimizer's Bracket().
// It returns three points ax < bx-ish < cx (not necessarily monotonic in
// value-space ordering terms, but satisfying fb <= fa and fb <= fc) and
// their function values.
func bracket(value func(float64) float64, ax, bx float64, cfg Config) (a, b, c, fa, fb, fc float64) {
	gold := cfg.BracketGoldenRatio
	glimit := cfg.BracketGlimit
	tiny := cfg.BracketTiny

	fa, fb = value(ax), value(bx)
	if fb > fa {
		ax, bx = bx, ax
		fa, fb = fb, fa
	}
	cx := bx + gold*(bx-ax)
	fcx := value(cx)

	for iter := 0; fb >= fcx && iter < cfg.BracketMaxIterations; iter++ {
		r := (bx - ax) * (fb - fcx)
		q := (bx - cx) * (fb - fa)
		denom := q - r
		denom = 2 * signOf(math.Max(math.Abs(denom), tiny), denom)
		u := bx - ((bx-cx)*q-(bx-ax)*r)/denom
		ulim := bx + glimit*(cx-bx)

		var fu float64
		switch {
		case (bx-u)*(u-cx) > 0:
			fu = value(u)
			if fu < fcx {
				ax, bx = bx, u
				fa, fb = fb, fu
				return ax, bx, cx, fa, fb, fcx
			} else if fu > fb {
				cx, fcx = u, fu
				return ax, bx, cx, fa, fb, fcx
			}
			u = cx + gold*(cx-bx)
			fu = value(u)
		case (cx-u)*(u-ulim) > 0:
			fu = value(u)
			if fu < fcx {
				bx, cx = cx, u
				u = cx + gold*(cx-bx)
				fb, fcx = fcx, fu
				fu = value(u)
			}
		case (u-ulim)*(ulim-cx) >= 0:
			u = ulim
			fu = value(u)
		default:
			u = cx + gold*(cx-bx)
			fu = value(u)
		}
		ax, bx, cx = bx, cx, u
		fa, fb, fcx = fb, fcx, fu
	}
	return ax, bx, cx, fa, fb, fcx
}

// brentDeriv is a derivative-aware Brent line minimizer (the classical
// "dbrent" algorithm): it uses a secant step built from function
// derivatives when safe, falling back to bisection
// otherwise, mirroring the reference optimizer's BrentDeriv(). exhausted
// reports whether the iteration budget ran out before either convergence
// test below fired.
func brentDeriv(lo *lineObjective, ax, bx, cx float64, tol float64, cfg Config) (xmin, fmin float64, exhausted bool) {
	const zeps = 1e-10

	a, b := ax, cx
	if a > b {
		a, b = b, a
	}
	x, w, v := bx, bx, bx
	fx := lo.value(x)
	fw, fv := fx, fx
	dx := lo.deriv(x)
	dw, dv := dx, dx

	var d, e float64
	exhausted = true

	for iter := 0; iter < cfg.BrentMaxIterations; iter++ {
		xm := 0.5 * (a + b)
		tol1 := tol*math.Abs(x) + zeps
		tol2 := 2 * tol1
		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			exhausted = false
			break
		}

		if math.Abs(e) > tol1 {
			d1 := 2 * (b - a)
			d2 := d1
			if dw != dx {
				d1 = (w - x) * dx / (dx - dw)
			}
			if dv != dx {
				d2 = (v - x) * dx / (dx - dv)
			}
			u1 := x + d1
			u2 := x + d2
			ok1 := (a-u1)*(u1-b) > 0 && dx*d1 <= 0
			ok2 := (a-u2)*(u2-b) > 0 && dx*d2 <= 0
			olde := e
			e = d

			switch {
			case ok1 && ok2:
				d = d1
				if math.Abs(d1) >= math.Abs(d2) {
					d = d2
				}
			case ok1:
				d = d1
			case ok2:
				d = d2
			default:
				if dx >= 0 {
					e = a - x
				} else {
					e = b - x
				}
				d = 0.5 * e
			}

			if (ok1 || ok2) && math.Abs(d) <= math.Abs(0.5*olde) {
				u := x + d
				if u-a < tol2 || b-u < tol2 {
					d = signOf(tol1, xm-x)
				}
			} else if ok1 || ok2 {
				if dx >= 0 {
					e = a - x
				} else {
					e = b - x
				}
				d = 0.5 * e
			}
		} else {
			if dx >= 0 {
				e = a - x
			} else {
				e = b - x
			}
			d = 0.5 * e
		}

		var u, fu float64
		if math.Abs(d) >= tol1 {
			u = x + d
			fu = lo.value(u)
		} else {
			u = x + signOf(tol1, d)
			fu = lo.value(u)
			if fu > fx {
				exhausted = false
				break
			}
		}
		du := lo.deriv(u)

		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
			dv, dw, dx = dw, dx, du
		} else {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, w = w, u
				fv, fw = fw, fu
				dv, dw = dw, du
			} else if fu <= fv || v == x || v == w {
				v = u
				fv = fu
				dv = du
			}
		}
	}
	return x, fx, exhausted
}

// linMin performs a full line minimization from x0 along dir, writing the
// minimizing point into xOut and returning the objective value there and
// whether the Brent iteration budget was exhausted.
func linMin(f Fittable, x0, dir []float64, cfg Config, xOut []float64) (float64, bool) {
	lo := newLineObjective(f, x0, dir)
	ax, bx, cx, _, _, _ := bracket(lo.value, 0, 1, cfg)
	xmin, fmin, exhausted := brentDeriv(lo, ax, bx, cx, cfg.Epsilon, cfg)
	point := lo.pointAt(xmin)
	copy(xOut, point)
	return fmin, exhausted
}
