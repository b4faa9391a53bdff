package astrocore

import "math"

// EqualWithinAbs reports whether a and b differ by no more than tol,
// mirroring gonum/floats.EqualWithinAbs so callers outside this module
// never need to import gonum directly for the common case.
func EqualWithinAbs(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// WrapTwoPi wraps an angle in radians to [0, 2π).
func WrapTwoPi(rad float64) float64 {
	w := math.Mod(rad, 2*math.Pi)
	if w < 0 {
		w += 2 * math.Pi
	}
	return w
}

// WrapPi wraps an angle in radians to [-π, π).
func WrapPi(rad float64) float64 {
	w := WrapTwoPi(rad + math.Pi)
	return w - math.Pi
}

// AngleDiff returns the signed shortest angular difference a-b, wrapped
// to [-π, π), used for angle-wrap-aware observation residuals.
func AngleDiff(a, b float64) float64 {
	return WrapPi(a - b)
}

// KeplerSolveElliptic solves Kepler's equation E - e*sin(E) = M for the
// eccentric anomaly E via Newton-Raphson, seeded at M (at π when e > 0.8). Converges when the
// step is below 1e-12 radians; caps at 32 iterations and returns the last
// iterate with ErrLambertNoConvergence-free "best effort" semantics (the
// loop is used internally by elements.KeplerPropagate, which treats a
// non-convergent return as the current best estimate, matching the
// teacher's SinCosE loop which has no iteration cap failure path either).
func KeplerSolveElliptic(m, e float64) float64 {
	E := m
	if e > 0.8 {
		E = math.Pi
	}
	for i := 0; i < 32; i++ {
		f := E - e*math.Sin(E) - m
		fPrime := 1 - e*math.Cos(E)
		dE := f / fPrime
		E -= dE
		if math.Abs(dE) < 1e-12 {
			break
		}
	}
	return E
}

// KeplerSolveHyperbolic solves the hyperbolic Kepler equation
// e*sinh(H) - H = M for the hyperbolic anomaly H via Newton-Raphson.
func KeplerSolveHyperbolic(m, e float64) float64 {
	H := m
	if e < 1.6 {
		if (m < 0 && m > -math.Pi) || m > math.Pi {
			H = m - e
		} else {
			H = m + e
		}
	} else {
		if e < 3.6 && math.Abs(m) > math.Pi {
			H = m - sign(m)*e
		} else {
			H = m / (e - 1)
		}
	}
	for i := 0; i < 32; i++ {
		f := e*math.Sinh(H) - H - m
		fPrime := e*math.Cosh(H) - 1
		dH := f / fPrime
		H -= dH
		if math.Abs(dH) < 1e-12 {
			break
		}
	}
	return H
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// CentralDifferenceJacobian computes the m x n Jacobian of f at x via a
// central finite difference with the given per-component step.
// PropagatorPairs and the batch-OD solver form their own central
// differences and do not call it.
func CentralDifferenceJacobian(f func([]float64) []float64, x []float64, step float64) *Matrix {
	n := len(x)
	base := f(x)
	m := len(base)
	jac := NewMatrix(m, n, nil)
	for j := 0; j < n; j++ {
		xHi := append([]float64(nil), x...)
		xLo := append([]float64(nil), x...)
		xHi[j] += step
		xLo[j] -= step
		hi := f(xHi)
		lo := f(xLo)
		for i := 0; i < m; i++ {
			jac.Set(i, j, (hi[i]-lo[i])/(2*step))
		}
	}
	return jac
}
