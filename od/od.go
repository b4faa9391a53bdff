// Package od implements orbit determination: batch least-squares
// (Gauss-Newton) refinement of a nominal state against a set of
// observations, and the four initial-OD algorithms of §4.7 (Gibbs,
// Herrick-Gibbs, Lambert, Gooding). Grounded on legacy/smd/estimate.go's
// normal-equation/STM iteration pattern for the batch solver and
// legacy/smd/tools.go's universal-variable Lambert solver, ported from
// mat64.Vector/time.Duration onto this repo's Vector3/float64-seconds
// types.
package od

import (
	"math"
	"sort"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/elements"
	"github.com/kestrel-space/astrocore/observation"
	"github.com/kestrel-space/astrocore/propagation"
	"github.com/gonum/floats"
)

// ---- Batch least-squares ----

// BatchResult is the outcome of a batch least-squares solve, per §4.7.
type BatchResult struct {
	State      astrocore.StateVector
	Covariance *astrocore.Matrix // pseudoinverse of AᵀWA
	Iterations int
	Converged  bool
}

// BatchLeastSquares runs Gauss-Newton on the stacked residual vector of
// obs against the propagator build from the nominal state, per §4.7:
// each iteration evaluates residuals/Jacobians for every observation via
// pairs, forms the normal equation (AᵀWA)δx = AᵀWb, updates the nominal
// state, and stops on weighted-RMS change ≤ tol or the iteration cap.
// Observations are sorted by ascending epoch first, per §5's ordering
// contract.
func BatchLeastSquares(
	nominal astrocore.StateVector,
	obs []observation.Observation,
	build func(astrocore.StateVector) propagation.Propagator,
	tol float64,
	maxIterations int,
) (BatchResult, error) {
	sorted := make([]observation.Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Epoch().Before(sorted[j].Epoch())
	})

	state := nominal
	var lastRMS float64
	var normalInfo *astrocore.Matrix

	for iter := 0; iter < maxIterations; iter++ {
		p := build(state)
		pairs := observation.NewPropagatorPairs(state, build,
			observation.DefaultJacobianStepKm, observation.DefaultJacobianStepKmS)

		var ata *astrocore.Matrix
		var atb *astrocore.Vector
		var weightedSumSq float64
		var totalRows int

		for _, o := range sorted {
			if _, err := p.Propagate(o.Epoch()); err != nil {
				return BatchResult{}, err
			}
			if err := pairs.Propagate(o.Epoch()); err != nil {
				return BatchResult{}, err
			}
			b, err := o.Residual(p)
			if err != nil {
				return BatchResult{}, err
			}
			a, err := o.Jacobian(pairs)
			if err != nil {
				return BatchResult{}, err
			}
			w := o.NoiseInverse()

			at := a.T()
			atw := at.Mul(w)
			contribution := atw.Mul(a)
			if ata == nil {
				ata = contribution
			} else {
				ata = ata.Add(contribution)
			}
			bVec := astrocore.NewVector(b.Len(), b.Slice())
			atwb := atw.MulVec(bVec)
			if atb == nil {
				atb = atwb
			} else {
				atb = atb.Add(atwb)
			}
			for i := 0; i < b.Len(); i++ {
				wv := w.At(i, i)
				weightedSumSq += wv * b.At(i) * b.At(i)
				totalRows++
			}
		}

		rms := math.Sqrt(weightedSumSq / float64(maxInt(totalRows, 1)))
		normalInfo = ata

		solved, err := ata.Solve(columnOf(atb))
		if err != nil {
			return BatchResult{}, err
		}
		s := state.Slice()
		for i := range s {
			s[i] += solved.At(i, 0)
		}
		state = astrocore.StateVectorFromSlice(s, state.Epoch, state.Frame)

		if iter > 0 && floats.EqualWithinAbs(rms, lastRMS, tol) {
			cov, err := normalInfo.PseudoInverse()
			if err != nil {
				return BatchResult{}, err
			}
			return BatchResult{State: state, Covariance: cov, Iterations: iter + 1, Converged: true}, nil
		}
		lastRMS = rms
	}
	cov, err := normalInfo.PseudoInverse()
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{State: state, Covariance: cov, Iterations: maxIterations, Converged: false}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func columnOf(v *astrocore.Vector) *astrocore.Matrix {
	m := astrocore.NewMatrix(v.Len(), 1, nil)
	for i := 0; i < v.Len(); i++ {
		m.Set(i, 0, v.At(i))
	}
	return m
}

// ---- Gibbs ----

// coplanarToleranceRad is the 5-degree coplanarity gate of §4.7.
const coplanarToleranceRad = 5 * math.Pi / 180

// Gibbs solves for the velocity at r2 (the middle of three coplanar
// inertial positions) by combining vector cross-products of the three
// radii, per §4.7. Returns ErrNotCoplanar if the three positions span
// more than 5° from coplanar.
func Gibbs(r1, r2, r3 astrocore.Vector3, mu float64) (astrocore.Vector3, error) {
	normal := r1.Cross(r2)
	if normal.Norm() > 1e-12 {
		angle := math.Acos(clampUnit(r3.Unit().Dot(normal.Unit())))
		if math.Abs(angle-math.Pi/2) > coplanarToleranceRad {
			return astrocore.Vector3{}, astrocore.NewError(astrocore.ErrNotCoplanar, "positions deviate from coplanar by more than 5 degrees")
		}
	}

	n1 := r2.Cross(r3)
	n2 := r3.Cross(r1)
	n3 := r1.Cross(r2)
	nVec := n1.Add(n2).Add(n3)
	if nVec.Norm() < 1e-12 {
		return astrocore.Vector3{}, astrocore.NewError(astrocore.ErrNotCoplanar, "degenerate Gibbs geometry")
	}

	s := r1.Scale(r2.Norm() - r3.Norm()).Add(r2.Scale(r3.Norm() - r1.Norm())).Add(r3.Scale(r1.Norm() - r2.Norm()))

	// Standard Gibbs closed form: v2 = sqrt(mu/(|N| |D|)) * ( (D x r2)/|r2| + S ),
	// with D = nVec and N = |r1|(r2 x r3) + |r2|(r3 x r1) + |r3|(r1 x r2).
	nMag := n1.Scale(r1.Norm()).Add(n2.Scale(r2.Norm())).Add(n3.Scale(r3.Norm())).Norm()
	term1 := nVec.Cross(r2).Scale(1 / r2.Norm())
	v2 := term1.Add(s).Scale(math.Sqrt(mu / (nMag * nVec.Norm())))
	return v2, nil
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ---- Herrick-Gibbs ----

// HerrickGibbs solves for the velocity at the middle of three closely-
// spaced (<5°) positions via weighted finite difference, per §4.7.
// epochs are POSIX seconds (t1 < t2 < t3).
func HerrickGibbs(r1, r2, r3 astrocore.Vector3, t1, t2, t3, mu float64) (astrocore.Vector3, error) {
	normal := r1.Cross(r2)
	if normal.Norm() > 1e-12 {
		angle := math.Acos(clampUnit(r3.Unit().Dot(normal.Unit())))
		if math.Abs(angle-math.Pi/2) > coplanarToleranceRad {
			return astrocore.Vector3{}, astrocore.NewError(astrocore.ErrNotCoplanar, "positions deviate from coplanar by more than 5 degrees")
		}
	}

	dt31 := t3 - t1
	dt32 := t3 - t2
	dt21 := t2 - t1

	r1n, r2n, r3n := r1.Norm(), r2.Norm(), r3.Norm()

	a := -dt32 * (1/(dt21*dt31) + mu/(12*r1n*r1n*r1n))
	b := (dt32 - dt21) * (1/(dt21*dt32) + mu/(12*r2n*r2n*r2n))
	c := dt21 * (1/(dt32*dt31) + mu/(12*r3n*r3n*r3n))

	v2 := r1.Scale(a).Add(r2.Scale(b)).Add(r3.Scale(c))
	return v2, nil
}

// ---- Lambert ----

// TransferType selects the Lambert branch: auto-detected short/long
// way, or explicit zero/one-revolution short/long way, mirroring
// legacy/smd/tools.go's TransferType enum.
type TransferType int

const (
	TransferAuto TransferType = iota
	TransferType1             // zero-rev, short way
	TransferType2             // zero-rev, long way
	TransferType3             // one-rev, short way
	TransferType4             // one-rev, long way
)

func (t TransferType) revs() float64 {
	switch t {
	case TransferType3, TransferType4:
		return 1
	default:
		return 0
	}
}

// Lambert solves the universal-variable Lambert problem: given initial
// and final position vectors and a time of flight, returns the needed
// initial and final velocities, per §4.7. Ported directly from
// legacy/smd/tools.go's Lambert onto Vector3/float64-seconds.
func Lambert(ri, rf astrocore.Vector3, tof float64, ttype TransferType, mu float64) (vi, vf astrocore.Vector3, err error) {
	const lambertTol = 1e-6
	const maxIterations = 10000

	rMagI := ri.Norm()
	rMagF := rf.Norm()
	cosDNu := ri.Dot(rf) / (rMagI * rMagF)

	nuI := math.Atan2(ri.Y, ri.X)
	nuF := math.Atan2(rf.Y, rf.X)
	dm := 1.0
	switch ttype {
	case TransferType2, TransferType4:
		dm = -1.0
	case TransferAuto:
		dNu := nuF - nuI
		if dNu > 2*math.Pi {
			dNu -= 2 * math.Pi
		} else if dNu < 0 {
			dNu += 2 * math.Pi
		}
		if dNu > math.Pi {
			dm = -1.0
		}
	}

	A := dm * math.Sqrt(rMagI*rMagF*(1+cosDNu))
	if math.Abs(A) < 1e-9 {
		return astrocore.Vector3{}, astrocore.Vector3{}, astrocore.NewError(astrocore.ErrLambertNoConvergence, "cannot compute trajectory: A ~= 0")
	}

	phiUp := 4 * math.Pi * math.Pi * (ttype.revs() + 1) * (ttype.revs() + 1)
	phiLow := -4 * math.Pi

	if ttype.revs() > 0 {
		dtMin := 4000 * 24 * 3600.0
		phiBound := 0.0
		for phi := 15.0; phi < phiUp; phi += 0.1 {
			c2 := (1 - math.Cos(math.Sqrt(phi))) / phi
			c3 := (math.Sqrt(phi) - math.Sin(math.Sqrt(phi))) / math.Sqrt(math.Pow(phi, 3))
			y := rMagI + rMagF + A*(phi*c3-1)/math.Sqrt(c2)
			chi := math.Sqrt(y / c2)
			dt := (math.Pow(chi, 3)*c3 + A*math.Sqrt(y)) / math.Sqrt(mu)
			if dtMin > dt {
				dtMin = dt
				phiBound = phi
			}
		}
		if ttype == TransferType3 {
			phiLow = phiUp
			phiUp = phiBound
		} else if ttype == TransferType4 {
			phiLow = phiBound
		}
	}

	c2 := 0.5
	c3 := 1.0 / 6
	var dt, y, phi float64
	iteration := 0
	for math.Abs(dt-tof) > lambertTol {
		if iteration > maxIterations {
			return astrocore.Vector3{}, astrocore.Vector3{}, astrocore.NewError(astrocore.ErrLambertNoConvergence, "did not converge after %d iterations", maxIterations)
		}
		iteration++
		y = rMagI + rMagF + A*(phi*c3-1)/math.Sqrt(c2)
		if A > 0 && y < 0 {
			tmpIt := 0
			for y < 0 {
				phi += 0.1
				y = rMagI + rMagF + A*(phi*c3-1)/math.Sqrt(c2)
				if tmpIt > maxIterations {
					return astrocore.Vector3{}, astrocore.Vector3{}, astrocore.NewError(astrocore.ErrLambertNoConvergence, "did not converge increasing phi")
				}
				tmpIt++
			}
		}
		chi := math.Sqrt(y / c2)
		dt = (math.Pow(chi, 3)*c3 + A*math.Sqrt(y)) / math.Sqrt(mu)
		if ttype != TransferType3 {
			if dt <= tof {
				phiLow = phi
			} else {
				phiUp = phi
			}
		} else {
			if dt >= tof {
				phiLow = phi
			} else {
				phiUp = phi
			}
		}
		phi = (phiUp + phiLow) / 2
		switch {
		case phi > lambertTol:
			sp := math.Sqrt(phi)
			sinp, cosp := math.Sincos(sp)
			c2 = (1 - cosp) / phi
			c3 = (sp - sinp) / math.Sqrt(math.Pow(phi, 3))
		case phi < -lambertTol:
			sp := math.Sqrt(-phi)
			c2 = (1 - math.Cosh(sp)) / phi
			c3 = (math.Sinh(sp) - sp) / math.Sqrt(math.Pow(-phi, 3))
		default:
			c2 = 0.5
			c3 = 1.0 / 6
		}
	}

	f := 1 - y/rMagI
	gDot := 1 - y/rMagF
	g := A * math.Sqrt(y/mu)

	vi = rf.Scale(-1).Add(ri.Scale(f * -1)).Scale(-1)
	vi = rf.Sub(ri.Scale(f)).Scale(1 / g)
	vf = ri.Scale(-1).Add(rf.Scale(gDot)).Scale(1 / g)
	return vi, vf, nil
}

// ---- Gooding ----

// GoodingResult is an initial-OD estimate from three optical
// observations, per §4.7.
type GoodingResult struct {
	Position astrocore.Vector3
	Velocity astrocore.Vector3
	RangeAtFirst, RangeAtLast float64
}

// Gooding performs angles-only initial orbit determination from three
// line-of-sight unit vectors and their site positions/epochs,
// parameterized by range guesses at the first and last epoch and
// iterating the middle-observation line-of-sight residual, per §4.7.
// No teacher analogue exists for this solver; it follows the spec's
// algorithm description directly rather than any pack file.
func Gooding(los1, los2, los3 astrocore.Vector3, site1, site2, site3 astrocore.Vector3, t1, t2, t3 float64, mu float64, rangeGuess1, rangeGuess3 float64) (GoodingResult, error) {
	const maxIter = 50
	const tol = 1e-8

	r1Range := rangeGuess1
	r3Range := rangeGuess3

	var v2 astrocore.Vector3
	var r2 astrocore.Vector3

	for iter := 0; iter < maxIter; iter++ {
		r1 := site1.Add(los1.Unit().Scale(r1Range))
		r3 := site3.Add(los3.Unit().Scale(r3Range))

		vi, _, err := Lambert(r1, r3, t3-t1, TransferAuto, mu)
		if err != nil {
			return GoodingResult{}, err
		}

		// Propagate the Lambert solution to t2 via Kepler's equation on
		// its own classical elements, then check the predicted
		// direction against the observed line-of-sight at t2.
		r2Pred, v2Pred, err := keplerPropagateCartesian(r1, vi, t2-t1, mu)
		if err != nil {
			return GoodingResult{}, err
		}
		r2 = r2Pred
		v2 = v2Pred

		predictedLOS := r2.Sub(site2).Unit()
		residual := predictedLOS.Sub(los2.Unit())
		if residual.Norm() < tol {
			return GoodingResult{Position: r2, Velocity: v2, RangeAtFirst: r1Range, RangeAtLast: r3Range}, nil
		}

		// Finite-difference correction on (r1Range, r3Range) against the
		// two-component reduction of the LOS residual from losResidual2D.
		const step = 1.0
		jac := astrocore.NewMatrix(2, 2, nil)
		base := losResidual2D(los2, predictedLOS)
		for col := 0; col < 2; col++ {
			r1p, r3p := r1Range, r3Range
			if col == 0 {
				r1p += step
			} else {
				r3p += step
			}
			r1pp := site1.Add(los1.Unit().Scale(r1p))
			r3pp := site3.Add(los3.Unit().Scale(r3p))
			viP, _, err := Lambert(r1pp, r3pp, t3-t1, TransferAuto, mu)
			if err != nil {
				continue
			}
			r2P, _, err := keplerPropagateCartesian(r1pp, viP, t2-t1, mu)
			if err != nil {
				continue
			}
			predP := r2P.Sub(site2).Unit()
			resP := losResidual2D(los2, predP)
			jac.Set(0, col, (resP[0]-base[0])/step)
			jac.Set(1, col, (resP[1]-base[1])/step)
		}
		b := astrocore.NewMatrix(2, 1, []float64{-base[0], -base[1]})
		delta, err := jac.Solve(b)
		if err != nil {
			return GoodingResult{}, astrocore.NewError(astrocore.ErrLambertNoConvergence, "Gooding Jacobian is singular")
		}
		r1Range += delta.At(0, 0)
		r3Range += delta.At(1, 0)
		if r1Range < 0 {
			r1Range = 1
		}
		if r3Range < 0 {
			r3Range = 1
		}
	}
	return GoodingResult{}, astrocore.NewError(astrocore.ErrLambertNoConvergence, "Gooding did not converge after %d iterations", maxIter)
}

func losResidual2D(observed, predicted astrocore.Vector3) [2]float64 {
	d := predicted.Sub(observed.Unit())
	return [2]float64{d.X + d.Z, d.Y + d.Z}
}

// keplerPropagateCartesian propagates (r, v) by dt seconds of two-body
// motion via the classical-element route: convert to classical
// elements, step the mean anomaly, convert back. Used by Gooding to
// evaluate its Lambert-arc guess at the middle observation epoch.
func keplerPropagateCartesian(r, v astrocore.Vector3, dt, mu float64) (astrocore.Vector3, astrocore.Vector3, error) {
	sv := astrocore.NewStateVector(astrocore.NewEpoch(0), r, v, astrocore.FrameJ2000)
	ce, err := elements.FromCartesian(sv, mu)
	if err != nil {
		return astrocore.Vector3{}, astrocore.Vector3{}, err
	}
	next := ce.KeplerPropagate(dt)
	out := next.ToCartesian(astrocore.FrameJ2000)
	return out.Position, out.Velocity, nil
}
