// Package elements converts between Cartesian state vectors and the two
// orbital-element representations the core supports: classical
// (a, e, i, Ω, ω, ν) and equinoctial (af, ag, L, n, χ, ψ). The RV2COE and
// COE2RV algorithms are adapted from legacy/smd/orbit.go's Elements() and
// NewOrbitFromOE(), both cited there as Vallado, 4th ed., pp.113/118.
package elements

import (
	"math"

	"github.com/kestrel-space/astrocore"
	"github.com/gonum/floats"
)

// Precision epsilons, carried over from the teacher's tiered epsilon
// scheme (legacy/smd/orbit.go's eccentricityε/angleε/distanceε).
const (
	EccentricityEpsilon = 5e-5
	AngleEpsilon         = (5e-3 / 360) * (2 * math.Pi)
)

// ClassicalElements is the data model's (epoch, a, e, i, Ω, ω, ν, μ)
// tuple. Invariant: 0 ≤ e; 0 ≤ i ≤ π; Ω, ω, ν ∈ [0, 2π); for e < 1, a > 0.
type ClassicalElements struct {
	Epoch          astrocore.Epoch
	SemiMajorAxis  float64 // a, km
	Eccentricity   float64 // e
	Inclination    float64 // i, rad
	RAAN           float64 // Ω, rad
	ArgPerigee     float64 // ω, rad
	TrueAnomaly    float64 // ν, rad
	GM             float64 // μ, km^3/s^2
}

// EquinoctialElements is the data model's non-singular element set,
// suited to near-circular, near-equatorial orbits where classical ω/Ω
// are ill-defined.
type EquinoctialElements struct {
	Epoch astrocore.Epoch
	Af    float64
	Ag    float64
	L     float64 // true longitude, rad
	N     float64 // mean motion, rad/s
	Chi   float64
	Psi   float64
	GM    float64
	Fr    float64 // retrograde factor, +1 or -1
}

// ToCartesian converts classical elements to a Cartesian StateVector in
// the given inertial frame, following COE2RV (Vallado 4th ed. p.118) as
// adapted from NewOrbitFromOE. It panics for parabolic/hyperbolic
// (e ≈ 1 or e > 1) input, matching the teacher's own panic there — those
// orbits must be constructed directly from R, V instead.
func (c ClassicalElements) ToCartesian(frame astrocore.Frame) astrocore.StateVector {
	e, i, Omega, omega, nu := c.Eccentricity, c.Inclination, c.RAAN, c.ArgPerigee, c.TrueAnomaly
	if e < EccentricityEpsilon {
		if i < AngleEpsilon {
			Omega, omega = 0, 0
		} else {
			omega = 0
		}
	} else if i < AngleEpsilon {
		Omega = 0
	}
	if floats.EqualWithinAbs(e, 1, EccentricityEpsilon) || e > 1 {
		panic("elements: ToCartesian requires e < 1; construct hyperbolic/parabolic orbits from R, V directly")
	}
	p := c.SemiMajorAxis * (1 - e*e)
	muOverP := math.Sqrt(c.GM / p)
	sinNu, cosNu := math.Sincos(nu)
	rPQW := astrocore.NewVector3(p*cosNu/(1+e*cosNu), p*sinNu/(1+e*cosNu), 0)
	vPQW := astrocore.NewVector3(-muOverP*sinNu, muOverP*(e+cosNu), 0)

	rIJK := rot313(-omega, -i, -Omega, rPQW)
	vIJK := rot313(-omega, -i, -Omega, vPQW)

	return astrocore.NewStateVector(c.Epoch, rIJK, vIJK, frame)
}

// FromCartesian computes the classical elements of a Cartesian
// StateVector, following RV2COE (Vallado 4th ed. p.113) as adapted from
// Orbit.Elements(). Returns ErrFrameNotInertial if sv is not inertial.
func FromCartesian(sv astrocore.StateVector, mu float64) (ClassicalElements, error) {
	if err := sv.RequireInertial(); err != nil {
		return ClassicalElements{}, err
	}
	r, v := sv.Position, sv.Velocity
	h := r.Cross(v)
	nVec := astrocore.NewVector3(0, 0, 1).Cross(h)
	rNorm, vNorm := r.Norm(), v.Norm()
	xi := vNorm*vNorm/2 - mu/rNorm
	a := -mu / (2 * xi)

	eVec := astrocore.NewVector3(
		((vNorm*vNorm-mu/rNorm)*r.X-r.Dot(v)*v.X)/mu,
		((vNorm*vNorm-mu/rNorm)*r.Y-r.Dot(v)*v.Y)/mu,
		((vNorm*vNorm-mu/rNorm)*r.Z-r.Dot(v)*v.Z)/mu,
	)
	e := eVec.Norm()
	if e < EccentricityEpsilon {
		e = EccentricityEpsilon
	}

	inc := math.Acos(h.Z / h.Norm())
	if inc < AngleEpsilon {
		inc = AngleEpsilon
	}

	omega := math.Acos(nVec.Dot(eVec) / (nVec.Norm() * e))
	if math.IsNaN(omega) {
		omega = 0
	}
	if eVec.Z < 0 {
		omega = 2*math.Pi - omega
	}

	raan := math.Acos(nVec.X / nVec.Norm())
	if math.IsNaN(raan) {
		raan = AngleEpsilon
	}
	if nVec.Y < 0 {
		raan = 2*math.Pi - raan
	}

	cosNu := eVec.Dot(r) / (e * rNorm)
	if absCosNu := math.Abs(cosNu); absCosNu > 1 && floats.EqualWithinAbs(absCosNu, 1, 1e-12) {
		cosNu = sign(cosNu)
	}
	nu := math.Acos(cosNu)
	if math.IsNaN(nu) {
		nu = 0
	}
	if r.Dot(v) < 0 {
		nu = 2*math.Pi - nu
	}

	return ClassicalElements{
		Epoch:         sv.Epoch,
		SemiMajorAxis: a,
		Eccentricity:  e,
		Inclination:   math.Mod(inc, 2*math.Pi),
		RAAN:          math.Mod(raan, 2*math.Pi),
		ArgPerigee:    math.Mod(omega, 2*math.Pi),
		TrueAnomaly:   math.Mod(nu, 2*math.Pi),
		GM:            mu,
	}, nil
}

// KeplerPropagate advances the mean anomaly linearly by dt seconds and
// solves Kepler's equation for the resulting true anomaly, preserving
// every other element (the analytic two-body propagation step behind
// propagation.KeplerPropagator).
func (c ClassicalElements) KeplerPropagate(dt float64) ClassicalElements {
	n := math.Sqrt(c.GM / math.Pow(math.Abs(c.SemiMajorAxis), 3))
	E0 := trueToEccentric(c.TrueAnomaly, c.Eccentricity)
	M0 := E0 - c.Eccentricity*math.Sin(E0)
	M := M0 + n*dt
	E := astrocore.KeplerSolveElliptic(astrocoreWrap(M), c.Eccentricity)
	nu := eccentricToTrue(E, c.Eccentricity)

	out := c
	out.Epoch = c.Epoch.Roll(dt)
	out.TrueAnomaly = nu
	return out
}

func astrocoreWrap(m float64) float64 {
	return math.Mod(m, 2*math.Pi)
}

func trueToEccentric(nu, e float64) float64 {
	sinNu, cosNu := math.Sincos(nu)
	denom := 1 + e*cosNu
	sinE := math.Sqrt(1-e*e) * sinNu / denom
	cosE := (e + cosNu) / denom
	return math.Atan2(sinE, cosE)
}

func eccentricToTrue(E, e float64) float64 {
	sinNu := math.Sqrt(1-e*e) * math.Sin(E) / (1 - e*math.Cos(E))
	cosNu := (math.Cos(E) - e) / (1 - e*math.Cos(E))
	return astrocore.WrapTwoPi(math.Atan2(sinNu, cosNu))
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// ToEquinoctial converts classical elements to the non-singular
// equinoctial set, well-posed even for circular/equatorial orbits where
// ω and Ω individually are undefined.
func (c ClassicalElements) ToEquinoctial() EquinoctialElements {
	fr := 1.0
	if c.Inclination > math.Pi/2 {
		fr = -1.0
	}
	return EquinoctialElements{
		Epoch: c.Epoch,
		Af:    c.Eccentricity * math.Cos(c.ArgPerigee+fr*c.RAAN),
		Ag:    c.Eccentricity * math.Sin(c.ArgPerigee+fr*c.RAAN),
		L:     astrocore.WrapTwoPi(c.ArgPerigee + fr*c.RAAN + c.TrueAnomaly),
		N:     math.Sqrt(c.GM / math.Pow(c.SemiMajorAxis, 3)),
		Chi:   math.Tan(c.Inclination/2) * math.Cos(c.RAAN),
		Psi:   math.Tan(c.Inclination/2) * math.Sin(c.RAAN),
		GM:    c.GM,
		Fr:    fr,
	}
}

// ToClassical converts equinoctial elements back to the classical set.
func (e EquinoctialElements) ToClassical() ClassicalElements {
	ecc := math.Hypot(e.Af, e.Ag)
	raan := math.Atan2(e.Psi, e.Chi)
	argLat := math.Atan2(e.Ag, e.Af) - e.Fr*raan
	inc := 2 * math.Atan(math.Hypot(e.Chi, e.Psi))
	nu := astrocore.WrapTwoPi(e.L - e.Fr*raan - argLat)
	a := math.Pow(e.GM/(e.N*e.N), 1.0/3.0)
	return ClassicalElements{
		Epoch:         e.Epoch,
		SemiMajorAxis: a,
		Eccentricity:  ecc,
		Inclination:   astrocore.WrapTwoPi(inc),
		RAAN:          astrocore.WrapTwoPi(raan),
		ArgPerigee:    astrocore.WrapTwoPi(argLat),
		TrueAnomaly:   nu,
		GM:            e.GM,
	}
}

// rot313 applies the 3-1-3 Euler rotation sequence used by COE2RV/RV2COE
// to a vector, matching legacy/smd/rotation.go's Rot313Vec.
func rot313(omega, inc, raan float64, v astrocore.Vector3) astrocore.Vector3 {
	return r3(raan, r1(inc, r3(omega, v)))
}

func r1(angle float64, v astrocore.Vector3) astrocore.Vector3 {
	s, c := math.Sincos(angle)
	return astrocore.NewVector3(
		v.X,
		c*v.Y+s*v.Z,
		-s*v.Y+c*v.Z,
	)
}

func r3(angle float64, v astrocore.Vector3) astrocore.Vector3 {
	s, c := math.Sincos(angle)
	return astrocore.NewVector3(
		c*v.X+s*v.Y,
		-s*v.X+c*v.Y,
		v.Z,
	)
}
