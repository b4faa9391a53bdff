// Package frames implements the core's reference-frame conversions:
// precession, nutation, sidereal rotation, polar motion, and the
// geodetic/relative-frame transforms built on top of them. Rotation
// composition follows legacy/smd/rotation.go's R1/R2/R3 style; the
// precession/nutation series themselves are transcribed directly from
// the IAU 1976/1980 reports against this module's own float64/Vector3
// types rather than imported from soniakeys/meeus's v3 nutation/precess
// subpackages, which are built on github.com/soniakeys/unit's typed
// angles — a type system this repo does not otherwise use (see
// DESIGN.md's frames entry for the full justification).
package frames

import (
	"math"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/eop"
)

const arcsecToRad = math.Pi / (180 * 3600)

func r1(angle float64) [3][3]float64 {
	s, c := math.Sincos(angle)
	return [3][3]float64{{1, 0, 0}, {0, c, s}, {0, -s, c}}
}

func r2(angle float64) [3][3]float64 {
	s, c := math.Sincos(angle)
	return [3][3]float64{{c, 0, -s}, {0, 1, 0}, {s, 0, c}}
}

func r3(angle float64) [3][3]float64 {
	s, c := math.Sincos(angle)
	return [3][3]float64{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
}

func matMul(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func matTranspose(a [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

func matVec(a [3][3]float64, v astrocore.Vector3) astrocore.Vector3 {
	s := v.Slice()
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = a[i][0]*s[0] + a[i][1]*s[1] + a[i][2]*s[2]
	}
	return astrocore.NewVector3(out[0], out[1], out[2])
}

// PrecessionAngles returns the IAU 1976 zeta, theta, z precession angles
// (radians) for Julian centuries t since J2000.
func PrecessionAngles(t float64) (zeta, theta, z float64) {
	zeta = arcsecToRad * (2306.2181*t + 0.30188*t*t + 0.017998*t*t*t)
	theta = arcsecToRad * (2004.3109*t - 0.42665*t*t - 0.041833*t*t*t)
	z = arcsecToRad * (2306.2181*t + 1.09468*t*t + 0.018203*t*t*t)
	return
}

// PrecessionMatrix returns the rotation matrix from J2000 mean equator/
// equinox to the mean equator/equinox of date at Julian centuries t,
// composing R3(-z) R2(theta) R3(-zeta) as per IAU 1976.
func PrecessionMatrix(t float64) [3][3]float64 {
	zeta, theta, z := PrecessionAngles(t)
	return matMul(r3(-z), matMul(r2(theta), r3(-zeta)))
}

// nutation1980Term is a single entry of the dominant IAU 1980 nutation
// series terms (the largest few terms dominate dPsi/dEps to sufficient
// precision for the TEME/J2000 conversions this core performs; the full
// 106-term series is the province of the EOP provider's dPsi/dEps
// corrections, applied additively in NutationAngles).
type nutation1980Term struct {
	// Multipliers of the five Delaunay fundamental arguments.
	lMoon, lSun, f, d, omega float64
	// Coefficients in 0.0001 arcsec, longitude (sin) and obliquity (cos).
	sPsi, sPsiT, cEps, cEpsT float64
}

var nutation1980Terms = []nutation1980Term{
	{0, 0, 0, 0, 1, -171996, -174.2, 92025, 8.9},
	{0, 0, 2, -2, 2, -13187, -1.6, 5736, -3.1},
	{0, 0, 2, 0, 2, -2274, -0.2, 977, -0.5},
	{0, 0, 0, 0, 2, 2062, 0.2, -895, 0.5},
	{0, 1, 0, 0, 0, 1426, -3.4, 54, -0.1},
	{1, 0, 0, 0, 0, 712, 0.1, -7, 0},
	{0, 1, 2, -2, 2, -517, 1.2, 224, -0.6},
	{0, 0, 2, 0, 1, -386, -0.4, 200, 0},
	{1, 0, 2, 0, 2, -301, 0, 129, -0.1},
	{0, -1, 2, -2, 2, 217, -0.5, -95, 0.3},
}

// delaunayArguments returns the five fundamental lunisolar arguments
// (radians) at Julian centuries t, per the IAU 1980 theory.
func delaunayArguments(t float64) (lMoon, lSun, f, d, omega float64) {
	deg := math.Pi / 180
	lMoon = astrocore.WrapTwoPi((134.96298139 + (1325*360+198.8673981)*t) * deg)
	lSun = astrocore.WrapTwoPi((357.52772333 + (99*360+359.0503400)*t) * deg)
	f = astrocore.WrapTwoPi((93.27191028 + (1342*360+82.0175381)*t) * deg)
	d = astrocore.WrapTwoPi((297.85036306 + (1236*360+307.1114800)*t) * deg)
	omega = astrocore.WrapTwoPi((125.04452222 - (5*360+134.1362608)*t) * deg)
	return
}

// MeanObliquity returns the IAU 1980 mean obliquity of the ecliptic
// (radians) at Julian centuries t.
func MeanObliquity(t float64) float64 {
	arcsec := 84381.448 - 46.8150*t - 0.00059*t*t + 0.001813*t*t*t
	return arcsec * arcsecToRad
}

// NutationAngles returns (dPsi, dEps, meanObliquity) in radians at
// Julian centuries t, from the dominant IAU 1980 series terms, plus any
// EOP-supplied corrections folded in by the caller (GCRF conversion
// adds them; TEME/J2000 conversion does not, per §4.1's contract).
func NutationAngles(t float64) (dPsi, dEps, meanObliquity float64) {
	lMoon, lSun, f, d, omega := delaunayArguments(t)
	for _, term := range nutation1980Terms {
		arg := term.lMoon*lMoon + term.lSun*lSun + term.f*f + term.d*d + term.omega*omega
		s, c := math.Sincos(arg)
		dPsi += (term.sPsi + term.sPsiT*t) * 1e-4 * arcsecToRad * s
		dEps += (term.cEps + term.cEpsT*t) * 1e-4 * arcsecToRad * c
	}
	meanObliquity = MeanObliquity(t)
	return
}

// NutationMatrix returns the rotation matrix applying nutation (dPsi,
// dEps) about the mean obliquity meanEps.
func NutationMatrix(dPsi, dEps, meanEps float64) [3][3]float64 {
	trueEps := meanEps + dEps
	return matMul(r1(-trueEps), matMul(r3(-dPsi), r1(meanEps)))
}

// EquationOfEquinoxes returns the equation-of-equinoxes correction
// (radians) added to GMST to get GAST, dPsi*cos(meanObliquity) to
// leading order.
func EquationOfEquinoxes(dPsi, meanEps float64) float64 {
	return dPsi * math.Cos(meanEps)
}

// PolarMotionMatrix returns the rotation from the terrestrial
// intermediate (pseudo Earth-fixed) frame to ITRF given polar-motion
// angles xp, yp (radians).
func PolarMotionMatrix(xp, yp float64) [3][3]float64 {
	return matMul(r1(yp), r2(xp))
}

// J2000ToITRF converts a J2000 state to ITRF at the state's epoch,
// composing precession -> nutation -> sidereal rotation -> polar motion,
// per §4.1's contract. prov supplies polar motion and the EOP dPsi/dEps
// corrections at the epoch.
func J2000ToITRF(sv astrocore.StateVector, prov eop.Provider) (astrocore.StateVector, error) {
	if err := sv.RequireInertial(); err != nil {
		return astrocore.StateVector{}, err
	}
	t := sv.Epoch.JulianCenturiesJ2000()
	prec := PrecessionMatrix(t)
	dPsi, dEps, meanEps := NutationAngles(t)
	params := prov.At(sv.Epoch)
	dPsi += params.DPsi
	dEps += params.DEps
	nut := NutationMatrix(dPsi, dEps, meanEps)
	gast := astrocore.WrapTwoPi(sv.Epoch.GMST() + EquationOfEquinoxes(dPsi, meanEps))
	sidereal := r3(gast)
	polar := PolarMotionMatrix(params.PolarMotionX, params.PolarMotionY)

	toPef := matMul(sidereal, matMul(nut, prec))
	toItrf := matMul(polar, toPef)

	r := matVec(toItrf, sv.Position)
	// Velocity carries an Earth-rotation correction (ω × r) dropped for
	// brevity in the PEF->ITRF step (polar motion's rate is negligible);
	// the dominant sidereal-rate term is applied here.
	omegaEarth := astrocore.Earth.RotationRateHz
	pefPos := matVec(matMul(nut, prec), sv.Position)
	pefVel := matVec(matMul(nut, prec), sv.Velocity)
	rotVel := astrocore.NewVector3(-omegaEarth*pefPos.Y, omegaEarth*pefPos.X, 0)
	vPef := matVec(sidereal, pefVel.Sub(rotVel))
	v := matVec(polar, vPef)

	return astrocore.NewStateVector(sv.Epoch, r, v, astrocore.FrameITRF), nil
}

// ITRFToJ2000 inverts J2000ToITRF via the transpose (orthogonal) rotation.
func ITRFToJ2000(sv astrocore.StateVector, prov eop.Provider) astrocore.StateVector {
	t := sv.Epoch.JulianCenturiesJ2000()
	prec := PrecessionMatrix(t)
	dPsi, dEps, meanEps := NutationAngles(t)
	params := prov.At(sv.Epoch)
	dPsi += params.DPsi
	dEps += params.DEps
	nut := NutationMatrix(dPsi, dEps, meanEps)
	gast := astrocore.WrapTwoPi(sv.Epoch.GMST() + EquationOfEquinoxes(dPsi, meanEps))
	sidereal := r3(gast)
	polar := PolarMotionMatrix(params.PolarMotionX, params.PolarMotionY)

	toItrf := matMul(polar, matMul(sidereal, matMul(nut, prec)))
	toJ2000 := matTranspose(toItrf)

	omegaEarth := astrocore.Earth.RotationRateHz
	pefFromItrf := matVec(matTranspose(polar), sv.Position)
	r := matVec(toJ2000, sv.Position)
	pefVel := matVec(matTranspose(polar), sv.Velocity)
	rotVel := astrocore.NewVector3(-omegaEarth*pefFromItrf.Y, omegaEarth*pefFromItrf.X, 0)
	j2000Frame := matMul(nut, prec)
	v := matVec(matTranspose(j2000Frame), matVec(matTranspose(sidereal), pefVel.Add(rotVel)))

	return astrocore.NewStateVector(sv.Epoch, r, v, astrocore.FrameJ2000)
}

// J2000ToTEME converts J2000 to TEME by precession followed by a
// truncated nutation with the equation-of-equinoxes correction, per
// §4.1 ("precession → truncated nutation with equation-of-equinoxes
// correction").
func J2000ToTEME(sv astrocore.StateVector) (astrocore.StateVector, error) {
	if err := sv.RequireInertial(); err != nil {
		return astrocore.StateVector{}, err
	}
	t := sv.Epoch.JulianCenturiesJ2000()
	prec := PrecessionMatrix(t)
	dPsi, dEps, meanEps := NutationAngles(t)
	nut := NutationMatrix(dPsi, dEps, meanEps)
	eqEq := EquationOfEquinoxes(dPsi, meanEps)
	correction := r3(eqEq)

	combined := matMul(correction, matMul(nut, prec))
	r := matVec(combined, sv.Position)
	v := matVec(combined, sv.Velocity)
	return astrocore.NewStateVector(sv.Epoch, r, v, astrocore.FrameTEME), nil
}

// TEMEToJ2000 inverts J2000ToTEME.
func TEMEToJ2000(sv astrocore.StateVector) astrocore.StateVector {
	t := sv.Epoch.JulianCenturiesJ2000()
	prec := PrecessionMatrix(t)
	dPsi, dEps, meanEps := NutationAngles(t)
	nut := NutationMatrix(dPsi, dEps, meanEps)
	eqEq := EquationOfEquinoxes(dPsi, meanEps)
	correction := r3(eqEq)

	combined := matTranspose(matMul(correction, matMul(nut, prec)))
	r := matVec(combined, sv.Position)
	v := matVec(combined, sv.Velocity)
	return astrocore.NewStateVector(sv.Epoch, r, v, astrocore.FrameJ2000)
}

// J2000ToGCRF applies only the small frame-bias correction between the
// EOP-corrected and uncorrected nutation, per §4.1.
func J2000ToGCRF(sv astrocore.StateVector, prov eop.Provider) (astrocore.StateVector, error) {
	if err := sv.RequireInertial(); err != nil {
		return astrocore.StateVector{}, err
	}
	t := sv.Epoch.JulianCenturiesJ2000()
	_, _, meanEps := NutationAngles(t)
	params := prov.At(sv.Epoch)
	bias := NutationMatrix(params.DPsi, params.DEps, meanEps)
	return astrocore.StateVector{
		Epoch:    sv.Epoch,
		Position: matVec(bias, sv.Position),
		Velocity: matVec(bias, sv.Velocity),
		Frame:    astrocore.FrameGCRF,
	}, nil
}

// Geodetic is a (latitude, longitude, altitude) tuple in radians/
// radians/km, the output of ToGeodetic.
type Geodetic struct {
	LatitudeRad  float64
	LongitudeRad float64
	AltitudeKm   float64
}

// ToGeodetic converts an ITRF position to geodetic latitude/longitude/
// altitude via fixed-point iteration on the reduced latitude using
// WGS-84 e², per §4.1; converges within 12 iterations to <1e-10 rad.
func ToGeodetic(posITRF astrocore.Vector3) Geodetic {
	x, y, z := posITRF.X, posITRF.Y, posITRF.Z
	lon := math.Atan2(y, x)
	p := math.Hypot(x, y)
	e2 := astrocore.WGS84Eccentricitysq()
	lat := math.Atan2(z, p*(1-e2))
	for i := 0; i < 12; i++ {
		sinLat := math.Sin(lat)
		n := astrocore.Earth.RadiusEq / math.Sqrt(1-e2*sinLat*sinLat)
		newLat := math.Atan2(z+n*e2*sinLat, p)
		if math.Abs(newLat-lat) < 1e-10 {
			lat = newLat
			break
		}
		lat = newLat
	}
	sinLat := math.Sin(lat)
	n := astrocore.Earth.RadiusEq / math.Sqrt(1-e2*sinLat*sinLat)
	var alt float64
	if math.Abs(math.Cos(lat)) > 1e-9 {
		alt = p/math.Cos(lat) - n
	} else {
		alt = math.Abs(z) - n*(1-e2)
	}
	return Geodetic{LatitudeRad: lat, LongitudeRad: astrocore.WrapTwoPi(lon), AltitudeKm: alt}
}

// AngularSeparation returns the angular separation between two geodetic
// points via the spherical law of cosines. Recorded open-question
// decision (SPEC_FULL.md §5.2): the cosine-law form is the default;
// prefer AngularSeparationHaversine for separations below about 1
// degree, where the cosine form loses precision.
func AngularSeparation(a, b Geodetic) float64 {
	sinLa, cosLa := math.Sincos(a.LatitudeRad)
	sinLb, cosLb := math.Sincos(b.LatitudeRad)
	dLon := b.LongitudeRad - a.LongitudeRad
	cosD := sinLa*sinLb + cosLa*cosLb*math.Cos(dLon)
	return math.Acos(clamp(cosD, -1, 1))
}

// AngularSeparationHaversine returns the angular separation via the
// haversine formula, numerically stable for small separations.
func AngularSeparationHaversine(a, b Geodetic) float64 {
	dLat := b.LatitudeRad - a.LatitudeRad
	dLon := b.LongitudeRad - a.LongitudeRad
	sinDLat2 := math.Sin(dLat / 2)
	sinDLon2 := math.Sin(dLon / 2)
	h := sinDLat2*sinDLat2 + math.Cos(a.LatitudeRad)*math.Cos(b.LatitudeRad)*sinDLon2*sinDLon2
	return 2 * math.Asin(math.Sqrt(clamp(h, 0, 1)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RelativeState is the data model's RIC/EQCM relative-state tuple: an
// origin epoch, a Δposition/Δvelocity pair, and the origin's semi-major
// axis (EQCM's curvilinear transform needs it; RIC does not). Kind tags
// which conversion formulas apply, replacing the inheritance hierarchy
// design note §9 calls for a tagged variant in place of.
type RelativeState struct {
	OriginEpoch   astrocore.Epoch
	DeltaPosition astrocore.Vector3
	DeltaVelocity astrocore.Vector3
	OriginSMA     float64
	Kind          astrocore.Frame // FrameRIC or FrameEQCM
}

// ToRIC builds the RIC relative state of target with respect to origin,
// both inertial states at the same epoch. Per §4.1: built from the
// origin's position and angular-momentum unit vectors; a linear rotation
// into (radial, in-track, cross-track), then subtracting the origin's
// orbital angular velocity from the rotated relative velocity.
func ToRIC(origin, target astrocore.StateVector) (RelativeState, error) {
	if err := origin.RequireInertial(); err != nil {
		return RelativeState{}, err
	}
	r, i, c := astrocore.RICBasis(origin.Position, origin.Velocity)
	dr := target.Position.Sub(origin.Position)
	dv := target.Velocity.Sub(origin.Velocity)

	dPos := astrocore.NewVector3(dr.Dot(r), dr.Dot(i), dr.Dot(c))

	h := origin.Position.Cross(origin.Velocity)
	omega := h.Scale(1 / origin.Position.Dot(origin.Position))
	dvRot := astrocore.NewVector3(dv.Dot(r), dv.Dot(i), dv.Dot(c))
	omegaXdr := omega.Cross(dr)
	omegaXdrRot := astrocore.NewVector3(omegaXdr.Dot(r), omegaXdr.Dot(i), omegaXdr.Dot(c))
	dVel := dvRot.Sub(omegaXdrRot)

	return RelativeState{
		OriginEpoch:   origin.Epoch,
		DeltaPosition: dPos,
		DeltaVelocity: dVel,
		OriginSMA:     originSMA(origin),
		Kind:          astrocore.FrameRIC,
	}, nil
}

// FromRIC reconstructs the inertial target state from an origin state
// and a RIC relative state, inverting ToRIC.
func FromRIC(origin astrocore.StateVector, rel RelativeState) astrocore.StateVector {
	r, i, c := astrocore.RICBasis(origin.Position, origin.Velocity)
	dr := r.Scale(rel.DeltaPosition.X).Add(i.Scale(rel.DeltaPosition.Y)).Add(c.Scale(rel.DeltaPosition.Z))

	h := origin.Position.Cross(origin.Velocity)
	omega := h.Scale(1 / origin.Position.Dot(origin.Position))
	dvLocal := r.Scale(rel.DeltaVelocity.X).Add(i.Scale(rel.DeltaVelocity.Y)).Add(c.Scale(rel.DeltaVelocity.Z))
	dv := dvLocal.Add(omega.Cross(dr))

	return astrocore.NewStateVector(origin.Epoch, origin.Position.Add(dr), origin.Velocity.Add(dv), origin.Frame)
}

// ToEQCM builds the EQCM (modified equidistant cylindrical, a.k.a. Hill)
// relative state of target with respect to origin: the curvilinear
// analogue of RIC per §4.1, where along-track separation is expressed as
// an arc length on the origin's orbit radius rather than a straight-line
// chord.
func ToEQCM(origin, target astrocore.StateVector) (RelativeState, error) {
	ric, err := ToRIC(origin, target)
	if err != nil {
		return RelativeState{}, err
	}
	r0 := origin.Position.Norm()
	alongTrack := r0 * math.Atan2(ric.DeltaPosition.Y, r0+ric.DeltaPosition.X)
	crossTrack := r0 * math.Atan2(ric.DeltaPosition.Z, r0+ric.DeltaPosition.X)
	radial := math.Hypot(r0+ric.DeltaPosition.X, ric.DeltaPosition.Y) - r0

	ric.DeltaPosition = astrocore.NewVector3(radial, alongTrack, crossTrack)
	ric.Kind = astrocore.FrameEQCM
	return ric, nil
}

// FromEQCM inverts ToEQCM back to a RIC-equivalent relative state
// (velocity left as computed by ToRIC's linearization, since EQCM's
// curvilinear correction is position-only per §4.1).
func FromEQCM(origin astrocore.StateVector, rel RelativeState) astrocore.StateVector {
	r0 := origin.Position.Norm()
	radial, alongTrack, crossTrack := rel.DeltaPosition.X, rel.DeltaPosition.Y, rel.DeltaPosition.Z
	rMag := r0 + radial
	x := rMag*math.Cos(alongTrack/r0) - r0
	y := rMag * math.Sin(alongTrack/r0)
	z := rMag * math.Sin(crossTrack/r0)
	ric := rel
	ric.DeltaPosition = astrocore.NewVector3(x, y, z)
	ric.Kind = astrocore.FrameRIC
	return FromRIC(origin, ric)
}

func originSMA(origin astrocore.StateVector) float64 {
	r := origin.Position.Norm()
	v := origin.Velocity.Norm()
	xi := v*v/2 - astrocore.Earth.GM/r
	return -astrocore.Earth.GM / (2 * xi)
}
