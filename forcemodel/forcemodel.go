// Package forcemodel implements the builder-style ForceModel of §4.3: a
// pure, cloneable accumulation of acceleration terms (central-body
// gravity, zonal/tesseral harmonics, third-body gravity, solar-radiation
// pressure, atmospheric drag, and a loaded maneuver) consumed by every
// propagator in package propagation as f(t, y). Grounded on
// legacy/smd/perturbations.go's Perturbations/Perturb (the J2/J3
// acceleration formulas) and legacy/smd/celestial.go's HelioOrbit (the
// VSOP87 third-body ephemeris loading pattern), generalized from the
// teacher's fixed Jn-only perturbation struct to the spec's enumerated
// builder options.
package forcemodel

import (
	"math"

	"github.com/kestrel-space/astrocore"
	"github.com/soniakeys/meeus/julian"
	"github.com/soniakeys/meeus/moonposition"
	"github.com/soniakeys/meeus/planetposition"
)

// meanObliquityJ2000 is the mean obliquity of the ecliptic at J2000.0,
// used to rotate the VSOP87/lunar-theory ecliptic ephemerides into the
// equatorial (J2000) frame forcemodel's gravity terms operate in.
const meanObliquityJ2000 = 23.43929111 * math.Pi / 180

// ThirdBody selects which perturbing bodies set_third_body_gravity loads,
// per §4.3's {sun?, moon?} option.
type ThirdBody struct {
	Sun  bool
	Moon bool
}

// AtmosphericDrag carries the ballistic parameters set_atmospheric_drag
// configures: spacecraft mass (kg), cross-sectional area (m^2), and a
// drag coefficient. set_bcoeff overrides the derived ballistic
// coefficient directly.
type AtmosphericDrag struct {
	MassKg      float64
	AreaM2      float64
	Coefficient float64
}

// SolarRadiationPressure carries set_solar_radiation_pressure's
// parameters, mirroring AtmosphericDrag's shape.
type SolarRadiationPressure struct {
	MassKg      float64
	AreaM2      float64
	Coefficient float64
}

// Model is the builder-configured force model: a pure function of
// (epoch, Cartesian state) to acceleration, with no hidden global state,
// so a propagator's Jacobian perturbation can safely Clone() it per
// §4.3 and §5's ownership rules.
type Model struct {
	central astrocore.CelestialBody

	gravityMu    float64
	gravitySet   bool
	zonalN       int
	tesseralN    int
	thirdBody    ThirdBody
	srp          *SolarRadiationPressure
	srpCoeff     float64
	drag         *AtmosphericDrag
	bCoeff       float64
	maneuver     *astrocore.Thrust
	ephemerisDir string
	sunPlanet    *planetposition.V87Planet
}

// New returns a Model for the given central body (Earth by default via
// NewEarthModel), with two-body point-mass gravity as the only term until
// further builder calls configure more.
func New(central astrocore.CelestialBody) *Model {
	return &Model{central: central, gravityMu: central.GM, gravitySet: true}
}

// NewEarthModel is the common case: a Model orbiting Earth.
func NewEarthModel() *Model {
	return New(astrocore.Earth)
}

// SetGravity overrides the central-body GM used for point-mass gravity;
// an empty call (mu == 0) leaves the central body's own GM in effect.
func (m *Model) SetGravity(mu float64) *Model {
	if mu != 0 {
		m.gravityMu = mu
	}
	m.gravitySet = true
	return m
}

// SetEarthGravity configures the zonal/tesseral harmonic expansion order
// (only zonal J2 and J3 are implemented beyond point-mass; a zonal order
// above 3 adds nothing beyond J3, and J4 is not applied. Tesseral terms
// are accepted for API completeness and contribute zero, since no
// tesseral coefficient table exists in this package).
func (m *Model) SetEarthGravity(nZonal, nTesseral int) *Model {
	m.zonalN = nZonal
	m.tesseralN = nTesseral
	return m
}

// SetThirdBodyGravity enables Sun/Moon third-body gravitational
// perturbations.
func (m *Model) SetThirdBodyGravity(tb ThirdBody) *Model {
	m.thirdBody = tb
	return m
}

// SetEphemerisDir points the VSOP87-backed Sun ephemeris at the data
// directory planetposition.LoadPlanetPath expects, mirroring the
// teacher's smdConfig().VSOP87Dir.
func (m *Model) SetEphemerisDir(dir string) *Model {
	m.ephemerisDir = dir
	return m
}

// SetSolarRadiationPressure configures the SRP term.
func (m *Model) SetSolarRadiationPressure(massKg, areaM2, coeff float64) *Model {
	m.srp = &SolarRadiationPressure{MassKg: massKg, AreaM2: areaM2, Coefficient: coeff}
	return m
}

// SetAtmosphericDrag configures the drag term.
func (m *Model) SetAtmosphericDrag(massKg, areaM2, coeff float64) *Model {
	m.drag = &AtmosphericDrag{MassKg: massKg, AreaM2: areaM2, Coefficient: coeff}
	return m
}

// SetBCoeff overrides the ballistic coefficient (area*Cd/mass, m^2/kg)
// the drag term uses directly, bypassing mass/area/Cd decomposition —
// the OD solver's 8-parameter solve (§4.7) fits this scalar directly.
func (m *Model) SetBCoeff(beta float64) *Model {
	m.bCoeff = beta
	return m
}

// SetSRPCoeff overrides the SRP coefficient (area*Cr/mass, m^2/kg)
// directly, the SRP analogue of SetBCoeff.
func (m *Model) SetSRPCoeff(gamma float64) *Model {
	m.srpCoeff = gamma
	return m
}

// LoadManeuver installs a finite-burn Thrust's acceleration term over its
// active window; impulsive thrusts are applied directly by the
// propagator (§4.2) rather than through the force model.
func (m *Model) LoadManeuver(t astrocore.Thrust) *Model {
	tc := t
	m.maneuver = &tc
	return m
}

// ClearManeuver detaches any loaded maneuver.
func (m *Model) ClearManeuver() *Model {
	m.maneuver = nil
	return m
}

// Clone returns a deep-enough copy of m safe to share with a perturbed
// propagator computing a finite-difference Jacobian without racing the
// nominal propagator, per §4.3 and §5.
func (m *Model) Clone() *Model {
	c := *m
	if m.maneuver != nil {
		tc := *m.maneuver
		c.maneuver = &tc
	}
	return &c
}

// Derivative evaluates f(t, y) for the configured terms: y is the
// six-element [rx,ry,rz,vx,vy,vz] Cartesian state at epoch t (km,
// km/s); the return is [vx,vy,vz, ax,ay,az] (km/s, km/s^2), the
// right-hand side every propagator in package propagation integrates.
func (m *Model) Derivative(epoch astrocore.Epoch, y []float64) []float64 {
	if len(y) != 6 {
		panic(astrocore.NewError(astrocore.ErrDimensionMismatch, "forcemodel.Derivative: want 6-state, got %d", len(y)).Error())
	}
	r := astrocore.NewVector3(y[0], y[1], y[2])
	v := astrocore.NewVector3(y[3], y[4], y[5])

	accel := m.twoBodyAccel(r)
	if m.zonalN > 1 {
		accel = accel.Add(m.zonalAccel(r))
	}
	if m.thirdBody.Sun || m.thirdBody.Moon {
		accel = accel.Add(m.thirdBodyAccel(epoch, r))
	}
	if m.srp != nil || m.srpCoeff != 0 {
		accel = accel.Add(m.srpAccel(epoch, r))
	}
	if m.drag != nil || m.bCoeff != 0 {
		accel = accel.Add(m.dragAccel(r, v))
	}
	if m.maneuver != nil && m.maneuver.Active(epoch) {
		accel = accel.Add(m.maneuver.InertialAccel(r, v))
	}

	return []float64{v.X, v.Y, v.Z, accel.X, accel.Y, accel.Z}
}

func (m *Model) mu() float64 {
	if m.gravityMu != 0 {
		return m.gravityMu
	}
	return m.central.GM
}

// twoBodyAccel is the point-mass -mu*r/|r|^3 term every propagator needs
// even with every other option left off.
func (m *Model) twoBodyAccel(r astrocore.Vector3) astrocore.Vector3 {
	rn := r.Norm()
	return r.Scale(-m.mu() / (rn * rn * rn))
}

// zonalAccel is legacy/smd/perturbations.go's Cartesian J2/J3
// acceleration, transcribed against Vector3 instead of []float64.
func (m *Model) zonalAccel(r astrocore.Vector3) astrocore.Vector3 {
	mu, req := m.mu(), m.central.RadiusEq
	x, y, z := r.X, r.Y, r.Z
	rn := r.Norm()
	z2 := z * z
	var accel astrocore.Vector3
	if m.zonalN >= 2 {
		k := -1.5 * mu * m.central.J2 * req * req / math.Pow(rn, 5)
		accel = accel.Add(astrocore.NewVector3(
			k*x*(1-5*z2/(rn*rn)),
			k*y*(1-5*z2/(rn*rn)),
			k*z*(3-5*z2/(rn*rn)),
		))
	}
	if m.zonalN >= 3 {
		z3 := z2 * z
		j3fact := mu * m.central.J3 * math.Pow(req, 3)
		r7 := math.Pow(rn, 7)
		common := 2.5 * j3fact / r7
		accel = accel.Add(astrocore.NewVector3(
			common*x*(3*z-7*z3/(rn*rn)),
			common*y*(3*z-7*z3/(rn*rn)),
			common*(6*z2-7*z2*z2/(rn*rn)-0.6*rn*rn),
		))
	}
	return accel
}

// thirdBodyAccel sums the Sun/Moon point-mass perturbing acceleration,
// Vallado's third-body formulation a = mu_b*((s-r)/|s-r|^3 - s/|s|^3)
// where s is the perturbing body's position relative to the central
// body.
func (m *Model) thirdBodyAccel(epoch astrocore.Epoch, r astrocore.Vector3) astrocore.Vector3 {
	var accel astrocore.Vector3
	if m.thirdBody.Sun {
		if s, err := m.sunPositionEquatorial(epoch); err == nil {
			accel = accel.Add(thirdBodyTerm(astrocore.Sun.GM, r, s))
		}
	}
	if m.thirdBody.Moon {
		if s, err := m.moonPositionEquatorial(epoch); err == nil {
			accel = accel.Add(thirdBodyTerm(astrocore.Moon.GM, r, s))
		}
	}
	return accel
}

func thirdBodyTerm(muBody float64, r, s astrocore.Vector3) astrocore.Vector3 {
	d := s.Sub(r)
	dn3 := math.Pow(d.Norm(), 3)
	sn3 := math.Pow(s.Norm(), 3)
	return d.Scale(muBody / dn3).Sub(s.Scale(muBody / sn3))
}

// sunPositionEquatorial returns the Sun's geocentric equatorial (J2000)
// position, reusing the teacher's VSOP87 Earth-heliocentric lookup
// (HelioOrbit) negated to geocentric, per celestial.go.
func (m *Model) sunPositionEquatorial(epoch astrocore.Epoch) (astrocore.Vector3, error) {
	if m.sunPlanet == nil {
		planet, err := planetposition.LoadPlanetPath(2, m.ephemerisDir) // Earth, 0-indexed per teacher's vsopPosition-1
		if err != nil {
			return astrocore.Vector3{}, err
		}
		m.sunPlanet = planet
	}
	jd := julian.TimeToJD(epoch.Time())
	l, b, rAU := m.sunPlanet.Position2000(jd)
	earthHelio := eclipticToEquatorial(l.Rad(), b.Rad(), rAU*astrocore.AU)
	return earthHelio.Scale(-1), nil
}

// moonPositionEquatorial returns the Moon's geocentric equatorial
// position via soniakeys/meeus/moonposition, the lunar-theory analogue
// of the Sun's VSOP87 lookup (no teacher analogue; grounded on the
// retrieval pack's moon.go reference usage of moonposition.Position).
func (m *Model) moonPositionEquatorial(epoch astrocore.Epoch) (astrocore.Vector3, error) {
	jd := julian.TimeToJD(epoch.Time())
	lam, beta, deltaKm := moonposition.Position(jd)
	return eclipticToEquatorial(lam.Rad(), beta.Rad(), deltaKm), nil
}

func eclipticToEquatorial(lon, lat, radius float64) astrocore.Vector3 {
	sinL, cosL := math.Sincos(lon)
	sinB, cosB := math.Sincos(lat)
	xEcl := radius * cosB * cosL
	yEcl := radius * cosB * sinL
	zEcl := radius * sinB
	sinE, cosE := math.Sincos(meanObliquityJ2000)
	return astrocore.NewVector3(
		xEcl,
		yEcl*cosE-zEcl*sinE,
		yEcl*sinE+zEcl*cosE,
	)
}

// srpAccel is the cannonball SRP model: acceleration along the Sun ->
// satellite line, scaled by solar flux pressure at 1 AU and the
// configured (or derived) area*Cr/mass coefficient.
func (m *Model) srpAccel(epoch astrocore.Epoch, r astrocore.Vector3) astrocore.Vector3 {
	const solarPressureAt1AU = 4.56e-6 // N/m^2
	gamma := m.srpCoeff
	if gamma == 0 && m.srp != nil {
		gamma = m.srp.AreaM2 * m.srp.Coefficient / m.srp.MassKg
	}
	if gamma == 0 {
		return astrocore.Vector3{}
	}
	sun, err := m.sunPositionEquatorial(epoch)
	if err != nil {
		return astrocore.Vector3{}
	}
	satToSun := r.Sub(sun)
	dAU := satToSun.Norm() / astrocore.AU
	pressure := solarPressureAt1AU / (dAU * dAU)
	// N/m^2 * m^2/kg -> m/s^2 -> km/s^2
	accelMag := pressure * gamma / 1000.0
	return satToSun.Unit().Scale(accelMag)
}

// dragAccel is a simple exponential atmospheric model: a drag
// acceleration -0.5*rho*v_rel^2*BC*v_rel_hat, with rho from a static
// exponential density profile (the atmospheric density *model* proper is
// out of this core's scope per §1; this core only consumes a BC and a
// relative-velocity vector).
func (m *Model) dragAccel(r, v astrocore.Vector3) astrocore.Vector3 {
	bc := m.bCoeff
	if bc == 0 && m.drag != nil {
		bc = m.drag.AreaM2 * m.drag.Coefficient / m.drag.MassKg
	}
	if bc == 0 {
		return astrocore.Vector3{}
	}
	omega := astrocore.NewVector3(0, 0, m.central.RotationRateHz)
	vRel := v.Sub(omega.Cross(r))
	rho := exponentialDensity(r.Norm() - m.central.RadiusEq)
	vRelNorm := vRel.Norm()
	// bc in m^2/kg, scaled by 1e-6 to km^2/kg; rho in kg/km^3, so the
	// accel comes out in km/s^2.
	accelMag := -0.5 * rho * vRelNorm * bc * 1e-6
	return vRel.Scale(accelMag)
}

// exponentialDensity is a coarse US Standard Atmosphere exponential fit
// (kg/km^3), a stand-in for the external AtmosphericDensity collaborator
// named out of scope in §1 — used only so dragAccel has something to
// multiply against when a caller configures SetAtmosphericDrag without
// wiring a real density provider.
func exponentialDensity(altitudeKm float64) float64 {
	const (
		rho0  = 1.225e9 // kg/km^3 at sea level (1.225 kg/m^3)
		scale = 8.5      // km scale height
	)
	if altitudeKm < 0 {
		altitudeKm = 0
	}
	return rho0 * math.Exp(-altitudeKm/scale)
}
