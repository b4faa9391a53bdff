// Package observation implements the Observation contract of §4.5:
// optical (RA/Dec), radar (range/az/el), and full-state measurements,
// a ground Station that produces them, and the PropagatorPairs
// central-difference Jacobian helper every residual/jacobian pair
// needs. Grounded almost directly on legacy/smd/station.go's Station/
// PerformMeasurement/RangeElAz/HTilde and its Gaussian-noise-via-
// distmv.Normal pattern.
package observation

import (
	"math"
	"math/rand"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/eop"
	"github.com/kestrel-space/astrocore/frames"
	"github.com/kestrel-space/astrocore/propagation"
	"github.com/gonum/matrix/mat64"
	"github.com/gonum/stat/distmv"
)

// Observation is the data model's abstract measurement, per §4.5.
type Observation interface {
	Epoch() astrocore.Epoch
	Site() astrocore.Vector3 // ITRF
	// NoiseInverse returns Σ⁻¹, the measurement weight matrix.
	NoiseInverse() *astrocore.Matrix
	// ToVector returns the observation as an m-vector.
	ToVector() *astrocore.Vector
	// Residual returns observed − predicted against the given
	// propagator's current state.
	Residual(p propagation.Propagator) (*astrocore.Vector, error)
	// Jacobian returns ∂h/∂x (m×6) by central finite difference over
	// the supplied perturbed-propagator pairs.
	Jacobian(pairs *PropagatorPairs) (*astrocore.Matrix, error)
	// CLOS returns a scalar gate metric (cross-line-of-sight angle for
	// optical, range for radar/state).
	CLOS(p propagation.Propagator) (float64, error)
	// RICDiff returns the observer-relative RIC position difference
	// between the observation's implied state and the propagator's.
	RICDiff(p propagation.Propagator) (astrocore.Vector3, error)
	// Sample draws a Gaussian sample in observable space using σ as the
	// per-component standard deviation.
	Sample(rng *distmv.Normal) (Observation, error)
}

// predictFromSite computes the topocentric range vector (inertial frame
// of p's state) from site (ITRF) to the propagator's current position,
// converting site into the propagator's frame via frames.ITRFToJ2000 at
// the observation epoch. Shared by every specialization's residual.
func predictFromSite(p propagation.Propagator, siteITRF astrocore.Vector3, prov eop.Provider) (rangeVec astrocore.Vector3, siteInertial astrocore.Vector3) {
	state := p.State()
	siteSV := astrocore.NewStateVector(state.Epoch, siteITRF, astrocore.Vector3{}, astrocore.FrameITRF)
	inertialSite := frames.ITRFToJ2000(siteSV, prov)
	return state.Position.Sub(inertialSite.Position), inertialSite.Position
}

// ---- Optical ----

// Optical is an (RA, Dec) observation, per §4.5.
type Optical struct {
	Epoch_ astrocore.Epoch
	Site_  astrocore.Vector3 // ITRF
	RA     float64 // rad
	Dec    float64 // rad
	Sigma  float64 // rad, default milli-arcsecond scale
	EOP    eop.Provider
}

// DefaultOpticalSigma is ~1 milliarcsecond in radians, the spec's
// stated default noise order of magnitude for optical observations.
const DefaultOpticalSigma = 4.8481368e-9

func (o Optical) Epoch() astrocore.Epoch          { return o.Epoch_ }
func (o Optical) Site() astrocore.Vector3         { return o.Site_ }
func (o Optical) NoiseInverse() *astrocore.Matrix {
	return astrocore.ScaledIdentity(2, 1/(o.Sigma*o.Sigma))
}
func (o Optical) ToVector() *astrocore.Vector {
	return astrocore.NewVector(2, []float64{o.RA, o.Dec})
}

// predictRADec returns the (RA, Dec) implied by the propagator's current
// inertial state as seen from the site.
func (o Optical) predictRADec(p propagation.Propagator) (ra, dec float64) {
	rangeVec, _ := predictFromSite(p, o.Site_, o.EOP)
	ra = astrocore.WrapTwoPi(math.Atan2(rangeVec.Y, rangeVec.X))
	dec = math.Asin(rangeVec.Z / rangeVec.Norm())
	return
}

func (o Optical) Residual(p propagation.Propagator) (*astrocore.Vector, error) {
	ra, dec := o.predictRADec(p)
	return astrocore.NewVector(2, []float64{
		astrocore.AngleDiff(o.RA, ra),
		o.Dec - dec,
	}), nil
}

func (o Optical) Jacobian(pairs *PropagatorPairs) (*astrocore.Matrix, error) {
	return pairs.CentralDifference(func(p propagation.Propagator) []float64 {
		ra, dec := o.predictRADec(p)
		return []float64{ra, dec}
	})
}

func (o Optical) CLOS(p propagation.Propagator) (float64, error) {
	ra, dec := o.predictRADec(p)
	dRA := astrocore.AngleDiff(o.RA, ra)
	dDec := o.Dec - dec
	return math.Hypot(dRA, dDec), nil
}

func (o Optical) RICDiff(p propagation.Propagator) (astrocore.Vector3, error) {
	rangeVec, siteInertial := predictFromSite(p, o.Site_, o.EOP)
	_ = siteInertial
	cosDec, sinDec := math.Cos(o.Dec), math.Sin(o.Dec)
	cosRA, sinRA := math.Cos(o.RA), math.Sin(o.RA)
	observedDir := astrocore.NewVector3(cosDec*cosRA, cosDec*sinRA, sinDec).Scale(rangeVec.Norm())
	ric, err := frames.ToRIC(p.State(), astrocore.NewStateVector(p.State().Epoch, p.State().Position.Sub(rangeVec).Add(observedDir), p.State().Velocity, p.State().Frame))
	if err != nil {
		return astrocore.Vector3{}, err
	}
	return ric.DeltaPosition, nil
}

func (o Optical) Sample(rng *distmv.Normal) (Observation, error) {
	noise := rng.Rand(nil)
	out := o
	out.RA = astrocore.WrapTwoPi(o.RA + noise[0])
	out.Dec = o.Dec + noise[1]
	return out, nil
}

// ---- Radar ----

// Radar is a (range, azimuth, elevation) observation, per §4.5.
type Radar struct {
	Epoch_    astrocore.Epoch
	Site_     astrocore.Vector3
	Range     float64 // km
	Azimuth   float64 // rad
	Elevation float64 // rad
	SigmaRange float64
	SigmaAngle float64
	EOP       eop.Provider
	Station   topocentricFrame
}

// topocentricFrame carries the SEZ basis rotation a radar Station
// builds once from its (lat, lon), reused for both az/el prediction and
// CLOS, grounded on legacy/smd/station.go's RangeElAz SEZ rotation.
type topocentricFrame struct {
	latRad, lonRad float64
}

func (t topocentricFrame) rangeAzEl(rangeVecITRF astrocore.Vector3) (rng, az, el float64) {
	rng = rangeVecITRF.Norm()
	sez := sezRotate(t.lonRad, t.latRad, rangeVecITRF)
	el = math.Asin(sez.Z / rng)
	az = astrocore.WrapTwoPi(math.Atan2(sez.Y, -sez.X))
	return
}

// sezRotate rotates an ECEF vector into the topocentric South-East-
// Zenith frame: R2(π/2 - lat) · R3(lon).
func sezRotate(lon, lat float64, v astrocore.Vector3) astrocore.Vector3 {
	cosL, sinL := math.Cos(lon), math.Sin(lon)
	r3 := astrocore.NewVector3(
		cosL*v.X+sinL*v.Y,
		-sinL*v.X+cosL*v.Y,
		v.Z,
	)
	phi := math.Pi/2 - lat
	cosP, sinP := math.Cos(phi), math.Sin(phi)
	return astrocore.NewVector3(
		cosP*r3.X-sinP*r3.Z,
		r3.Y,
		sinP*r3.X+cosP*r3.Z,
	)
}

// NewRadar builds a Radar observation sited at (latRad, lonRad), for
// callers (such as cmd/astrofit's CSV loader) that already have a
// recorded range/azimuth/elevation and need the SEZ basis set up
// correctly rather than left at its zero value.
func NewRadar(epoch astrocore.Epoch, siteITRF astrocore.Vector3, latRad, lonRad, rng, az, el, sigmaRange, sigmaAngle float64, prov eop.Provider) Radar {
	return Radar{
		Epoch_: epoch, Site_: siteITRF, Range: rng, Azimuth: az, Elevation: el,
		SigmaRange: sigmaRange, SigmaAngle: sigmaAngle, EOP: prov,
		Station: topocentricFrame{latRad: latRad, lonRad: lonRad},
	}
}

func (r Radar) Epoch() astrocore.Epoch          { return r.Epoch_ }
func (r Radar) Site() astrocore.Vector3         { return r.Site_ }
func (r Radar) NoiseInverse() *astrocore.Matrix {
	m := astrocore.NewMatrix(3, 3, nil)
	m.Set(0, 0, 1/(r.SigmaRange*r.SigmaRange))
	m.Set(1, 1, 1/(r.SigmaAngle*r.SigmaAngle))
	m.Set(2, 2, 1/(r.SigmaAngle*r.SigmaAngle))
	return m
}
func (r Radar) ToVector() *astrocore.Vector {
	return astrocore.NewVector(3, []float64{r.Range, r.Azimuth, r.Elevation})
}

func (r Radar) predictRangeAzEl(p propagation.Propagator) (rng, az, el float64) {
	itrf, err := frames.J2000ToITRF(p.State(), r.EOP)
	if err != nil {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return r.Station.rangeAzEl(itrf.Position.Sub(r.Site_))
}

func (r Radar) Residual(p propagation.Propagator) (*astrocore.Vector, error) {
	rng, az, el := r.predictRangeAzEl(p)
	return astrocore.NewVector(3, []float64{
		r.Range - rng,
		astrocore.AngleDiff(r.Azimuth, az),
		astrocore.AngleDiff(r.Elevation, el),
	}), nil
}

func (r Radar) Jacobian(pairs *PropagatorPairs) (*astrocore.Matrix, error) {
	return pairs.CentralDifference(func(p propagation.Propagator) []float64 {
		rng, az, el := r.predictRangeAzEl(p)
		return []float64{rng, az, el}
	})
}

func (r Radar) CLOS(p propagation.Propagator) (float64, error) {
	rng, _, _ := r.predictRangeAzEl(p)
	return math.Abs(r.Range - rng), nil
}

func (r Radar) RICDiff(p propagation.Propagator) (astrocore.Vector3, error) {
	rangeVec, _ := predictFromSite(p, r.Site_, r.EOP)
	ric, err := frames.ToRIC(p.State(), astrocore.NewStateVector(p.State().Epoch, p.State().Position.Sub(rangeVec).Add(rangeVec.Scale(r.Range/rangeVec.Norm())), p.State().Velocity, p.State().Frame))
	if err != nil {
		return astrocore.Vector3{}, err
	}
	return ric.DeltaPosition, nil
}

func (r Radar) Sample(rng *distmv.Normal) (Observation, error) {
	noise := rng.Rand(nil)
	out := r
	out.Range = r.Range + noise[0]
	out.Azimuth = astrocore.WrapTwoPi(r.Azimuth + noise[1])
	out.Elevation = r.Elevation + noise[2]
	return out, nil
}

// ---- State ----

// StateObservation observes the full ITRF state, per §4.5; noise
// defaults to 10 m position / 1 mm/s velocity (converted to km, km/s).
type StateObservation struct {
	Epoch_      astrocore.Epoch
	StateITRF   astrocore.StateVector
	SigmaPosKm  float64 // default 0.01 km
	SigmaVelKms float64 // default 1e-6 km/s
}

// DefaultStateSigmaPos/Vel are the spec's stated defaults in km/km-s.
const (
	DefaultStateSigmaPos = 0.01
	DefaultStateSigmaVel = 1e-6
)

func (s StateObservation) Epoch() astrocore.Epoch  { return s.Epoch_ }
func (s StateObservation) Site() astrocore.Vector3 { return s.StateITRF.Position }

func (s StateObservation) NoiseInverse() *astrocore.Matrix {
	m := astrocore.NewMatrix(6, 6, nil)
	for i := 0; i < 3; i++ {
		m.Set(i, i, 1/(s.SigmaPosKm*s.SigmaPosKm))
		m.Set(i+3, i+3, 1/(s.SigmaVelKms*s.SigmaVelKms))
	}
	return m
}

func (s StateObservation) ToVector() *astrocore.Vector {
	return astrocore.NewVector(6, s.StateITRF.Slice())
}

func (s StateObservation) Residual(p propagation.Propagator) (*astrocore.Vector, error) {
	predicted := p.State()
	d := make([]float64, 6)
	want := s.StateITRF.Slice()
	got := predicted.Slice()
	for i := range d {
		d[i] = want[i] - got[i]
	}
	return astrocore.NewVector(6, d), nil
}

func (s StateObservation) Jacobian(pairs *PropagatorPairs) (*astrocore.Matrix, error) {
	return pairs.CentralDifference(func(p propagation.Propagator) []float64 {
		return p.State().Slice()
	})
}

func (s StateObservation) CLOS(p propagation.Propagator) (float64, error) {
	return s.StateITRF.Position.Sub(p.State().Position).Norm(), nil
}

func (s StateObservation) RICDiff(p propagation.Propagator) (astrocore.Vector3, error) {
	ric, err := frames.ToRIC(p.State(), s.StateITRF)
	if err != nil {
		return astrocore.Vector3{}, err
	}
	return ric.DeltaPosition, nil
}

func (s StateObservation) Sample(rng *distmv.Normal) (Observation, error) {
	noise := rng.Rand(nil)
	out := s
	pos := astrocore.NewVector3(noise[0], noise[1], noise[2])
	vel := astrocore.NewVector3(noise[3], noise[4], noise[5])
	out.StateITRF.Position = s.StateITRF.Position.Add(pos)
	out.StateITRF.Velocity = s.StateITRF.Velocity.Add(vel)
	return out, nil
}

// ---- PropagatorPairs ----

// PropagatorPairs holds six (high, low) propagator pairs produced by
// perturbing each component of the nominal state by step (positions
// 1e-5 km, velocities 1e-5 km/s by default), enabling central-difference
// Jacobians without symbolic derivatives, per §4.5.
type PropagatorPairs struct {
	high, low [6]propagation.Propagator
	stepPos   float64
	stepVel   float64
}

// DefaultJacobianStepKm/KmS are the spec's stated default perturbation
// magnitudes.
const (
	DefaultJacobianStepKm   = 1e-5
	DefaultJacobianStepKmS  = 1e-5
)

// NewPropagatorPairs builds the six perturbed-propagator pairs around
// nominal using build to construct a propagator from a perturbed state.
func NewPropagatorPairs(nominal astrocore.StateVector, build func(astrocore.StateVector) propagation.Propagator, stepPos, stepVel float64) *PropagatorPairs {
	pp := &PropagatorPairs{stepPos: stepPos, stepVel: stepVel}
	s := nominal.Slice()
	for i := 0; i < 6; i++ {
		step := stepVel
		if i < 3 {
			step = stepPos
		}
		hi := make([]float64, 6)
		lo := make([]float64, 6)
		copy(hi, s)
		copy(lo, s)
		hi[i] += step
		lo[i] -= step
		pp.high[i] = build(astrocore.StateVectorFromSlice(hi, nominal.Epoch, nominal.Frame))
		pp.low[i] = build(astrocore.StateVectorFromSlice(lo, nominal.Epoch, nominal.Frame))
	}
	return pp
}

// Propagate advances the origin-supplied pair propagators to target in
// lock-step, matching covariance's sigma-point-ensemble invariant that
// every sample shares a common epoch after a propagate call.
func (pp *PropagatorPairs) Propagate(target astrocore.Epoch) error {
	for i := 0; i < 6; i++ {
		if _, err := pp.high[i].Propagate(target); err != nil {
			return err
		}
		if _, err := pp.low[i].Propagate(target); err != nil {
			return err
		}
	}
	return nil
}

// CentralDifference evaluates observe against every perturbed pair and
// returns the m×6 Jacobian ∂h/∂x via central difference.
func (pp *PropagatorPairs) CentralDifference(observe func(propagation.Propagator) []float64) (*astrocore.Matrix, error) {
	var m int
	cols := make([][]float64, 6)
	for i := 0; i < 6; i++ {
		hi := observe(pp.high[i])
		lo := observe(pp.low[i])
		if m == 0 {
			m = len(hi)
		}
		step := pp.stepVel
		if i < 3 {
			step = pp.stepPos
		}
		col := make([]float64, m)
		for r := 0; r < m; r++ {
			col[r] = (hi[r] - lo[r]) / (2 * step)
		}
		cols[i] = col
	}
	out := astrocore.NewMatrix(m, 6, nil)
	for c := 0; c < 6; c++ {
		for r := 0; r < m; r++ {
			out.Set(r, c, cols[c][r])
		}
	}
	return out, nil
}

// ---- Station ----

// Station is a ground station: a fixed geodetic position that produces
// Observations of a propagator's current state, per legacy/smd/
// station.go's Station/PerformMeasurement/RangeElAz, generalized to
// emit any of the three Observation specializations instead of only a
// range/range-rate Measurement.
type Station struct {
	Name          string
	LatitudeRad   float64
	LongitudeRad  float64
	AltitudeKm    float64
	MinElevation  float64 // rad, visibility gate
	PositionITRF  astrocore.Vector3
	RangeNoise    *distmv.Normal
	RangeRateNoise *distmv.Normal
}

// NewStation builds a Station at the given geodetic position (radians,
// km) with Gaussian range/range-rate noise of variance sigmaRange²,
// sigmaRangeRate², mirroring NewSpecialStation's distmv.NewNormal setup.
func NewStation(name string, latRad, lonRad, altKm, minElevation, sigmaRange, sigmaRangeRate float64, seed *rand.Rand) (*Station, error) {
	posITRF := geodeticToECEF(latRad, lonRad, altKm)
	rangeNoise, ok := distmv.NewNormal([]float64{0}, mat64.NewSymDense(1, []float64{sigmaRange * sigmaRange}), seed)
	if !ok {
		return nil, astrocore.NewError(astrocore.ErrDimensionMismatch, "range noise covariance is not positive-definite")
	}
	rateNoise, ok := distmv.NewNormal([]float64{0}, mat64.NewSymDense(1, []float64{sigmaRangeRate * sigmaRangeRate}), seed)
	if !ok {
		return nil, astrocore.NewError(astrocore.ErrDimensionMismatch, "range-rate noise covariance is not positive-definite")
	}
	return &Station{
		Name: name, LatitudeRad: latRad, LongitudeRad: lonRad, AltitudeKm: altKm,
		MinElevation: minElevation, PositionITRF: posITRF,
		RangeNoise: rangeNoise, RangeRateNoise: rateNoise,
	}, nil
}

// geodeticToECEF inverts frames.ToGeodetic's WGS-84 model, the
// construction Station needs to seed its fixed ITRF position.
func geodeticToECEF(latRad, lonRad, altKm float64) astrocore.Vector3 {
	e2 := astrocore.WGS84Eccentricitysq()
	sinLat := math.Sin(latRad)
	n := astrocore.Earth.RadiusEq / math.Sqrt(1-e2*sinLat*sinLat)
	x := (n + altKm) * math.Cos(latRad) * math.Cos(lonRad)
	y := (n + altKm) * math.Cos(latRad) * math.Sin(lonRad)
	z := (n*(1-e2) + altKm) * sinLat
	return astrocore.NewVector3(x, y, z)
}

// Visible reports whether target (ITRF position) is above the
// station's minimum elevation mask.
func (s *Station) Visible(targetITRF astrocore.Vector3) bool {
	rangeVec := targetITRF.Sub(s.PositionITRF)
	_, _, el := topocentricFrame{latRad: s.LatitudeRad, lonRad: s.LongitudeRad}.rangeAzEl(rangeVec)
	return el >= s.MinElevation
}

// ObserveRadar builds a noiseless Radar observation of the propagator's
// current state, converted into ITRF via the given EOP provider.
func (s *Station) ObserveRadar(p propagation.Propagator, prov eop.Provider, sigmaRange, sigmaAngle float64) (Radar, error) {
	itrf, err := frames.J2000ToITRF(p.State(), prov)
	if err != nil {
		return Radar{}, err
	}
	rangeVec := itrf.Position.Sub(s.PositionITRF)
	tf := topocentricFrame{latRad: s.LatitudeRad, lonRad: s.LongitudeRad}
	rng, az, el := tf.rangeAzEl(rangeVec)
	return Radar{
		Epoch_: p.State().Epoch, Site_: s.PositionITRF, Range: rng, Azimuth: az, Elevation: el,
		SigmaRange: sigmaRange, SigmaAngle: sigmaAngle, EOP: prov, Station: tf,
	}, nil
}
