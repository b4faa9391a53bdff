// Package maneuver implements station-keeping control laws and the
// waypoint/loiter abstraction that drives a live propagation.Propagator
// toward a target relative position, per §4.8. Grounded on
// legacy/smd/prop.go's ControlLaw/ThrustControl/Coast/Tangential/
// AntiTangential/OptimalThrust enum-and-interface shape and
// legacy/smd/waypoints.go's Waypoint/Loiter state machine, generalized
// from the teacher's Orbit-typed control laws onto this module's
// Vector3 RIC-relative state and astrocore.Thrust primitive.
package maneuver

import (
	"math"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/frames"
	"github.com/kestrel-space/astrocore/propagation"
)

// ControlLaw identifies a thrust-direction strategy, mirroring
// legacy/smd/prop.go's ControlLaw enum (tangential/antiTangential/
// coast/OptiΔ*), trimmed to the subset a RIC station-keeping loop needs.
type ControlLaw int

const (
	// Coast applies no thrust.
	Coast ControlLaw = iota
	// Tangential thrusts purely along the in-track direction.
	Tangential
	// AntiTangential thrusts purely against the in-track direction.
	AntiTangential
	// Radial thrusts purely along the radial direction.
	Radial
	// AntiRadial thrusts purely against the radial direction.
	AntiRadial
	// OptimalThrust blends radial/intrack/crosstrack components in the
	// direction that most reduces the current RIC position error,
	// mirroring the teacher's OptimalThrust Lyapunov-style control law.
	OptimalThrust
)

func (cl ControlLaw) String() string {
	switch cl {
	case Coast:
		return "coast"
	case Tangential:
		return "tangential"
	case AntiTangential:
		return "antiTangential"
	case Radial:
		return "radial"
	case AntiRadial:
		return "antiRadial"
	case OptimalThrust:
		return "optimalThrust"
	default:
		return "unknown"
	}
}

// ThrustControl computes a unit RIC thrust direction (or the zero
// vector for Coast) from the current RIC position error, mirroring the
// teacher's ThrustControl interface's Control(Orbit) []float64 but
// expressed directly against a RIC error vector instead of an Orbit.
type ThrustControl interface {
	Direction(ricError astrocore.Vector3) astrocore.Vector3
	Law() ControlLaw
}

type coastLaw struct{}

func (coastLaw) Direction(astrocore.Vector3) astrocore.Vector3 { return astrocore.Vector3{} }
func (coastLaw) Law() ControlLaw                               { return Coast }

// CoastControl never thrusts.
var CoastControl ThrustControl = coastLaw{}

type tangentialLaw struct{ reverse bool }

func (t tangentialLaw) Direction(astrocore.Vector3) astrocore.Vector3 {
	if t.reverse {
		return astrocore.NewVector3(0, -1, 0)
	}
	return astrocore.NewVector3(0, 1, 0)
}
func (t tangentialLaw) Law() ControlLaw {
	if t.reverse {
		return AntiTangential
	}
	return Tangential
}

// TangentialControl thrusts purely in-track.
var TangentialControl ThrustControl = tangentialLaw{}

// AntiTangentialControl thrusts purely against in-track.
var AntiTangentialControl ThrustControl = tangentialLaw{reverse: true}

type radialLaw struct{ reverse bool }

func (r radialLaw) Direction(astrocore.Vector3) astrocore.Vector3 {
	if r.reverse {
		return astrocore.NewVector3(-1, 0, 0)
	}
	return astrocore.NewVector3(1, 0, 0)
}
func (r radialLaw) Law() ControlLaw {
	if r.reverse {
		return AntiRadial
	}
	return Radial
}

// RadialControl thrusts purely radially outward.
var RadialControl ThrustControl = radialLaw{}

// AntiRadialControl thrusts purely radially inward.
var AntiRadialControl ThrustControl = radialLaw{reverse: true}

type optimalLaw struct{}

// Direction returns the unit vector along ricError, the steepest-
// descent thrust direction for closing the current RIC position
// error, mirroring the teacher's OptimalThrust law's error-driven
// blend of the three RIC axes.
func (optimalLaw) Direction(ricError astrocore.Vector3) astrocore.Vector3 {
	return ricError.Unit()
}
func (optimalLaw) Law() ControlLaw { return OptimalThrust }

// OptimalThrustControl thrusts along the instantaneous RIC error
// direction.
var OptimalThrustControl ThrustControl = optimalLaw{}

// StationKeepingController drives a live propagator toward a target
// relative (RIC) position by issuing periodic impulsive corrections,
// exponentially smoothing the measured position error between
// corrections so noisy observation-derived errors don't cause thrust
// chatter, per §4.8's station-keeping contract.
type StationKeepingController struct {
	Target       astrocore.Vector3 // desired RIC position, km
	ControlLaw   ControlLaw
	MaxImpulseKmS float64
	DeadbandKm   float64
	SmoothingAlpha float64 // exponential smoothing factor in (0, 1]

	smoothedError astrocore.Vector3
	initialized   bool
}

// NewStationKeepingController builds a controller targeting target
// (RIC km) with the given control law, per-correction Δv cap, deadband
// below which no correction fires, and smoothing factor alpha (smaller
// alpha weights history more heavily, matching an EWMA filter).
func NewStationKeepingController(target astrocore.Vector3, law ControlLaw, maxImpulseKmS, deadbandKm, alpha float64) *StationKeepingController {
	return &StationKeepingController{
		Target: target, ControlLaw: law, MaxImpulseKmS: maxImpulseKmS,
		DeadbandKm: deadbandKm, SmoothingAlpha: alpha,
	}
}

func controlFor(law ControlLaw) ThrustControl {
	switch law {
	case Tangential:
		return TangentialControl
	case AntiTangential:
		return AntiTangentialControl
	case Radial:
		return RadialControl
	case AntiRadial:
		return AntiRadialControl
	case OptimalThrust:
		return OptimalThrustControl
	default:
		return CoastControl
	}
}

// Evaluate computes the current RIC error against a reference state,
// applies exponential smoothing, and returns the impulsive Thrust to
// apply (nil if within the deadband or no correction is needed).
// reference is the chaser being controlled; origin is the state its RIC
// frame is centered on (e.g. a target orbit's current state).
func (c *StationKeepingController) Evaluate(origin, reference astrocore.StateVector) (*astrocore.Thrust, error) {
	rel, err := frames.ToRIC(origin, reference)
	if err != nil {
		return nil, err
	}
	errVec := c.Target.Sub(rel.DeltaPosition)
	if !c.initialized {
		c.smoothedError = errVec
		c.initialized = true
	} else {
		alpha := c.SmoothingAlpha
		if alpha <= 0 || alpha > 1 {
			alpha = 1
		}
		c.smoothedError = c.smoothedError.Scale(1 - alpha).Add(errVec.Scale(alpha))
	}

	if c.smoothedError.Norm() <= c.DeadbandKm {
		return nil, nil
	}

	ctrl := controlFor(c.ControlLaw)
	dir := ctrl.Direction(c.smoothedError)
	if dir.Norm() < 1e-12 {
		return nil, nil
	}
	mag := math.Min(c.MaxImpulseKmS, c.smoothedError.Norm()*c.SmoothingAlpha)
	dv := dir.Scale(mag)
	t := astrocore.NewImpulsiveThrust(reference.Epoch, dv.X, dv.Y, dv.Z)
	return &t, nil
}

// ApplyTo evaluates the controller against ref's current RIC error to
// origin and, if a correction is warranted, applies it as an impulsive
// maneuver on p (p must be propagated to reference's epoch already).
func (c *StationKeepingController) ApplyTo(p propagation.Propagator, origin astrocore.StateVector) (astrocore.StateVector, bool, error) {
	reference := p.State()
	thrust, err := c.Evaluate(origin, reference)
	if err != nil {
		return astrocore.StateVector{}, false, err
	}
	if thrust == nil {
		return reference, false, nil
	}
	states, err := p.Maneuver(*thrust, 0)
	if err != nil {
		return astrocore.StateVector{}, false, err
	}
	if len(states) == 0 {
		return p.State(), true, nil
	}
	return states[len(states)-1], true, nil
}

// ---- Waypoint/Loiter ----

// LoiterWaypoint is a "wait until a duration has elapsed since first
// reached" waypoint, per legacy/smd/waypoints.go's Loiter: cleared
// transitions to true only after DurationSeconds have elapsed since the
// first call to Update following construction.
type LoiterWaypoint struct {
	Waypoint         astrocore.Waypoint
	DurationSeconds  float64

	started bool
	startEpoch astrocore.Epoch
	cleared bool
}

// NewLoiterWaypoint builds a LoiterWaypoint that starts its timer on
// the first Update call.
func NewLoiterWaypoint(wp astrocore.Waypoint, durationSeconds float64) *LoiterWaypoint {
	return &LoiterWaypoint{Waypoint: wp, DurationSeconds: durationSeconds}
}

// Cleared reports whether the loiter duration has elapsed.
func (l *LoiterWaypoint) Cleared() bool { return l.cleared }

// Update advances the loiter's internal timer against the current
// epoch, matching Loiter.ThrustDirection's first-call-starts-the-clock
// behavior, and returns whether it just cleared.
func (l *LoiterWaypoint) Update(current astrocore.Epoch) bool {
	if l.cleared {
		return false
	}
	if !l.started {
		l.started = true
		l.startEpoch = current
		return false
	}
	if current.Sub(l.startEpoch) >= l.DurationSeconds {
		l.cleared = true
		return true
	}
	return false
}

// ---- Hill/Clohessy-Wiltshire waypoint targeting ----

// clohessyWiltshireSTM returns the 3x3 Phi_rr, Phi_rv, Phi_vr, Phi_vv
// blocks of the linearized relative-motion state-transition matrix for
// a circular origin orbit of mean motion n, evaluated over tof seconds.
// Axis order matches RICBasis: (radial, in-track, cross-track).
func clohessyWiltshireSTM(n, tof float64) (rr, rv, vr, vv [3][3]float64) {
	nt := n * tof
	s, c := math.Sincos(nt)

	rr = [3][3]float64{
		{4 - 3*c, 0, 0},
		{6 * (s - nt), 1, 0},
		{0, 0, c},
	}
	rv = [3][3]float64{
		{s / n, 2 * (1 - c) / n, 0},
		{-2 * (1 - c) / n, (4*s - 3*nt) / n, 0},
		{0, 0, s / n},
	}
	vr = [3][3]float64{
		{3 * n * s, 0, 0},
		{-6 * n * (1 - c), 0, 0},
		{0, 0, -n * s},
	}
	vv = [3][3]float64{
		{c, 2 * s, 0},
		{-2 * s, 4*c - 3, 0},
		{0, 0, c},
	}
	return
}

func matVec3(a [3][3]float64, v astrocore.Vector3) astrocore.Vector3 {
	s := v.Slice()
	return astrocore.NewVector3(
		a[0][0]*s[0]+a[0][1]*s[1]+a[0][2]*s[2],
		a[1][0]*s[0]+a[1][1]*s[1]+a[1][2]*s[2],
		a[2][0]*s[0]+a[2][1]*s[1]+a[2][2]*s[2],
	)
}

func mat3ToMatrix(a [3][3]float64) *astrocore.Matrix {
	m := astrocore.NewMatrix(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, a[i][j])
		}
	}
	return m
}

// SolveWaypointDeltaV computes the impulsive RIC Δv a chaser must apply
// at its current RIC relative state (relPos, relVel, km/km-s) so that,
// after tof seconds of linearized Clohessy-Wiltshire free drift around
// an origin orbit of mean motion n (rad/s), it reaches wp's target
// relative position, per §4.10's Hill/EQCM targeting use of Waypoint.
// Grounded in the Hill-equations two-point boundary value problem the
// teacher's waypoint-driven control laws approximate iteratively;
// solved here in closed form via the CW state-transition matrix, since
// the 12-parameter Phi block pattern is a direct, exact alternative to
// legacy/smd/prop.go's per-step optimal-control-law search.
func SolveWaypointDeltaV(n float64, relPos, relVel astrocore.Vector3, wp astrocore.Waypoint, tof float64) (astrocore.Vector3, error) {
	if tof <= 0 {
		return astrocore.Vector3{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "SolveWaypointDeltaV requires a positive time of flight")
	}
	rrBlk, rvBlk, _, _ := clohessyWiltshireSTM(n, tof)
	target := wp.RelativePosition
	rhs := target.Sub(matVec3(rrBlk, relPos))

	rv := mat3ToMatrix(rvBlk)
	b := astrocore.NewMatrix(3, 1, rhs.Slice())
	solved, err := rv.Solve(b)
	if err != nil {
		return astrocore.Vector3{}, err
	}
	neededVel := astrocore.NewVector3(solved.At(0, 0), solved.At(1, 0), solved.At(2, 0))
	return neededVel.Sub(relVel), nil
}

// PropagateRelative advances a RIC relative state (relPos, relVel) by
// tof seconds of linearized Clohessy-Wiltshire free drift around an
// origin orbit of mean motion n, the forward half of the same STM
// SolveWaypointDeltaV inverts.
func PropagateRelative(n float64, relPos, relVel astrocore.Vector3, tof float64) (astrocore.Vector3, astrocore.Vector3) {
	rr, rv, vr, vv := clohessyWiltshireSTM(n, tof)
	newPos := matVec3(rr, relPos).Add(matVec3(rv, relVel))
	newVel := matVec3(vr, relPos).Add(matVec3(vv, relVel))
	return newPos, newVel
}
