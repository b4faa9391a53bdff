package maneuver

import (
	"math"
	"testing"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/propagation"
)

func circularState() astrocore.StateVector {
	r := astrocore.Earth.RadiusEq + 500
	v := math.Sqrt(astrocore.Earth.GM / r)
	return astrocore.NewStateVector(
		astrocore.NewEpoch(0),
		astrocore.NewVector3(r, 0, 0),
		astrocore.NewVector3(0, v, 0),
		astrocore.FrameJ2000,
	)
}

func TestControlLawString(t *testing.T) {
	cases := map[ControlLaw]string{
		Coast:          "coast",
		Tangential:     "tangential",
		AntiTangential: "antiTangential",
		Radial:         "radial",
		AntiRadial:     "antiRadial",
		OptimalThrust:  "optimalThrust",
		ControlLaw(99): "unknown",
	}
	for law, want := range cases {
		if got := law.String(); got != want {
			t.Fatalf("ControlLaw(%d).String() = %q, want %q", law, got, want)
		}
	}
}

func TestCoastControlNeverThrusts(t *testing.T) {
	dir := CoastControl.Direction(astrocore.NewVector3(1, 2, 3))
	if dir.Norm() != 0 {
		t.Fatalf("expected coast direction to be the zero vector, got %+v", dir)
	}
	if CoastControl.Law() != Coast {
		t.Fatalf("expected CoastControl.Law() == Coast")
	}
}

func TestTangentialControlsAreOpposed(t *testing.T) {
	err := astrocore.NewVector3(1, 1, 1)
	fwd := TangentialControl.Direction(err)
	back := AntiTangentialControl.Direction(err)
	if !astrocore.EqualWithinAbs(fwd.Y, 1, 1e-12) || fwd.X != 0 || fwd.Z != 0 {
		t.Fatalf("expected pure +in-track direction, got %+v", fwd)
	}
	if !astrocore.EqualWithinAbs(back.Y, -1, 1e-12) {
		t.Fatalf("expected pure -in-track direction, got %+v", back)
	}
	if TangentialControl.Law() != Tangential || AntiTangentialControl.Law() != AntiTangential {
		t.Fatal("expected tangential control laws to report their own identity")
	}
}

func TestRadialControlsAreOpposed(t *testing.T) {
	err := astrocore.NewVector3(1, 1, 1)
	out := RadialControl.Direction(err)
	in := AntiRadialControl.Direction(err)
	if !astrocore.EqualWithinAbs(out.X, 1, 1e-12) {
		t.Fatalf("expected pure +radial direction, got %+v", out)
	}
	if !astrocore.EqualWithinAbs(in.X, -1, 1e-12) {
		t.Fatalf("expected pure -radial direction, got %+v", in)
	}
	if RadialControl.Law() != Radial || AntiRadialControl.Law() != AntiRadial {
		t.Fatal("expected radial control laws to report their own identity")
	}
}

func TestOptimalThrustFollowsErrorDirection(t *testing.T) {
	errVec := astrocore.NewVector3(3, 0, 4)
	dir := OptimalThrustControl.Direction(errVec)
	if !astrocore.EqualWithinAbs(dir.Norm(), 1, 1e-12) {
		t.Fatalf("expected a unit direction, got norm %f", dir.Norm())
	}
	if !astrocore.EqualWithinAbs(dir.X, 0.6, 1e-12) || !astrocore.EqualWithinAbs(dir.Z, 0.8, 1e-12) {
		t.Fatalf("expected direction along the error vector, got %+v", dir)
	}
	if OptimalThrustControl.Law() != OptimalThrust {
		t.Fatal("expected OptimalThrustControl.Law() == OptimalThrust")
	}
}

func TestStationKeepingEvaluateSuppressesWithinDeadband(t *testing.T) {
	sv := circularState()
	c := NewStationKeepingController(astrocore.Vector3{}, OptimalThrust, 1.0, 0.5, 1.0)
	thrust, err := c.Evaluate(sv, sv)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if thrust != nil {
		t.Fatalf("expected no thrust when the chaser is already at the target, got %+v", thrust)
	}
}

func TestStationKeepingEvaluateFiresOutsideDeadband(t *testing.T) {
	sv := circularState()
	offset := sv
	offset.Position = offset.Position.Add(astrocore.NewVector3(0, 2, 0))

	c := NewStationKeepingController(astrocore.Vector3{}, OptimalThrust, 10.0, 0.1, 1.0)
	thrust, err := c.Evaluate(sv, offset)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if thrust == nil {
		t.Fatal("expected a correction thrust outside the deadband")
	}
	if !thrust.Impulsive() {
		t.Fatal("expected Evaluate to return an impulsive thrust")
	}
	dv := astrocore.NewVector3(thrust.Radial, thrust.Intrack, thrust.Crosstrack)
	if dv.Norm() <= 0 || dv.Norm() > c.MaxImpulseKmS+1e-9 {
		t.Fatalf("expected a nonzero thrust capped at MaxImpulseKmS, got norm %f", dv.Norm())
	}
}

func TestStationKeepingMaxImpulseCapsMagnitude(t *testing.T) {
	sv := circularState()
	offset := sv
	offset.Position = offset.Position.Add(astrocore.NewVector3(0, 100, 0))

	c := NewStationKeepingController(astrocore.Vector3{}, OptimalThrust, 0.01, 0.1, 1.0)
	thrust, err := c.Evaluate(sv, offset)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if thrust == nil {
		t.Fatal("expected a correction thrust for a large error")
	}
	dv := astrocore.NewVector3(thrust.Radial, thrust.Intrack, thrust.Crosstrack)
	if dv.Norm() > c.MaxImpulseKmS+1e-9 {
		t.Fatalf("expected thrust magnitude capped at %f, got %f", c.MaxImpulseKmS, dv.Norm())
	}
}

func TestStationKeepingCoastLawNeverProducesThrust(t *testing.T) {
	sv := circularState()
	offset := sv
	offset.Position = offset.Position.Add(astrocore.NewVector3(0, 5, 0))

	c := NewStationKeepingController(astrocore.Vector3{}, Coast, 10.0, 0.0, 1.0)
	thrust, err := c.Evaluate(sv, offset)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if thrust != nil {
		t.Fatal("expected Coast to never produce a thrust regardless of error")
	}
}

func TestStationKeepingApplyToAppliesCorrection(t *testing.T) {
	sv := circularState()
	p, err := propagation.NewKeplerPropagator(sv, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("NewKeplerPropagator: %v", err)
	}
	offset := sv
	offset.Position = offset.Position.Add(astrocore.NewVector3(0, 3, 0))
	if _, err := p.Propagate(astrocore.NewEpoch(0)); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	c := NewStationKeepingController(astrocore.Vector3{}, OptimalThrust, 10.0, 0.1, 1.0)
	_, applied, err := c.ApplyTo(p, offset)
	if err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	if !applied {
		t.Fatal("expected ApplyTo to report that a correction was applied")
	}
}

func TestStationKeepingApplyToSkipsWithinDeadband(t *testing.T) {
	sv := circularState()
	p, err := propagation.NewKeplerPropagator(sv, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("NewKeplerPropagator: %v", err)
	}
	c := NewStationKeepingController(astrocore.Vector3{}, OptimalThrust, 10.0, 1.0, 1.0)
	before := p.State()
	after, applied, err := c.ApplyTo(p, sv)
	if err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	if applied {
		t.Fatal("expected no correction when the chaser already matches the target")
	}
	if !astrocore.EqualWithinAbs(after.Position.X, before.Position.X, 1e-9) {
		t.Fatalf("expected the propagator state to pass through unchanged, got %+v vs %+v", after.Position, before.Position)
	}
}

func TestLoiterWaypointFirstUpdateStartsTheClock(t *testing.T) {
	wp := astrocore.Waypoint{TargetEpoch: astrocore.NewEpoch(100), RelativePosition: astrocore.NewVector3(1, 0, 0)}
	l := NewLoiterWaypoint(wp, 60)
	if l.Cleared() {
		t.Fatal("expected a fresh LoiterWaypoint to not be cleared")
	}
	if cleared := l.Update(astrocore.NewEpoch(0)); cleared {
		t.Fatal("expected the first Update call to only start the timer, not clear")
	}
	if l.Cleared() {
		t.Fatal("expected Cleared() to remain false immediately after the first Update")
	}
}

func TestLoiterWaypointClearsExactlyOnceAfterDuration(t *testing.T) {
	wp := astrocore.Waypoint{TargetEpoch: astrocore.NewEpoch(100), RelativePosition: astrocore.NewVector3(1, 0, 0)}
	l := NewLoiterWaypoint(wp, 60)
	l.Update(astrocore.NewEpoch(0))
	if cleared := l.Update(astrocore.NewEpoch(30)); cleared {
		t.Fatal("expected no clear before the duration elapses")
	}
	if l.Cleared() {
		t.Fatal("expected Cleared() false before the duration elapses")
	}
	if cleared := l.Update(astrocore.NewEpoch(60)); !cleared {
		t.Fatal("expected Update to report clearing once the duration elapses")
	}
	if !l.Cleared() {
		t.Fatal("expected Cleared() true once the duration has elapsed")
	}
	if cleared := l.Update(astrocore.NewEpoch(120)); cleared {
		t.Fatal("expected Update to report no further clear transitions once already cleared")
	}
}

func TestSolveWaypointDeltaVRejectsNonPositiveTOF(t *testing.T) {
	wp := astrocore.Waypoint{RelativePosition: astrocore.Vector3{}}
	if _, err := SolveWaypointDeltaV(0.001, astrocore.NewVector3(0, -10, 0), astrocore.Vector3{}, wp, 0); err == nil {
		t.Fatal("expected an error for a non-positive time of flight")
	}
}

func TestSolveWaypointDeltaVReachesTargetUnderPropagateRelative(t *testing.T) {
	// GEO mean motion.
	mu := astrocore.Earth.GM
	a := 42164.0
	n := math.Sqrt(mu / (a * a * a))

	relPos := astrocore.NewVector3(0, -10, 0)
	relVel := astrocore.NewVector3(0, 0, 0.005)
	tof := 1200.0
	wp := astrocore.Waypoint{RelativePosition: astrocore.Vector3{}}

	dv, err := SolveWaypointDeltaV(n, relPos, relVel, wp, tof)
	if err != nil {
		t.Fatalf("SolveWaypointDeltaV: %v", err)
	}

	poweredVel := relVel.Add(dv)
	gotPos, _ := PropagateRelative(n, relPos, poweredVel, tof)
	if !astrocore.EqualWithinAbs(gotPos.X, wp.RelativePosition.X, 1e-6) ||
		!astrocore.EqualWithinAbs(gotPos.Y, wp.RelativePosition.Y, 1e-6) ||
		!astrocore.EqualWithinAbs(gotPos.Z, wp.RelativePosition.Z, 1e-6) {
		t.Fatalf("expected the solved Δv to land exactly on the waypoint, got %+v want %+v", gotPos, wp.RelativePosition)
	}
}

func TestPropagateRelativeIsIdentityAtZeroDrift(t *testing.T) {
	n := 0.001
	relPos := astrocore.NewVector3(1, 2, 3)
	relVel := astrocore.Vector3{}
	pos, vel := PropagateRelative(n, relPos, relVel, 0)
	if !astrocore.EqualWithinAbs(pos.X, relPos.X, 1e-9) || !astrocore.EqualWithinAbs(pos.Y, relPos.Y, 1e-9) || !astrocore.EqualWithinAbs(pos.Z, relPos.Z, 1e-9) {
		t.Fatalf("expected zero time-of-flight to leave the relative position unchanged, got %+v", pos)
	}
	if vel.Norm() != 0 {
		t.Fatalf("expected zero velocity drift at tof=0 from zero relative velocity, got %+v", vel)
	}
}
