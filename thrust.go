package astrocore

// Thrust is the data model's maneuver primitive: a radial/intrack/
// crosstrack Δv applied at (or integrated around) a center epoch. It is
// impulsive iff Duration is zero, per §3; otherwise Start/Stop bound the
// finite-burn window the force model installs an extra acceleration term
// over. Grounded on legacy/smd/thrusters.go's EPThruster/GenericEP shape
// (thrust magnitude + direction), generalized here to the RIC-component
// form §3 specifies instead of the teacher's voltage/power thruster
// catalog, which is out of this core's scope.
type Thrust struct {
	Center   Epoch
	Radial   float64 // km/s
	Intrack  float64 // km/s
	Crosstrack float64 // km/s
	Start    Epoch
	Stop     Epoch
}

// Duration returns Stop - Start in seconds.
func (t Thrust) Duration() float64 {
	return t.Stop.Sub(t.Start)
}

// Impulsive reports whether t fires instantaneously (Duration == 0).
func (t Thrust) Impulsive() bool {
	return EqualWithinAbs(t.Duration(), 0, 1e-9)
}

// NewImpulsiveThrust builds an impulsive Thrust centered at (and applied
// at) the given epoch.
func NewImpulsiveThrust(center Epoch, radial, intrack, crosstrack float64) Thrust {
	return Thrust{Center: center, Radial: radial, Intrack: intrack, Crosstrack: crosstrack, Start: center, Stop: center}
}

// NewFiniteBurn builds a finite-burn Thrust (a constant RIC acceleration
// equivalent, expressed as a Δv over [start, stop]) matching §4.2's
// finite-burn contract.
func NewFiniteBurn(start, stop Epoch, radial, intrack, crosstrack float64) Thrust {
	return Thrust{Center: start, Radial: radial, Intrack: intrack, Crosstrack: crosstrack, Start: start, Stop: stop}
}

// RICBasis returns the right-handed (radial, in-track, cross-track) unit
// vector triad for a state (r, v): R̂ = r̂, Ŵ = ĥ (r × v, normalized),
// Î = Ŵ × R̂. Used to resolve a Thrust's RIC components (and RIC relative
// states generally) into the inertial frame the state is expressed in.
func RICBasis(position, velocity Vector3) (r, i, c Vector3) {
	r = position.Unit()
	h := position.Cross(velocity)
	c = h.Unit()
	i = c.Cross(r)
	return
}

// InertialDeltaV resolves t's RIC Δv components into the inertial frame
// of the given position/velocity (e.g. the propagator state at Center),
// the construction every impulsive-maneuver application in §4.2 needs.
func (t Thrust) InertialDeltaV(position, velocity Vector3) Vector3 {
	r, i, c := RICBasis(position, velocity)
	return r.Scale(t.Radial).Add(i.Scale(t.Intrack)).Add(c.Scale(t.Crosstrack))
}

// InertialAccel returns the constant RIC acceleration (km/s^2) a
// finite-burn Thrust installs on the force model, i.e. the Δv spread
// uniformly over the burn Duration and resolved into the inertial frame
// at the given instantaneous position/velocity. Panics if t is
// impulsive — finite-burn-only per §4.2.
func (t Thrust) InertialAccel(position, velocity Vector3) Vector3 {
	if t.Impulsive() {
		panic("astrocore: Thrust.InertialAccel requires a finite-burn thrust")
	}
	dur := t.Duration()
	r, i, c := RICBasis(position, velocity)
	return r.Scale(t.Radial / dur).Add(i.Scale(t.Intrack / dur)).Add(c.Scale(t.Crosstrack / dur))
}

// Active reports whether epoch falls within [Start, Stop], the window a
// finite-burn thrust's acceleration term is installed over.
func (t Thrust) Active(epoch Epoch) bool {
	return !epoch.Before(t.Start) && !epoch.After(t.Stop)
}

// Waypoint is the data model's target-epoch/relative-position pair used
// by station-keeping control laws (maneuver.StationKeepingController),
// grounded on legacy/smd/waypoints.go's Waypoint interface, trimmed here
// to the plain value the spec names in §3 (the teacher's Cleared/Action
// state-machine lives in maneuver, which is the package that consumes
// Waypoint against a live propagator).
type Waypoint struct {
	TargetEpoch      Epoch
	RelativePosition Vector3 // km, expressed in the chaser's RIC/EQCM frame
}
