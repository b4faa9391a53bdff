// Package propagation implements the abstract Propagator contract of
// §4.2 and its concrete numerical/analytic implementations: two-body
// Kepler, fixed-step RK4, the adaptive embedded Dormand-Prince 5(4) pair
// and RK89Propagator (which runs Fehlberg's 7(8) pair, not an 8(9) one),
// plus checkpoint/maneuver/ephemeris-maneuver machinery
// shared by all of them. Grounded on legacy/smd/mission.go's
// GetState/SetState/Stop/Func ode.Integrable contract for the fixed-step
// engine and legacy/smd/estimate.go's PropagateUntil/STM bookkeeping for
// the checkpoint style.
package propagation

import (
	"math"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/elements"
	"github.com/kestrel-space/astrocore/forcemodel"
	"github.com/kestrel-space/astrocore/interp"
	"github.com/ChristopherRabotin/ode"
)

// Propagator is the abstract contract every propagation engine in this
// package implements, per §4.2.
type Propagator interface {
	// Propagate advances (or rewinds) to target and returns the new state.
	Propagate(target astrocore.Epoch) (astrocore.StateVector, error)
	// State returns the current cached state without propagating.
	State() astrocore.StateVector
	// Reset restores the propagator to its originally constructed state.
	Reset()
	// Checkpoint pushes the current state onto the checkpoint stack and
	// returns an opaque handle (the stack depth at push time).
	Checkpoint() int
	// Restore pops back to the state at handle, discarding everything
	// pushed after it.
	Restore(handle int)
	// ClearCheckpoints empties the checkpoint stack.
	ClearCheckpoints()
	// Maneuver applies an impulsive Δv at thrust.Center (propagating
	// there first if needed) and returns the post-burn trajectory sampled
	// every sampleInterval seconds from the propagator's epoch before the
	// call to thrust.Center, where the propagator is left.
	Maneuver(thrust astrocore.Thrust, sampleInterval float64) ([]astrocore.StateVector, error)
	// EphemerisManeuver integrates from start to finish with the given
	// finite-burn thrusts loaded on the force model, sampling every
	// interval seconds, and returns an interpolator over the result.
	EphemerisManeuver(start, finish astrocore.Epoch, thrusts []astrocore.Thrust, interval float64) (interp.Interpolator, error)
}

// base carries the cached-state/checkpoint-stack bookkeeping every
// Propagator implementation shares, per §3's lifecycle note ("a
// propagator caches (current-state, step-size, checkpoint-stack)").
type base struct {
	initial     astrocore.StateVector
	current     astrocore.StateVector
	checkpoints []astrocore.StateVector
}

func newBase(initial astrocore.StateVector) base {
	return base{initial: initial, current: initial}
}

func (b *base) State() astrocore.StateVector { return b.current }

func (b *base) Reset() {
	b.current = b.initial
	b.checkpoints = nil
}

func (b *base) Checkpoint() int {
	b.checkpoints = append(b.checkpoints, b.current)
	return len(b.checkpoints) - 1
}

func (b *base) Restore(handle int) {
	if handle < 0 || handle >= len(b.checkpoints) {
		panic("propagation: invalid checkpoint handle")
	}
	b.current = b.checkpoints[handle]
	b.checkpoints = b.checkpoints[:handle]
}

func (b *base) ClearCheckpoints() {
	b.checkpoints = nil
}

// sampleEphemeris runs propagate(target) repeatedly at interval-second
// steps from start to finish (inclusive), the shared sampling loop
// Maneuver and EphemerisManeuver both need. The returned ephemeris is
// strictly monotonic in epoch per §5's ordering contract.
func sampleEphemeris(propagate func(astrocore.Epoch) (astrocore.StateVector, error), start, finish astrocore.Epoch, interval float64) ([]astrocore.StateVector, error) {
	if interval <= 0 {
		panic("propagation: sample interval must be positive")
	}
	span := finish.Sub(start)
	dir := 1.0
	if span < 0 {
		dir = -1.0
	}
	out := make([]astrocore.StateVector, 0, int(math.Abs(span)/interval)+2)
	t := start
	for {
		sv, err := propagate(t)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
		if (dir > 0 && !t.Before(finish)) || (dir < 0 && !t.After(finish)) {
			break
		}
		next := t.Roll(dir * interval)
		if (dir > 0 && next.After(finish)) || (dir < 0 && next.Before(finish)) {
			next = finish
		}
		t = next
	}
	return out, nil
}

// ---- Kepler (analytic two-body) ----

// KeplerPropagator advances mean anomaly linearly and solves Kepler's
// equation for the resulting true anomaly (§4.2), preserving every other
// classical element. The only propagator that needs no force model.
type KeplerPropagator struct {
	base
	elements elements.ClassicalElements
	frame    astrocore.Frame
}

// NewKeplerPropagator builds a KeplerPropagator from an inertial state.
func NewKeplerPropagator(sv astrocore.StateVector, mu float64) (*KeplerPropagator, error) {
	ce, err := elements.FromCartesian(sv, mu)
	if err != nil {
		return nil, err
	}
	return &KeplerPropagator{base: newBase(sv), elements: ce, frame: sv.Frame}, nil
}

// Propagate implements Propagator.
func (k *KeplerPropagator) Propagate(target astrocore.Epoch) (astrocore.StateVector, error) {
	dt := target.Sub(k.current.Epoch)
	k.elements = k.elements.KeplerPropagate(dt)
	k.current = k.elements.ToCartesian(k.frame)
	return k.current, nil
}

// Reset restores both the cached Cartesian state and the classical
// elements it was built from.
func (k *KeplerPropagator) Reset() {
	k.base.Reset()
	ce, _ := elements.FromCartesian(k.initial, k.elements.GM)
	k.elements = ce
}

// Maneuver applies an impulsive Δv, rebuilding the classical elements
// from the post-burn Cartesian state, then samples the ephemeris back to
// the propagator's prior epoch.
func (k *KeplerPropagator) Maneuver(thrust astrocore.Thrust, sampleInterval float64) ([]astrocore.StateVector, error) {
	return genericImpulsiveManeuver(k, thrust, sampleInterval, func(sv astrocore.StateVector) error {
		ce, err := elements.FromCartesian(sv, k.elements.GM)
		if err != nil {
			return err
		}
		k.elements = ce
		return nil
	})
}

// EphemerisManeuver is not supported analytically (Kepler propagation
// has no force model to install a finite burn on); callers needing
// finite-burn maneuvers under two-body dynamics should use RK4Propagator
// with a point-mass-only ForceModel instead.
func (k *KeplerPropagator) EphemerisManeuver(start, finish astrocore.Epoch, thrusts []astrocore.Thrust, interval float64) (interp.Interpolator, error) {
	return nil, astrocore.NewError(astrocore.ErrDimensionMismatch, "KeplerPropagator does not support finite-burn maneuvers; use RK4Propagator")
}

// genericImpulsiveManeuver is the shared impulsive-maneuver application
// every Propagator implementation's Maneuver method delegates to:
// propagate to the thrust's center, add the RIC Δv to velocity, let the
// caller resynchronize any element-domain cache, then sample back out.
func genericImpulsiveManeuver(p Propagator, thrust astrocore.Thrust, sampleInterval float64, resync func(astrocore.StateVector) error) ([]astrocore.StateVector, error) {
	if !thrust.Impulsive() {
		return nil, astrocore.NewError(astrocore.ErrDimensionMismatch, "Maneuver requires an impulsive thrust; use EphemerisManeuver for finite burns")
	}
	before := p.State()
	at, err := p.Propagate(thrust.Center)
	if err != nil {
		return nil, err
	}
	dv := thrust.InertialDeltaV(at.Position, at.Velocity)
	after := astrocore.NewStateVector(at.Epoch, at.Position, at.Velocity.Add(dv), at.Frame)
	if err := resync(after); err != nil {
		return nil, err
	}
	return sampleEphemeris(p.Propagate, before.Epoch, after.Epoch, sampleInterval)
}

// ---- RK4 (fixed-step) ----

// RK4Propagator is a fixed-step integrator over a six-dimensional
// Cartesian state, direction inferred from the sign of (target-current),
// marching until the remaining delta is zero, per §4.2. Grounded on
// legacy/smd/mission.go's ode.NewRK4(...).Solve() usage.
type RK4Propagator struct {
	base
	model    *forcemodel.Model
	stepSize float64 // seconds, always positive; direction is inferred
}

// NewRK4Propagator builds a fixed-step RK4 propagator. stepSize must be
// positive; direction is inferred per-call from the target epoch.
func NewRK4Propagator(sv astrocore.StateVector, model *forcemodel.Model, stepSize float64) *RK4Propagator {
	if stepSize <= 0 {
		panic("propagation: RK4Propagator stepSize must be positive")
	}
	return &RK4Propagator{base: newBase(sv), model: model, stepSize: stepSize}
}

// rk4Integrable adapts a single propagate() call to ode.Integrable's
// GetState/SetState/Stop/Func contract, matching Mission's shape in
// mission.go exactly but scoped to one call instead of a whole mission.
type rk4Integrable struct {
	y        []float64
	epoch    astrocore.Epoch
	stepSecs float64
	target   float64 // seconds elapsed from epoch at construction
	model    *forcemodel.Model
	done     bool
}

func (r *rk4Integrable) GetState() []float64 { return r.y }

func (r *rk4Integrable) SetState(t float64, s []float64) {
	r.y = s
}

func (r *rk4Integrable) Stop(t float64) bool {
	if r.stepSecs > 0 {
		return t >= r.target-1e-9
	}
	return t <= r.target+1e-9
}

func (r *rk4Integrable) Func(t float64, f []float64) []float64 {
	return r.model.Derivative(r.epoch.Roll(t), f)
}

// Propagate implements Propagator: it integrates from the current
// cached state to target with fixed steps of stepSize (signed to match
// direction), per §4.2's "marches until delta = 0" contract.
func (r *RK4Propagator) Propagate(target astrocore.Epoch) (astrocore.StateVector, error) {
	delta := target.Sub(r.current.Epoch)
	if astrocore.EqualWithinAbs(delta, 0, 1e-9) {
		return r.current, nil
	}
	step := r.stepSize
	if delta < 0 {
		step = -r.stepSize
	}
	integ := &rk4Integrable{
		y:        r.current.Slice(),
		epoch:    r.current.Epoch,
		stepSecs: step,
		target:   delta,
		model:    r.model,
	}
	ode.NewRK4(0, step, integ).Solve()
	r.current = astrocore.StateVectorFromSlice(integ.y, target, r.current.Frame)
	return r.current, nil
}

// Maneuver applies an impulsive Δv at thrust.Center.
func (r *RK4Propagator) Maneuver(thrust astrocore.Thrust, sampleInterval float64) ([]astrocore.StateVector, error) {
	return genericImpulsiveManeuver(r, thrust, sampleInterval, func(sv astrocore.StateVector) error { r.current = sv; return nil })
}

// EphemerisManeuver installs each finite-burn thrust on a cloned force
// model (so the nominal model is untouched, per §4.3/§5's cloning
// rule), integrates from start to finish, samples every interval
// seconds, and wraps the result in a Lagrange interpolator.
func (r *RK4Propagator) EphemerisManeuver(start, finish astrocore.Epoch, thrusts []astrocore.Thrust, interval float64) (interp.Interpolator, error) {
	burning := r.model.Clone()
	for _, th := range thrusts {
		burning.LoadManeuver(th)
	}
	tmp := &RK4Propagator{base: newBase(r.current), model: burning, stepSize: r.stepSize}
	if _, err := tmp.Propagate(start); err != nil {
		return nil, err
	}
	samples, err := sampleEphemeris(tmp.Propagate, start, finish, interval)
	if err != nil {
		return nil, err
	}
	r.current = samples[len(samples)-1]
	return interp.NewLagrange(samples, 7)
}

// ---- Adaptive embedded Runge-Kutta (shared base) ----

// butcherTableau carries the coefficients an embedded Runge-Kutta method
// needs: a (stage coupling), b (lower-order weights), ch (higher-order
// weights), c (stage abscissae), per §4.2's "shared base with Butcher
// tableau coefficients a, b, ch, c".
type butcherTableau struct {
	order int
	c     []float64
	a     [][]float64
	b     []float64 // lower-order solution weights
	ch    []float64 // higher-order solution weights
}

// dormandPrince54 is the classical Dormand-Prince 5(4) tableau.
var dormandPrince54 = butcherTableau{
	order: 5,
	c:     []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
	a: [][]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	},
	ch: []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
	b:  []float64{5179.0 / 57600, 0, 7571.0 / 16695, 393.0 / 640, -92097.0 / 339200, 187.0 / 2100, 1.0 / 40},
}

// rk89 holds Fehlberg's 13-stage RK7(8) embedded pair: b is the 7th-order
// solution, ch the 8th-order one that advances the state, and order 7
// drives step-size control. It is not an 8(9) tableau; RK89Propagator
// runs these coefficients through the generic embedded-step machinery.
var rk89 = butcherTableau{
	order: 7,
	c:     []float64{0, 2.0 / 27, 1.0 / 9, 1.0 / 6, 5.0 / 12, 1.0 / 2, 5.0 / 6, 1.0 / 6, 2.0 / 3, 1.0 / 3, 1, 0, 1},
	a: [][]float64{
		{},
		{2.0 / 27},
		{1.0 / 36, 1.0 / 12},
		{1.0 / 24, 0, 1.0 / 8},
		{5.0 / 12, 0, -25.0 / 16, 25.0 / 16},
		{1.0 / 20, 0, 0, 1.0 / 4, 1.0 / 5},
		{-25.0 / 108, 0, 0, 125.0 / 108, -65.0 / 27, 125.0 / 54},
		{31.0 / 300, 0, 0, 0, 61.0 / 225, -2.0 / 9, 13.0 / 900},
		{2, 0, 0, -53.0 / 6, 704.0 / 45, -107.0 / 9, 67.0 / 90, 3},
		{-91.0 / 108, 0, 0, 23.0 / 108, -976.0 / 135, 311.0 / 54, -19.0 / 60, 17.0 / 6, -1.0 / 12},
		{2383.0 / 4100, 0, 0, -341.0 / 164, 4496.0 / 1025, -301.0 / 82, 2133.0 / 4100, 45.0 / 82, 45.0 / 164, 18.0 / 41},
		{3.0 / 205, 0, 0, 0, 0, -6.0 / 41, -3.0 / 205, -3.0 / 41, 3.0 / 41, 6.0 / 41, 0},
		{-1777.0 / 4100, 0, 0, -341.0 / 164, 4496.0 / 1025, -289.0 / 82, 2193.0 / 4100, 51.0 / 82, 33.0 / 164, 12.0 / 41, 0, 1},
	},
	b:  []float64{41.0 / 840, 0, 0, 0, 0, 34.0 / 105, 9.0 / 35, 9.0 / 35, 9.0 / 280, 9.0 / 280, 41.0 / 840, 0, 0},
	ch: []float64{0, 0, 0, 0, 0, 34.0 / 105, 9.0 / 35, 9.0 / 35, 9.0 / 280, 9.0 / 280, 0, 41.0 / 840, 41.0 / 840},
}

const maxStepRejections = 16

// adaptiveStep advances y by an attempted step h from t using tableau,
// returning the higher-order solution, the achieved step (which may
// differ from h on the final converging attempt), the suggested next
// step, and an error estimate, applying §4.2's accept/reject and
// step-size-control rules. tol is an absolute tolerance on the Euclidean
// norm ‖y_hi - y_lo‖ over all six components.
func adaptiveStep(f func(t float64, y []float64) []float64, t float64, y []float64, h, tol float64, tab butcherTableau) (yNext []float64, achieved, hNext float64, err error) {
	n := len(y)
	stages := len(tab.c)
	for attempt := 0; attempt < maxStepRejections; attempt++ {
		k := make([][]float64, stages)
		for s := 0; s < stages; s++ {
			ys := make([]float64, n)
			copy(ys, y)
			for j := 0; j < s; j++ {
				if tab.a[s][j] == 0 {
					continue
				}
				for idx := range ys {
					ys[idx] += h * tab.a[s][j] * k[j][idx]
				}
			}
			k[s] = f(t+tab.c[s]*h, ys)
		}
		yHi := make([]float64, n)
		yLo := make([]float64, n)
		copy(yHi, y)
		copy(yLo, y)
		for s := 0; s < stages; s++ {
			for idx := range yHi {
				yHi[idx] += h * tab.ch[s] * k[s][idx]
				yLo[idx] += h * tab.b[s] * k[s][idx]
			}
		}
		var errNorm float64
		for idx := range yHi {
			d := yHi[idx] - yLo[idx]
			errNorm += d * d
		}
		errNorm = math.Sqrt(errNorm)

		factor := 0.9 * math.Pow(tol/math.Max(errNorm, 1e-300), 1.0/float64(tab.order))
		factor = clamp(factor, 0.1, 5.0)
		suggested := h * factor

		if errNorm <= tol {
			return yHi, h, suggested, nil
		}
		h = suggested
	}
	return nil, 0, 0, astrocore.NewError(astrocore.ErrStepRejectionLimit, "step rejected %d times", maxStepRejections)
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

// adaptivePropagator shares the march-to-target loop between
// DormandPrince54Propagator and RK89Propagator; only the tableau and the
// initial step-size guess differ.
type adaptivePropagator struct {
	base
	model      *forcemodel.Model
	tableau    butcherTableau
	tolerance  float64
	initialH   float64
}

func (p *adaptivePropagator) propagateCommon(target astrocore.Epoch) (astrocore.StateVector, error) {
	y := p.current.Slice()
	t := 0.0
	tEnd := target.Sub(p.current.Epoch)
	if astrocore.EqualWithinAbs(tEnd, 0, 1e-9) {
		return p.current, nil
	}
	h := p.initialH
	if tEnd < 0 {
		h = -p.initialH
	}
	epoch0 := p.current.Epoch
	f := func(tt float64, yy []float64) []float64 {
		return p.model.Derivative(epoch0.Roll(tt), yy)
	}
	for (h > 0 && t < tEnd) || (h < 0 && t > tEnd) {
		if (h > 0 && t+h > tEnd) || (h < 0 && t+h < tEnd) {
			h = tEnd - t
		}
		yNext, achieved, hNext, err := adaptiveStep(f, t, y, h, p.tolerance, p.tableau)
		if err != nil {
			return astrocore.StateVector{}, err
		}
		y = yNext
		t += achieved
		h = hNext
		if tEnd < 0 && h > 0 {
			h = -h
		}
		if tEnd > 0 && h < 0 {
			h = -h
		}
	}
	p.current = astrocore.StateVectorFromSlice(y, target, p.current.Frame)
	return p.current, nil
}

// DormandPrince54Propagator is the adaptive Dormand-Prince 5(4)
// embedded Runge-Kutta propagator of §4.2.
type DormandPrince54Propagator struct {
	adaptivePropagator
}

// NewDormandPrince54Propagator builds an adaptive DP54 propagator with
// the given absolute tolerance and initial step-size guess (seconds).
func NewDormandPrince54Propagator(sv astrocore.StateVector, model *forcemodel.Model, tolerance, initialStepSeconds float64) *DormandPrince54Propagator {
	return &DormandPrince54Propagator{adaptivePropagator{
		base: newBase(sv), model: model, tableau: dormandPrince54, tolerance: tolerance, initialH: initialStepSeconds,
	}}
}

// Propagate implements Propagator.
func (p *DormandPrince54Propagator) Propagate(target astrocore.Epoch) (astrocore.StateVector, error) {
	return p.propagateCommon(target)
}

// Maneuver applies an impulsive Δv.
func (p *DormandPrince54Propagator) Maneuver(thrust astrocore.Thrust, sampleInterval float64) ([]astrocore.StateVector, error) {
	return genericImpulsiveManeuver(p, thrust, sampleInterval, func(sv astrocore.StateVector) error { p.current = sv; return nil })
}

// EphemerisManeuver installs finite-burn thrusts on a cloned model and
// integrates the window, sampling at interval seconds.
func (p *DormandPrince54Propagator) EphemerisManeuver(start, finish astrocore.Epoch, thrusts []astrocore.Thrust, interval float64) (interp.Interpolator, error) {
	return ephemerisManeuverAdaptive(&p.adaptivePropagator, start, finish, thrusts, interval)
}

// RK89Propagator is the adaptive embedded propagator of §4.2 driven by
// the rk89 tableau, i.e. Fehlberg's 7(8) pair; no 8(9) pair is
// implemented.
type RK89Propagator struct {
	adaptivePropagator
}

// NewRK89Propagator builds an adaptive RK89 propagator.
func NewRK89Propagator(sv astrocore.StateVector, model *forcemodel.Model, tolerance, initialStepSeconds float64) *RK89Propagator {
	return &RK89Propagator{adaptivePropagator{
		base: newBase(sv), model: model, tableau: rk89, tolerance: tolerance, initialH: initialStepSeconds,
	}}
}

// Propagate implements Propagator.
func (p *RK89Propagator) Propagate(target astrocore.Epoch) (astrocore.StateVector, error) {
	return p.propagateCommon(target)
}

// Maneuver applies an impulsive Δv.
func (p *RK89Propagator) Maneuver(thrust astrocore.Thrust, sampleInterval float64) ([]astrocore.StateVector, error) {
	return genericImpulsiveManeuver(p, thrust, sampleInterval, func(sv astrocore.StateVector) error { p.current = sv; return nil })
}

// EphemerisManeuver installs finite-burn thrusts on a cloned model and
// integrates the window, sampling at interval seconds.
func (p *RK89Propagator) EphemerisManeuver(start, finish astrocore.Epoch, thrusts []astrocore.Thrust, interval float64) (interp.Interpolator, error) {
	return ephemerisManeuverAdaptive(&p.adaptivePropagator, start, finish, thrusts, interval)
}

func ephemerisManeuverAdaptive(p *adaptivePropagator, start, finish astrocore.Epoch, thrusts []astrocore.Thrust, interval float64) (interp.Interpolator, error) {
	burning := p.model.Clone()
	for _, th := range thrusts {
		burning.LoadManeuver(th)
	}
	tmp := &adaptivePropagator{base: newBase(p.current), model: burning, tableau: p.tableau, tolerance: p.tolerance, initialH: p.initialH}
	if _, err := tmp.propagateCommon(start); err != nil {
		return nil, err
	}
	samples, err := sampleEphemeris(tmp.propagateCommon, start, finish, interval)
	if err != nil {
		return nil, err
	}
	p.current = samples[len(samples)-1]
	return interp.NewLagrange(samples, 7)
}
