// Package interp implements the four ephemeris interpolators of §4.4:
// a Velocity-Verlet blend, cubic Hermite spline, Lagrange, and a
// compressed Chebyshev series, all sharing one window/in-window/
// interpolate/overlap/size-bytes contract. Each caches a finite window
// at construction per the design note on growing epoch-windowed caches
// (fixed at construction, no in-place appends). Grounded on
// legacy/smd/export.go's ephemeris-sample shape for the raw (t, r, v)
// tuples every interpolator here is built from.
package interp

import (
	"sort"

	"github.com/kestrel-space/astrocore"
)

// Interpolator is the common contract every interpolator in this
// package implements, per §4.4.
type Interpolator interface {
	// Window returns the cached span's [start, end] epochs.
	Window() (start, end astrocore.Epoch)
	// InWindow reports whether epoch falls within Window().
	InWindow(epoch astrocore.Epoch) bool
	// Interpolate returns the state at epoch, or ok=false if epoch is
	// outside Window() — a null-sentinel return, not an error, per §9.
	Interpolate(epoch astrocore.Epoch) (state astrocore.StateVector, ok bool)
	// Overlap returns the intersection of this interpolator's window
	// with other's, or ok=false if they don't overlap.
	Overlap(other Interpolator) (start, end astrocore.Epoch, ok bool)
	// SizeBytes estimates the interpolator's retained memory footprint.
	SizeBytes() int
}

func overlapWindows(aStart, aEnd, bStart, bEnd astrocore.Epoch) (astrocore.Epoch, astrocore.Epoch, bool) {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if start.After(end) {
		return astrocore.Epoch{}, astrocore.Epoch{}, false
	}
	return start, end, true
}

// bisect returns the index of the last sample epoch <= target among a
// slice of strictly increasing epochs, or -1 if target precedes all of
// them. Shared by every interpolator's binary-search step.
func bisect(epochs []astrocore.Epoch, target astrocore.Epoch) int {
	i := sort.Search(len(epochs), func(i int) bool {
		return epochs[i].After(target)
	})
	return i - 1
}

// ---- Velocity-Verlet blend ----

// VerletBlend stores the raw ephemeris and, on query, locates the
// nearest sample by binary search and integrates a single-body Verlet
// step (capped at 5 s substeps, per §4.4) from that sample to the
// target epoch, preserving the stored samples exactly at their own
// epochs ("truth states").
type VerletBlend struct {
	samples []astrocore.StateVector
	mu      float64
}

// NewVerletBlend builds a VerletBlend over samples (which must be
// sorted by increasing epoch) using mu as the two-body gravitational
// parameter for the Verlet substeps.
func NewVerletBlend(samples []astrocore.StateVector, mu float64) *VerletBlend {
	if len(samples) < 1 {
		panic("interp: VerletBlend requires at least one sample")
	}
	return &VerletBlend{samples: samples, mu: mu}
}

func (v *VerletBlend) Window() (astrocore.Epoch, astrocore.Epoch) {
	return v.samples[0].Epoch, v.samples[len(v.samples)-1].Epoch
}

func (v *VerletBlend) InWindow(epoch astrocore.Epoch) bool {
	start, end := v.Window()
	return !epoch.Before(start) && !epoch.After(end)
}

func (v *VerletBlend) Interpolate(epoch astrocore.Epoch) (astrocore.StateVector, bool) {
	if !v.InWindow(epoch) {
		return astrocore.StateVector{}, false
	}
	epochs := make([]astrocore.Epoch, len(v.samples))
	for i, s := range v.samples {
		epochs[i] = s.Epoch
	}
	idx := bisect(epochs, epoch)
	if idx < 0 {
		idx = 0
	}
	if idx+1 < len(v.samples) && v.samples[idx+1].Epoch.Sub(epoch) < epoch.Sub(v.samples[idx].Epoch) {
		idx++
	}
	base := v.samples[idx]
	if base.Epoch.Equal(epoch) {
		return base, true
	}
	return v.verletTo(base, epoch), true
}

// verletTo integrates a single-body Verlet scheme from base to target,
// subdividing into steps no larger than 5 s per §4.4.
func (v *VerletBlend) verletTo(base astrocore.StateVector, target astrocore.Epoch) astrocore.StateVector {
	const maxStep = 5.0
	total := target.Sub(base.Epoch)
	if total == 0 {
		return base
	}
	steps := int(absF(total)/maxStep) + 1
	h := total / float64(steps)

	r, vel := base.Position, base.Velocity
	accel := func(pos astrocore.Vector3) astrocore.Vector3 {
		r3 := pos.Norm() * pos.Norm() * pos.Norm()
		return pos.Scale(-v.mu / r3)
	}
	a := accel(r)
	for i := 0; i < steps; i++ {
		rNext := r.Add(vel.Scale(h)).Add(a.Scale(0.5 * h * h))
		aNext := accel(rNext)
		vNext := vel.Add(a.Add(aNext).Scale(0.5 * h))
		r, vel, a = rNext, vNext, aNext
	}
	return astrocore.NewStateVector(target, r, vel, base.Frame)
}

func (v *VerletBlend) Overlap(other Interpolator) (astrocore.Epoch, astrocore.Epoch, bool) {
	s, e := v.Window()
	os, oe := other.Window()
	return overlapWindows(s, e, os, oe)
}

func (v *VerletBlend) SizeBytes() int {
	return len(v.samples) * 6 * 8
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ---- Cubic Hermite spline ----

type hermiteSegment struct {
	t0, t1          float64
	ax, bx, cx, dx  float64
	ay, by, cy, dy  float64
	az, bz, cz, dz  float64
	avx, avy, avz   float64 // not set or read; velocity comes from the cubic's derivative
}

// Hermite is the cubic Hermite spline of §4.4: per-segment coefficients
// precomputed from each pair of endpoint (position, velocity) samples,
// queried by binary search plus normalized-time evaluation.
type Hermite struct {
	epochs   []astrocore.Epoch
	segments []hermiteSegment
	frame    astrocore.Frame
}

// NewHermite builds a Hermite spline over samples (sorted by epoch,
// each carrying both position and velocity).
func NewHermite(samples []astrocore.StateVector) *Hermite {
	if len(samples) < 2 {
		panic("interp: Hermite requires at least two samples")
	}
	h := &Hermite{frame: samples[0].Frame}
	h.epochs = make([]astrocore.Epoch, len(samples))
	for i, s := range samples {
		h.epochs[i] = s.Epoch
	}
	for i := 0; i < len(samples)-1; i++ {
		p0, p1 := samples[i], samples[i+1]
		dt := p1.Epoch.Sub(p0.Epoch)
		seg := hermiteSegment{t0: 0, t1: dt}
		seg.ax, seg.bx, seg.cx, seg.dx = hermiteCoeffs(p0.Position.X, p0.Velocity.X, p1.Position.X, p1.Velocity.X, dt)
		seg.ay, seg.by, seg.cy, seg.dy = hermiteCoeffs(p0.Position.Y, p0.Velocity.Y, p1.Position.Y, p1.Velocity.Y, dt)
		seg.az, seg.bz, seg.cz, seg.dz = hermiteCoeffs(p0.Position.Z, p0.Velocity.Z, p1.Position.Z, p1.Velocity.Z, dt)
		h.segments = append(h.segments, seg)
	}
	return h
}

// hermiteCoeffs returns (a,b,c,d) such that p(s) = a + b*s + c*s^2 +
// d*s^3 for s in [0, dt] matches p(0)=p0, p'(0)=v0, p(dt)=p1, p'(dt)=v1.
func hermiteCoeffs(p0, v0, p1, v1, dt float64) (a, b, c, d float64) {
	a = p0
	b = v0
	c = (3*(p1-p0)/dt - 2*v0 - v1) / dt
	d = (2*(p0-p1)/dt + v0 + v1) / (dt * dt)
	return
}

func evalCubic(a, b, c, d, s float64) (pos, vel float64) {
	pos = a + b*s + c*s*s + d*s*s*s
	vel = b + 2*c*s + 3*d*s*s
	return
}

func (h *Hermite) Window() (astrocore.Epoch, astrocore.Epoch) {
	return h.epochs[0], h.epochs[len(h.epochs)-1]
}

func (h *Hermite) InWindow(epoch astrocore.Epoch) bool {
	start, end := h.Window()
	return !epoch.Before(start) && !epoch.After(end)
}

func (h *Hermite) Interpolate(epoch astrocore.Epoch) (astrocore.StateVector, bool) {
	if !h.InWindow(epoch) {
		return astrocore.StateVector{}, false
	}
	idx := bisect(h.epochs, epoch)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(h.segments) {
		idx = len(h.segments) - 1
	}
	seg := h.segments[idx]
	s := epoch.Sub(h.epochs[idx])
	px, vx := evalCubic(seg.ax, seg.bx, seg.cx, seg.dx, s)
	py, vy := evalCubic(seg.ay, seg.by, seg.cy, seg.dy, s)
	pz, vz := evalCubic(seg.az, seg.bz, seg.cz, seg.dz, s)
	return astrocore.NewStateVector(epoch, astrocore.NewVector3(px, py, pz), astrocore.NewVector3(vx, vy, vz), h.frame), true
}

func (h *Hermite) Overlap(other Interpolator) (astrocore.Epoch, astrocore.Epoch, bool) {
	s, e := h.Window()
	os, oe := other.Window()
	return overlapWindows(s, e, os, oe)
}

func (h *Hermite) SizeBytes() int {
	return len(h.segments)*12*8 + len(h.epochs)*8
}

// ---- Lagrange ----

// Lagrange stores (t_i, x_i, y_i, z_i) samples and, on query, selects a
// contiguous window of order samples centered on the target epoch and
// evaluates classical barycentric Lagrange interpolation for position
// and its derivative for velocity, per §4.4.
type Lagrange struct {
	epochs  []astrocore.Epoch
	samples []astrocore.StateVector
	order   int
	frame   astrocore.Frame
}

// NewLagrange builds a Lagrange interpolator of the given order (number
// of samples used per query window); order must not exceed len(samples).
func NewLagrange(samples []astrocore.StateVector, order int) (*Lagrange, error) {
	if len(samples) < 2 {
		return nil, astrocore.NewError(astrocore.ErrDimensionMismatch, "Lagrange requires at least two samples")
	}
	if order > len(samples) {
		order = len(samples)
	}
	l := &Lagrange{samples: samples, order: order, frame: samples[0].Frame}
	l.epochs = make([]astrocore.Epoch, len(samples))
	for i, s := range samples {
		l.epochs[i] = s.Epoch
	}
	return l, nil
}

func (l *Lagrange) Window() (astrocore.Epoch, astrocore.Epoch) {
	return l.epochs[0], l.epochs[len(l.epochs)-1]
}

func (l *Lagrange) InWindow(epoch astrocore.Epoch) bool {
	start, end := l.Window()
	return !epoch.Before(start) && !epoch.After(end)
}

// windowIndices returns the [lo, hi) index range of the order samples
// centered on target, clamped to the slice bounds.
func (l *Lagrange) windowIndices(target astrocore.Epoch) (int, int) {
	idx := bisect(l.epochs, target)
	if idx < 0 {
		idx = 0
	}
	half := l.order / 2
	lo := idx - half + 1
	if lo < 0 {
		lo = 0
	}
	hi := lo + l.order
	if hi > len(l.samples) {
		hi = len(l.samples)
		lo = hi - l.order
		if lo < 0 {
			lo = 0
		}
	}
	return lo, hi
}

// Interpolate implements the common contract. Querying exactly at a
// stored sample epoch returns that sample's recorded value exactly
// (idempotence, per §9), since the Lagrange basis collapses to a
// Kronecker delta at a node.
func (l *Lagrange) Interpolate(epoch astrocore.Epoch) (astrocore.StateVector, bool) {
	if !l.InWindow(epoch) {
		return astrocore.StateVector{}, false
	}
	lo, hi := l.windowIndices(epoch)
	t := epoch.POSIXSeconds()

	var px, py, pz, vx, vy, vz float64
	for i := lo; i < hi; i++ {
		ti := l.epochs[i].POSIXSeconds()
		num, den := 1.0, 1.0
		dnum := 0.0
		for j := lo; j < hi; j++ {
			if j == i {
				continue
			}
			tj := l.epochs[j].POSIXSeconds()
			num *= t - tj
			den *= ti - tj
			// d/dt of the product rule: sum over k != i,j of prod_{m!=i,k,j}.
			term := 1.0
			for k := lo; k < hi; k++ {
				if k == i || k == j {
					continue
				}
				term *= t - l.epochs[k].POSIXSeconds()
			}
			dnum += term
		}
		Li := num / den
		dLi := dnum / den
		s := l.samples[i]
		px += Li * s.Position.X
		py += Li * s.Position.Y
		pz += Li * s.Position.Z
		vx += dLi * s.Position.X
		vy += dLi * s.Position.Y
		vz += dLi * s.Position.Z
	}
	return astrocore.NewStateVector(epoch, astrocore.NewVector3(px, py, pz), astrocore.NewVector3(vx, vy, vz), l.frame), true
}

func (l *Lagrange) Overlap(other Interpolator) (astrocore.Epoch, astrocore.Epoch, bool) {
	s, e := l.Window()
	os, oe := other.Window()
	return overlapWindows(s, e, os, oe)
}

func (l *Lagrange) SizeBytes() int {
	return len(l.samples) * 6 * 8
}

// ---- Chebyshev ----

// ChebyshevRecord is one (t_start, t_end, coeffs_xyz) record in a
// compressed Chebyshev ephemeris, per §4.4.
type ChebyshevRecord struct {
	Start, End astrocore.Epoch
	CoeffsX    []float64
	CoeffsY    []float64
	CoeffsZ    []float64
}

// Chebyshev evaluates a compressed Chebyshev series by Clenshaw's
// recurrence, deriving velocity from derivative coefficients built by
// the standard Chebyshev-derivative recurrence; they are computed on
// each query, not stored with the record. Unlike the teacher's binary search (design note §9: "returns
// coefficients[left] with no bounds check on exact-end queries"), this
// implementation's closed-interval policy treats a query exactly at a
// record boundary as belonging to the record whose window contains it
// (preferring the earlier record at a shared boundary), so Window() end
// queries resolve deterministically instead of falling through.
type Chebyshev struct {
	records []ChebyshevRecord
}

// NewChebyshev builds a Chebyshev interpolator from records sorted by
// increasing Start.
func NewChebyshev(records []ChebyshevRecord) *Chebyshev {
	if len(records) == 0 {
		panic("interp: Chebyshev requires at least one record")
	}
	return &Chebyshev{records: records}
}

func (c *Chebyshev) Window() (astrocore.Epoch, astrocore.Epoch) {
	return c.records[0].Start, c.records[len(c.records)-1].End
}

func (c *Chebyshev) InWindow(epoch astrocore.Epoch) bool {
	start, end := c.Window()
	return !epoch.Before(start) && !epoch.After(end)
}

// recordFor returns the record containing epoch under the closed-
// interval policy: the record for which Start <= epoch <= End, with
// ties at a shared boundary resolved to the earlier record.
func (c *Chebyshev) recordFor(epoch astrocore.Epoch) int {
	for i, r := range c.records {
		if !epoch.Before(r.Start) && !epoch.After(r.End) {
			return i
		}
	}
	return -1
}

func (c *Chebyshev) Interpolate(epoch astrocore.Epoch) (astrocore.StateVector, bool) {
	idx := c.recordFor(epoch)
	if idx < 0 {
		return astrocore.StateVector{}, false
	}
	r := c.records[idx]
	span := r.End.Sub(r.Start)
	x := 2*epoch.Sub(r.Start)/span - 1 // normalize to [-1, 1]

	px, pvx := clenshawWithDerivative(r.CoeffsX, x, span)
	py, pvy := clenshawWithDerivative(r.CoeffsY, x, span)
	pz, pvz := clenshawWithDerivative(r.CoeffsZ, x, span)
	return astrocore.NewStateVector(epoch, astrocore.NewVector3(px, py, pz), astrocore.NewVector3(pvx, pvy, pvz), astrocore.FrameGCRF), true
}

// clenshawWithDerivative evaluates a Chebyshev series at x via
// Clenshaw's recurrence and its derivative with respect to the original
// (unnormalized) time variable, scaling d/dx by 2/span.
func clenshawWithDerivative(coeffs []float64, x, span float64) (value, derivative float64) {
	n := len(coeffs)
	if n == 0 {
		return 0, 0
	}
	var bk1, bk2 float64
	for k := n - 1; k >= 1; k-- {
		bk := 2*x*bk1 - bk2 + coeffs[k]
		bk2 = bk1
		bk1 = bk
	}
	value = x*bk1 - bk2 + coeffs[0]

	// Derivative via the derivative-coefficient recurrence: T_n'(x)
	// relation d'_{k} built from the same coeffs, evaluated with a
	// second Clenshaw pass over the standard dT_k/dx coefficients.
	dcoeffs := chebyshevDerivativeCoeffs(coeffs)
	var dk1, dk2 float64
	for k := len(dcoeffs) - 1; k >= 1; k-- {
		dk := 2*x*dk1 - dk2 + dcoeffs[k]
		dk2 = dk1
		dk1 = dk
	}
	var dval float64
	if len(dcoeffs) > 0 {
		dval = x*dk1 - dk2 + dcoeffs[0]
	}
	derivative = dval * 2 / span
	return
}

// chebyshevDerivativeCoeffs computes the Chebyshev coefficients of
// d/dx of the series defined by coeffs, via the standard recurrence
// c'_{k-1} = c'_{k+1} + 2k*c_k (descending); clenshawWithDerivative
// calls it on every evaluation.
func chebyshevDerivativeCoeffs(coeffs []float64) []float64 {
	n := len(coeffs)
	if n < 2 {
		return nil
	}
	d := make([]float64, n-1)
	d[n-2] = 2 * float64(n-1) * coeffs[n-1]
	if n >= 3 {
		d[n-3] = 2 * float64(n-2) * coeffs[n-2]
	}
	for k := n - 4; k >= 0; k-- {
		d[k] = d[k+2] + 2*float64(k+1)*coeffs[k+1]
	}
	d[0] /= 2
	return d
}

func (c *Chebyshev) Overlap(other Interpolator) (astrocore.Epoch, astrocore.Epoch, bool) {
	s, e := c.Window()
	os, oe := other.Window()
	return overlapWindows(s, e, os, oe)
}

func (c *Chebyshev) SizeBytes() int {
	total := 0
	for _, r := range c.records {
		total += (len(r.CoeffsX) + len(r.CoeffsY) + len(r.CoeffsZ)) * 8
	}
	return total
}
