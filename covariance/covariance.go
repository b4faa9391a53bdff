// Package covariance implements the StateCovariance (matrix, frame-tag)
// pair of §4.6, its J2000<->RIC frame transform and measurement-space
// projections, and the sigma-point (unscented-style) ensemble used to
// propagate covariance alongside a nominal trajectory. Grounded on
// legacy/smd/estimate.go's Φ state-transition-matrix bookkeeping and its
// gokalman.DenseIdentity seed, generalized here from a single evolving
// STM to an explicit covariance value type plus an independent sample
// ensemble, per §4.6's sigma-point construction.
package covariance

import (
	"math"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/frames"
	"github.com/kestrel-space/astrocore/propagation"
	"github.com/ChristopherRabotin/gokalman"
	"github.com/gonum/matrix/mat64"
)

// StateCovariance is a (6x6 matrix, frame-tag) pair, per §4.6.
type StateCovariance struct {
	P     *astrocore.Matrix
	Frame astrocore.Frame
	Origin astrocore.StateVector // the state the covariance is centered on
}

// NewFromSigmas builds a diagonal StateCovariance from a 6-element
// σ-vector (km, km, km, km/s, km/s, km/s).
func NewFromSigmas(sigmas [6]float64, origin astrocore.StateVector) StateCovariance {
	p := astrocore.NewMatrix(6, 6, nil)
	for i, s := range sigmas {
		p.Set(i, i, s*s)
	}
	return StateCovariance{P: p, Frame: origin.Frame, Origin: origin}
}

// NewFromLowerTriangular builds a StateCovariance from the 21 distinct
// entries of a lower-triangular 6x6 matrix L such that P = L Lᵀ,
// row-major order (row 0: 1 entry, row 1: 2 entries, ..., row 5: 6
// entries), the packed format the spec's "lower-triangular vector"
// constructor names.
func NewFromLowerTriangular(entries [21]float64, origin astrocore.StateVector) StateCovariance {
	l := astrocore.NewMatrix(6, 6, nil)
	idx := 0
	for i := 0; i < 6; i++ {
		for j := 0; j <= i; j++ {
			l.Set(i, j, entries[idx])
			idx++
		}
	}
	lt := l.T()
	return StateCovariance{P: l.Mul(lt), Frame: origin.Frame, Origin: origin}
}

// IdentityCovariance returns a unit 6x6 covariance centered on origin,
// matching legacy/smd/estimate.go's gokalman.DenseIdentity(6) seed for
// the STM's initial previous-covariance slot.
func IdentityCovariance(origin astrocore.StateVector) StateCovariance {
	id := gokalman.DenseIdentity(6)
	p := astrocore.NewMatrix(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			p.Set(i, j, id.At(i, j))
		}
	}
	return StateCovariance{P: p, Frame: origin.Frame, Origin: origin}
}

// ricRotation builds the 6x6 block-diagonal rotation (RIC basis applied
// to both position and velocity blocks) that transforms an inertial
// covariance into the origin's RIC frame.
func ricRotation(origin astrocore.StateVector) *astrocore.Matrix {
	r, i, c := astrocore.RICBasis(origin.Position, origin.Velocity)
	rot := astrocore.NewMatrix(6, 6, nil)
	rows := [][3]float64{{r.X, r.Y, r.Z}, {i.X, i.Y, i.Z}, {c.X, c.Y, c.Z}}
	for blk := 0; blk < 2; blk++ {
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				rot.Set(blk*3+row, blk*3+col, rows[row][col])
			}
		}
	}
	return rot
}

// ToRIC transforms sc (assumed expressed in an inertial frame) into the
// RIC frame of its own origin state, per §4.6.
func (sc StateCovariance) ToRIC() (StateCovariance, error) {
	if err := sc.Origin.RequireInertial(); err != nil {
		return StateCovariance{}, err
	}
	rot := ricRotation(sc.Origin)
	p := rot.Mul(sc.P).Mul(rot.T())
	return StateCovariance{P: p, Frame: astrocore.FrameRIC, Origin: sc.Origin}, nil
}

// ToInertial inverts ToRIC, transforming an RIC-frame covariance back
// into its origin's inertial frame.
func (sc StateCovariance) ToInertial() StateCovariance {
	rot := ricRotation(sc.Origin)
	p := rot.T().Mul(sc.P).Mul(rot)
	return StateCovariance{P: p, Frame: sc.Origin.Frame, Origin: sc.Origin}
}

// ProjectToRangeAzEl linearizes the radar sensor model H (∂(range,az,el)
// /∂x) around the origin state and returns the propagated measurement-
// space covariance H P Hᵀ, per §4.6's "direct measurement-space
// projections... by linearizing the sensor model". site must already be
// expressed in sc.Origin's frame.
func (sc StateCovariance) ProjectToRangeAzEl(site astrocore.Vector3) *astrocore.Matrix {
	// H is built by a central finite difference on the (range, az, el)
	// function of position, holding velocity columns at zero (the
	// sensor model has no velocity dependence for this measurement).
	h := astrocore.NewMatrix(3, 6, nil)
	const step = 1e-5
	for col := 0; col < 3; col++ {
		hi := sc.Origin.Position
		lo := sc.Origin.Position
		switch col {
		case 0:
			hi.X += step
			lo.X -= step
		case 1:
			hi.Y += step
			lo.Y -= step
		case 2:
			hi.Z += step
			lo.Z -= step
		}
		hiV := rangeAzElOf(hi, site)
		loV := rangeAzElOf(lo, site)
		for row := 0; row < 3; row++ {
			h.Set(row, col, (hiV[row]-loV[row])/(2*step))
		}
	}
	return h.Mul(sc.P).Mul(h.T())
}

func rangeAzElOf(pos, site astrocore.Vector3) [3]float64 {
	d := pos.Sub(site)
	rng := d.Norm()
	az := astrocore.WrapTwoPi(math.Atan2(d.Y, d.X))
	el := math.Asin(d.Z / rng)
	return [3]float64{rng, az, el}
}

// ---- Sigma-point ensemble ----

const sigmaPointCount = 12
const sigmaScale = 2.449489742783178 // sqrt(6)

// SigmaPointEnsemble propagates a StateCovariance alongside a nominal
// trajectory as 12 discrete sample states, Cholesky-factorizing P,
// scaling by √6, and forming sample points at ±column_i around the
// mean, per §4.6. Every Propagate call advances the origin and all 12
// samples in lock-step (same epoch after return), the invariant §4.6
// names explicitly.
type SigmaPointEnsemble struct {
	origin  propagation.Propagator
	samples [sigmaPointCount]propagation.Propagator
	frame   astrocore.Frame
}

// NewSigmaPointEnsemble builds the 12-sample ensemble from sc's
// covariance and origin state, using build to construct a propagator
// from each perturbed Cartesian state.
func NewSigmaPointEnsemble(sc StateCovariance, origin propagation.Propagator, build func(astrocore.StateVector) propagation.Propagator) (*SigmaPointEnsemble, error) {
	l, err := sc.P.Cholesky()
	if err != nil {
		return nil, err
	}
	mean := sc.Origin.Slice()
	var ens SigmaPointEnsemble
	ens.origin = origin
	ens.frame = sc.Origin.Frame
	for i := 0; i < 6; i++ {
		col := make([]float64, 6)
		for r := 0; r < 6; r++ {
			col[r] = l.At(r, i) * sigmaScale
		}
		hi := make([]float64, 6)
		lo := make([]float64, 6)
		for r := 0; r < 6; r++ {
			hi[r] = mean[r] + col[r]
			lo[r] = mean[r] - col[r]
		}
		ens.samples[2*i] = build(astrocore.StateVectorFromSlice(hi, sc.Origin.Epoch, sc.Origin.Frame))
		ens.samples[2*i+1] = build(astrocore.StateVectorFromSlice(lo, sc.Origin.Epoch, sc.Origin.Frame))
	}
	return &ens, nil
}

// Propagate advances the origin and all 12 samples to target in
// lock-step.
func (e *SigmaPointEnsemble) Propagate(target astrocore.Epoch) error {
	if _, err := e.origin.Propagate(target); err != nil {
		return err
	}
	for i := range e.samples {
		if _, err := e.samples[i].Propagate(target); err != nil {
			return err
		}
	}
	return nil
}

// DesampleInertial reconstructs the mean and unbiased covariance of the
// current sample set in the origin's native (inertial) frame, per
// §4.6's (1/12) Σ (x_i - x̄)(x_i - x̄)ᵀ reconstruction.
func (e *SigmaPointEnsemble) DesampleInertial() (astrocore.StateVector, StateCovariance) {
	return e.desample(func(p propagation.Propagator) astrocore.StateVector { return p.State() })
}

// DesampleRIC reconstructs the mean and covariance with every sample
// transformed into the origin's RIC relative frame first, per §4.6's
// frame-transform support; the returned mean is the RIC offset from the
// origin.
func (e *SigmaPointEnsemble) DesampleRIC() (astrocore.StateVector, StateCovariance, error) {
	originState := e.origin.State()
	if err := originState.RequireInertial(); err != nil {
		return astrocore.StateVector{}, StateCovariance{}, err
	}
	mean, cov := e.desample(func(p propagation.Propagator) astrocore.StateVector {
		rel, _ := frames.ToRIC(originState, p.State())
		return astrocore.NewStateVector(originState.Epoch, rel.DeltaPosition, rel.DeltaVelocity, astrocore.FrameRIC)
	})
	mean.Frame = astrocore.FrameRIC
	cov.Frame = astrocore.FrameRIC
	cov.Origin = originState
	return mean, cov, nil
}

func (e *SigmaPointEnsemble) desample(extract func(propagation.Propagator) astrocore.StateVector) (astrocore.StateVector, StateCovariance) {
	var sum [6]float64
	vectors := make([][6]float64, sigmaPointCount)
	for i, s := range e.samples {
		sv := extract(s).Slice()
		var v [6]float64
		copy(v[:], sv)
		vectors[i] = v
		for k := 0; k < 6; k++ {
			sum[k] += v[k]
		}
	}
	var mean [6]float64
	for k := 0; k < 6; k++ {
		mean[k] = sum[k] / sigmaPointCount
	}
	p := mat64.NewDense(6, 6, nil)
	for _, v := range vectors {
		d := mat64.NewDense(6, 1, nil)
		for k := 0; k < 6; k++ {
			d.Set(k, 0, v[k]-mean[k])
		}
		var outer mat64.Dense
		outer.Mul(d, d.T())
		p.Add(p, &outer)
	}
	p.Scale(1.0/sigmaPointCount, p)
	out := astrocore.NewMatrix(6, 6, nil)
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			out.Set(r, c, p.At(r, c))
		}
	}
	originState := e.origin.State()
	meanState := astrocore.StateVectorFromSlice(mean[:], originState.Epoch, e.frame)
	return meanState, StateCovariance{P: out, Frame: e.frame, Origin: meanState}
}
