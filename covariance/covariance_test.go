package covariance

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

func TestNewFromSigmasIsDiagonal(t *testing.T) {
	sv := circularState()
	sc := NewFromSigmas([6]float64{1, 2, 3, 0.1, 0.2, 0.3}, sv)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if i == j {
				continue
			}
			if sc.P.At(i, j) != 0 {
				t.Fatalf("expected off-diagonal zero at (%d,%d), got %f", i, j, sc.P.At(i, j))
			}
		}
	}
	if !astrocore.EqualWithinAbs(sc.P.At(0, 0), 1, 1e-12) {
		t.Fatalf("expected P[0][0]=1, got %f", sc.P.At(0, 0))
	}
}

func TestNewFromLowerTriangularIsSymmetricPositiveDefinite(t *testing.T) {
	sv := circularState()
	var entries [21]float64
	for i := range entries {
		entries[i] = 0.01 * float64(i+1)
	}
	// Ensure diagonal entries (1,3,6,10,15,21 in 1-indexed triangular
	// numbering) dominate so P = L Lᵀ is well-conditioned for Cholesky.
	diagIdx := []int{0, 2, 5, 9, 14, 20}
	for _, d := range diagIdx {
		entries[d] = 1.0
	}
	sc := NewFromLowerTriangular(entries, sv)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if !astrocore.EqualWithinAbs(sc.P.At(i, j), sc.P.At(j, i), 1e-9) {
				t.Fatalf("expected symmetric P at (%d,%d): %f vs %f", i, j, sc.P.At(i, j), sc.P.At(j, i))
			}
		}
	}
	if _, err := sc.P.Cholesky(); err != nil {
		t.Fatalf("expected P = L Lt to be positive definite: %v", err)
	}
}

func TestIdentityCovarianceIsIdentity(t *testing.T) {
	sv := circularState()
	sc := IdentityCovariance(sv)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if !astrocore.EqualWithinAbs(sc.P.At(i, j), want, 1e-12) {
				t.Fatalf("expected identity at (%d,%d), got %f", i, j, sc.P.At(i, j))
			}
		}
	}
}

func TestToRICRoundTrip(t *testing.T) {
	sv := circularState()
	sc := NewFromSigmas([6]float64{1, 1, 1, 0.01, 0.01, 0.01}, sv)
	ric, err := sc.ToRIC()
	if err != nil {
		t.Fatalf("ToRIC: %v", err)
	}
	if ric.Frame != astrocore.FrameRIC {
		t.Fatalf("expected FrameRIC, got %s", ric.Frame)
	}
	back := ric.ToInertial()
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if !astrocore.EqualWithinAbs(sc.P.At(i, j), back.P.At(i, j), 1e-9) {
				t.Fatalf("RIC round trip mismatch at (%d,%d): %f vs %f", i, j, sc.P.At(i, j), back.P.At(i, j))
			}
		}
	}
}

func TestToRICRejectsNonInertialOrigin(t *testing.T) {
	sv := circularState()
	sv.Frame = astrocore.FrameITRF
	sc := NewFromSigmas([6]float64{1, 1, 1, 0.01, 0.01, 0.01}, sv)
	if _, err := sc.ToRIC(); err == nil {
		t.Fatal("expected an error converting a non-inertial-origin covariance to RIC")
	}
}

func TestSigmaPointEnsembleRoundTripsMeanAndCovariance(t *testing.T) {
	sv := circularState()
	sc := NewFromSigmas([6]float64{0.1, 0.1, 0.1, 1e-4, 1e-4, 1e-4}, sv)
	build := func(s astrocore.StateVector) propagation.Propagator {
		p, err := propagation.NewKeplerPropagator(s, astrocore.Earth.GM)
		if err != nil {
			t.Fatalf("NewKeplerPropagator: %v", err)
		}
		return p
	}
	origin := build(sv)
	ens, err := NewSigmaPointEnsemble(sc, origin, build)
	if err != nil {
		t.Fatalf("NewSigmaPointEnsemble: %v", err)
	}
	mean, cov := ens.DesampleInertial()
	if !astrocore.EqualWithinAbs(mean.Position.X, sv.Position.X, 1e-6) {
		t.Fatalf("expected desampled mean to match origin position, got %+v vs %+v", mean.Position, sv.Position)
	}
	for i := 0; i < 3; i++ {
		if cov.P.At(i, i) <= 0 {
			t.Fatalf("expected a positive diagonal covariance entry at %d, got %f", i, cov.P.At(i, i))
		}
	}
}

func TestSigmaPointEnsemblePropagateAdvancesLockStep(t *testing.T) {
	sv := circularState()
	sc := NewFromSigmas([6]float64{0.1, 0.1, 0.1, 1e-4, 1e-4, 1e-4}, sv)
	build := func(s astrocore.StateVector) propagation.Propagator {
		p, err := propagation.NewKeplerPropagator(s, astrocore.Earth.GM)
		if err != nil {
			t.Fatalf("NewKeplerPropagator: %v", err)
		}
		return p
	}
	origin := build(sv)
	ens, err := NewSigmaPointEnsemble(sc, origin, build)
	if err != nil {
		t.Fatalf("NewSigmaPointEnsemble: %v", err)
	}
	target := sv.Epoch.Roll(600)
	if err := ens.Propagate(target); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if origin.State().Epoch.POSIXSeconds() != target.POSIXSeconds() {
		t.Fatal("expected the origin propagator to land exactly at target")
	}
}
