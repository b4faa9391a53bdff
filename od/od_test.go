package od

import (
	"math"
	"testing"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/observation"
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

func threeCoplanarPositions(t *testing.T) (r1, r2, r3, v2True astrocore.Vector3) {
	sv := circularState()
	p, err := propagation.NewKeplerPropagator(sv, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("NewKeplerPropagator: %v", err)
	}
	s1, err := p.Propagate(astrocore.NewEpoch(0))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	s2, err := p.Propagate(astrocore.NewEpoch(60))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	s3, err := p.Propagate(astrocore.NewEpoch(120))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	return s1.Position, s2.Position, s3.Position, s2.Velocity
}

func TestGibbsRecoversVelocity(t *testing.T) {
	r1, r2, r3, v2True := threeCoplanarPositions(t)
	v2, err := Gibbs(r1, r2, r3, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("Gibbs: %v", err)
	}
	if !astrocore.EqualWithinAbs(v2.Norm(), v2True.Norm(), 1e-3) {
		t.Fatalf("expected Gibbs velocity magnitude near %f, got %f", v2True.Norm(), v2.Norm())
	}
}

func TestGibbsRejectsNonCoplanarPositions(t *testing.T) {
	r1 := astrocore.NewVector3(7000, 0, 0)
	r2 := astrocore.NewVector3(0, 7000, 0)
	r3 := astrocore.NewVector3(0, 0, 7000)
	if _, err := Gibbs(r1, r2, r3, astrocore.Earth.GM); err == nil {
		t.Fatal("expected ErrNotCoplanar for three mutually orthogonal positions")
	}
}

func TestHerrickGibbsRecoversVelocity(t *testing.T) {
	r1, r2, r3, v2True := threeCoplanarPositions(t)
	v2, err := HerrickGibbs(r1, r2, r3, 0, 60, 120, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("HerrickGibbs: %v", err)
	}
	if !astrocore.EqualWithinAbs(v2.Norm(), v2True.Norm(), 1e-3) {
		t.Fatalf("expected Herrick-Gibbs velocity magnitude near %f, got %f", v2True.Norm(), v2.Norm())
	}
}

func TestLambertSolvesKnownTwoBodyArc(t *testing.T) {
	sv := circularState()
	p, err := propagation.NewKeplerPropagator(sv, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("NewKeplerPropagator: %v", err)
	}
	tof := 600.0
	final, err := p.Propagate(astrocore.NewEpoch(tof))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	vi, vf, err := Lambert(sv.Position, final.Position, tof, TransferAuto, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("Lambert: %v", err)
	}
	if !astrocore.EqualWithinAbs(vi.Norm(), sv.Velocity.Norm(), 1e-4) {
		t.Fatalf("expected initial velocity magnitude %f, got %f", sv.Velocity.Norm(), vi.Norm())
	}
	if !astrocore.EqualWithinAbs(vf.Norm(), final.Velocity.Norm(), 1e-4) {
		t.Fatalf("expected final velocity magnitude %f, got %f", final.Velocity.Norm(), vf.Norm())
	}
}

func TestBatchLeastSquaresConvergesFromPerturbedState(t *testing.T) {
	truth := circularState()
	build := func(s astrocore.StateVector) propagation.Propagator {
		p, err := propagation.NewKeplerPropagator(s, astrocore.Earth.GM)
		if err != nil {
			t.Fatalf("NewKeplerPropagator: %v", err)
		}
		return p
	}
	truthProp := build(truth)
	var obs []observation.Observation
	for _, dt := range []float64{0, 60, 120, 180} {
		s, err := truthProp.Propagate(astrocore.NewEpoch(dt))
		if err != nil {
			t.Fatalf("Propagate: %v", err)
		}
		obs = append(obs, observation.StateObservation{
			Epoch_: s.Epoch, StateITRF: s,
			SigmaPosKm: observation.DefaultStateSigmaPos, SigmaVelKms: observation.DefaultStateSigmaVel,
		})
	}

	perturbed := truth
	perturbed.Position = perturbed.Position.Add(astrocore.NewVector3(0.05, -0.05, 0.02))

	result, err := BatchLeastSquares(perturbed, obs, build, 1e-10, 25)
	if err != nil {
		t.Fatalf("BatchLeastSquares: %v", err)
	}
	if !astrocore.EqualWithinAbs(result.State.Position.X, truth.Position.X, 1e-3) {
		t.Fatalf("expected fitted state near truth: %+v vs %+v", result.State.Position, truth.Position)
	}
}
