package observation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/eop"
	"github.com/kestrel-space/astrocore/frames"
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

func keplerProp(t *testing.T, sv astrocore.StateVector) propagation.Propagator {
	p, err := propagation.NewKeplerPropagator(sv, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("NewKeplerPropagator: %v", err)
	}
	return p
}

func TestStateObservationResidualZeroAtExactMatch(t *testing.T) {
	sv := circularState()
	p := keplerProp(t, sv)
	obs := StateObservation{Epoch_: sv.Epoch, StateITRF: sv, SigmaPosKm: DefaultStateSigmaPos, SigmaVelKms: DefaultStateSigmaVel}
	res, err := obs.Residual(p)
	if err != nil {
		t.Fatalf("Residual: %v", err)
	}
	for i := 0; i < res.Len(); i++ {
		if !astrocore.EqualWithinAbs(res.At(i), 0, 1e-9) {
			t.Fatalf("expected zero residual component %d, got %f", i, res.At(i))
		}
	}
}

func TestStateObservationCLOSIsDistance(t *testing.T) {
	sv := circularState()
	p := keplerProp(t, sv)
	offset := sv
	offset.Position = offset.Position.Add(astrocore.NewVector3(1, 0, 0))
	obs := StateObservation{Epoch_: sv.Epoch, StateITRF: offset}
	d, err := obs.CLOS(p)
	if err != nil {
		t.Fatalf("CLOS: %v", err)
	}
	if !astrocore.EqualWithinAbs(d, 1.0, 1e-9) {
		t.Fatalf("expected CLOS distance 1.0 km, got %f", d)
	}
}

func TestStateObservationJacobianIsIdentityLike(t *testing.T) {
	sv := circularState()
	build := func(s astrocore.StateVector) propagation.Propagator { return keplerProp(t, s) }
	pairs := NewPropagatorPairs(sv, build, DefaultJacobianStepKm, DefaultJacobianStepKmS)
	obs := StateObservation{Epoch_: sv.Epoch, StateITRF: sv}
	j, err := obs.Jacobian(pairs)
	if err != nil {
		t.Fatalf("Jacobian: %v", err)
	}
	rows, cols := j.Dims()
	if rows != 6 || cols != 6 {
		t.Fatalf("expected a 6x6 Jacobian, got %dx%d", rows, cols)
	}
	for i := 0; i < 6; i++ {
		if !astrocore.EqualWithinAbs(j.At(i, i), 1.0, 1e-4) {
			t.Fatalf("expected near-identity diagonal at (%d,%d), got %f", i, i, j.At(i, i))
		}
	}
}

func TestOpticalResidualZeroAtExactMatch(t *testing.T) {
	sv := circularState()
	p := keplerProp(t, sv)
	site := astrocore.NewVector3(astrocore.Earth.RadiusEq, 0, 0)
	siteInertial := frames.ITRFToJ2000(astrocore.NewStateVector(sv.Epoch, site, astrocore.Vector3{}, astrocore.FrameITRF), eop.ZeroProvider).Position
	rangeVec := sv.Position.Sub(siteInertial)
	ra := astrocore.WrapTwoPi(math.Atan2(rangeVec.Y, rangeVec.X))
	dec := math.Asin(rangeVec.Z / rangeVec.Norm())
	obs := Optical{Epoch_: sv.Epoch, Site_: site, RA: ra, Dec: dec, Sigma: DefaultOpticalSigma, EOP: eop.ZeroProvider}
	res, err := obs.Residual(p)
	if err != nil {
		t.Fatalf("Residual: %v", err)
	}
	if !astrocore.EqualWithinAbs(res.At(0), 0, 1e-9) || !astrocore.EqualWithinAbs(res.At(1), 0, 1e-9) {
		t.Fatalf("expected zero RA/Dec residual, got %+v", res)
	}
}

func TestRadarRoundTripsThroughStation(t *testing.T) {
	station, err := NewStation("test", 0.5, 1.0, 0, 0, 0.01, 1e-5, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewStation: %v", err)
	}
	sv := circularState()
	p := keplerProp(t, sv)
	radar, err := station.ObserveRadar(p, eop.ZeroProvider, 0.01, 1e-6)
	if err != nil {
		t.Fatalf("ObserveRadar: %v", err)
	}
	res, err := radar.Residual(p)
	if err != nil {
		t.Fatalf("Residual: %v", err)
	}
	for i := 0; i < res.Len(); i++ {
		if !astrocore.EqualWithinAbs(res.At(i), 0, 1e-6) {
			t.Fatalf("expected zero residual against the observation's own prediction, component %d = %f", i, res.At(i))
		}
	}
}

func TestStationVisibility(t *testing.T) {
	station, err := NewStation("test", 0, 0, 0, 0.1, 0.01, 1e-5, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("NewStation: %v", err)
	}
	overhead := astrocore.NewVector3(astrocore.Earth.RadiusEq+500, 0, 0)
	if !station.Visible(overhead) {
		t.Fatal("expected a target directly overhead to be visible")
	}
	belowHorizon := astrocore.NewVector3(0, astrocore.Earth.RadiusEq+500, 0)
	if station.Visible(belowHorizon) {
		t.Fatal("expected a target on the far side to be below the elevation mask")
	}
}

func TestNewStationRejectsNonPositiveCovariance(t *testing.T) {
	if _, err := NewStation("bad", 0, 0, 0, 0, 0, 1e-5, rand.New(rand.NewSource(3))); err == nil {
		t.Fatal("expected an error for a zero-variance range noise")
	}
}
