package elements

import (
	"math"
	"testing"

	"github.com/kestrel-space/astrocore"
)

func TestRoundTrip(t *testing.T) {
	epoch := astrocore.NewEpoch(0)
	c := ClassicalElements{
		Epoch:         epoch,
		SemiMajorAxis: 7000,
		Eccentricity:  0.01,
		Inclination:   0.9,
		RAAN:          1.2,
		ArgPerigee:    0.4,
		TrueAnomaly:   2.1,
		GM:            astrocore.Earth.GM,
	}
	sv := c.ToCartesian(astrocore.FrameJ2000)
	back, err := FromCartesian(sv, astrocore.Earth.GM)
	if err != nil {
		t.Fatalf("FromCartesian: %v", err)
	}
	if !astrocore.EqualWithinAbs(c.SemiMajorAxis, back.SemiMajorAxis, 1e-6) {
		t.Fatalf("a mismatch: %f vs %f", c.SemiMajorAxis, back.SemiMajorAxis)
	}
	if !astrocore.EqualWithinAbs(c.Eccentricity, back.Eccentricity, 1e-6) {
		t.Fatalf("e mismatch: %f vs %f", c.Eccentricity, back.Eccentricity)
	}
	if !astrocore.EqualWithinAbs(c.Inclination, back.Inclination, 1e-6) {
		t.Fatalf("i mismatch: %f vs %f", c.Inclination, back.Inclination)
	}
}

func TestFromCartesianRequiresInertial(t *testing.T) {
	sv := astrocore.NewStateVector(astrocore.NewEpoch(0), astrocore.NewVector3(7000, 0, 0), astrocore.NewVector3(0, 7, 0), astrocore.FrameITRF)
	if _, err := FromCartesian(sv, astrocore.Earth.GM); err == nil {
		t.Fatal("expected ErrFrameNotInertial for an ITRF state")
	}
}

func TestKeplerPropagateConservesSemiMajorAxis(t *testing.T) {
	c := ClassicalElements{
		Epoch:         astrocore.NewEpoch(0),
		SemiMajorAxis: 7000,
		Eccentricity:  0.1,
		Inclination:   0.5,
		RAAN:          0.2,
		ArgPerigee:    0.3,
		TrueAnomaly:   0.0,
		GM:            astrocore.Earth.GM,
	}
	period := 2 * math.Pi * math.Sqrt(math.Pow(c.SemiMajorAxis, 3)/c.GM)
	propagated := c.KeplerPropagate(period)
	if !astrocore.EqualWithinAbs(c.SemiMajorAxis, propagated.SemiMajorAxis, 1e-9) {
		t.Fatalf("semi-major axis should be conserved: %f vs %f", c.SemiMajorAxis, propagated.SemiMajorAxis)
	}
	if !astrocore.EqualWithinAbs(c.TrueAnomaly, propagated.TrueAnomaly, 1e-6) {
		t.Fatalf("one full period should return to the same true anomaly: %f vs %f", c.TrueAnomaly, propagated.TrueAnomaly)
	}
}
