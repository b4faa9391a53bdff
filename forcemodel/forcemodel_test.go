package forcemodel

import (
	"math"
	"testing"

	"github.com/kestrel-space/astrocore"
)

func circularLEOState() (astrocore.Epoch, []float64) {
	r := astrocore.Earth.RadiusEq + 500
	v := math.Sqrt(astrocore.Earth.GM / r)
	return astrocore.NewEpoch(0), []float64{r, 0, 0, 0, v, 0}
}

func TestTwoBodyOnlyDerivativeMatchesPointMassGravity(t *testing.T) {
	m := NewEarthModel()
	epoch, y := circularLEOState()
	dy := m.Derivative(epoch, y)

	if !astrocore.EqualWithinAbs(dy[0], y[3], 1e-12) ||
		!astrocore.EqualWithinAbs(dy[1], y[4], 1e-12) ||
		!astrocore.EqualWithinAbs(dy[2], y[5], 1e-12) {
		t.Fatalf("derivative's position rate should equal velocity: %v vs %v", dy[:3], y[3:])
	}
	r := astrocore.Earth.RadiusEq + 500
	wantAccel := -astrocore.Earth.GM / (r * r)
	if !astrocore.EqualWithinAbs(dy[3], wantAccel, 1e-9) {
		t.Fatalf("expected radial accel %e, got %e", wantAccel, dy[3])
	}
}

func TestDerivativePanicsOnWrongDimension(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Derivative to panic on a non-6-element state")
		}
	}()
	m := NewEarthModel()
	m.Derivative(astrocore.NewEpoch(0), []float64{1, 2, 3})
}

func TestZonalAccelAddsJ2Perturbation(t *testing.T) {
	m := NewEarthModel().SetEarthGravity(2, 0)
	epoch, y := circularLEOState()
	withJ2 := m.Derivative(epoch, y)

	plain := NewEarthModel()
	without := plain.Derivative(epoch, y)

	accelWith := astrocore.NewVector3(withJ2[3], withJ2[4], withJ2[5]).Norm()
	accelWithout := astrocore.NewVector3(without[3], without[4], without[5]).Norm()
	if astrocore.EqualWithinAbs(accelWith, accelWithout, 1e-12) {
		t.Fatal("expected J2 zonal term to change the acceleration magnitude")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewEarthModel()
	m.LoadManeuver(astrocore.NewImpulsiveThrust(astrocore.NewEpoch(0), 1, 2, 3))
	c := m.Clone()
	c.ClearManeuver()
	if m.maneuver == nil {
		t.Fatal("clearing the clone's maneuver should not affect the original")
	}
	if c.maneuver != nil {
		t.Fatal("expected the clone's maneuver to be cleared")
	}
}

func TestSetBCoeffEnablesDragTerm(t *testing.T) {
	m := NewEarthModel().SetBCoeff(0.01)
	epoch, y := circularLEOState()
	dy := m.Derivative(epoch, y)
	plain := NewEarthModel().Derivative(epoch, y)
	if dy[3] == plain[3] && dy[4] == plain[4] && dy[5] == plain[5] {
		t.Fatal("expected drag to perturb the acceleration")
	}
}

func TestExponentialDensityDecaysWithAltitude(t *testing.T) {
	low := exponentialDensity(0)
	high := exponentialDensity(500)
	if high >= low {
		t.Fatalf("density should decay with altitude: rho(0)=%e rho(500)=%e", low, high)
	}
}

func TestMuFallsBackToCentralBodyGM(t *testing.T) {
	m := New(astrocore.Moon)
	if m.mu() != astrocore.Moon.GM {
		t.Fatalf("expected mu() to default to the central body's GM, got %f", m.mu())
	}
	m.SetGravity(123.0)
	if m.mu() != 123.0 {
		t.Fatalf("expected SetGravity to override mu(), got %f", m.mu())
	}
}
