package tle

import (
	"testing"

	"github.com/kestrel-space/astrocore"
)

const issLine1 = "1 25544U 98067A   21275.56329861  .00001617  00000-0  37756-4 0  9996"
const issLine2 = "2 25544  51.6435 195.3186 0003381  94.9979  37.3087 15.48914527304967"

func TestParseISSTLE(t *testing.T) {
	el, err := Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if el.SatelliteNumber != 25544 {
		t.Fatalf("expected satellite number 25544, got %d", el.SatelliteNumber)
	}
	if el.EpochYear != 2021 {
		t.Fatalf("expected epoch year 2021, got %d", el.EpochYear)
	}
	if !astrocore.EqualWithinAbs(el.Inclination, 51.6435, 1e-9) {
		t.Fatalf("expected inclination 51.6435, got %f", el.Inclination)
	}
	if !astrocore.EqualWithinAbs(el.Eccentricity, 0.0003381, 1e-9) {
		t.Fatalf("expected eccentricity 0.0003381, got %f", el.Eccentricity)
	}
	if el.RevolutionNumber != 30496 {
		t.Fatalf("expected revolution number 30496, got %d", el.RevolutionNumber)
	}
}

func TestParseRejectsShortLines(t *testing.T) {
	if _, err := Parse("1 too short", issLine2); err == nil {
		t.Fatal("expected an error for a line shorter than 69 columns")
	}
}

func TestParseRejectsMismatchedLineNumbers(t *testing.T) {
	if _, err := Parse(issLine2, issLine1); err == nil {
		t.Fatal("expected an error when line 1/2 markers are swapped")
	}
}

func TestEpochYearPivot(t *testing.T) {
	if got := epochYearToFour(21); got != 2021 {
		t.Fatalf("epochYearToFour(21) = %d, want 2021", got)
	}
	if got := epochYearToFour(56); got != 2056 {
		t.Fatalf("epochYearToFour(56) = %d, want 2056", got)
	}
	if got := epochYearToFour(57); got != 1957 {
		t.Fatalf("epochYearToFour(57) = %d, want 1957", got)
	}
	if got := epochYearToFour(99); got != 1999 {
		t.Fatalf("epochYearToFour(99) = %d, want 1999", got)
	}
}

func TestAlpha5SatelliteNumber(t *testing.T) {
	n, ok := alpha5Digit('A')
	if !ok || n != 10 {
		t.Fatalf("expected A -> 10, got %d, %v", n, ok)
	}
	if _, ok := alpha5Digit('I'); ok {
		t.Fatal("I should not be a valid Alpha-5 leading letter")
	}
	if _, ok := alpha5Digit('O'); ok {
		t.Fatal("O should not be a valid Alpha-5 leading letter")
	}
}

func TestParseAssumedDecimal(t *testing.T) {
	v, err := parseAssumedDecimal(" 37756-4")
	if err != nil {
		t.Fatalf("parseAssumedDecimal: %v", err)
	}
	want := 0.37756e-4
	if !astrocore.EqualWithinAbs(v, want, 1e-12) {
		t.Fatalf("expected %e, got %e", want, v)
	}
}

func TestParseAssumedDecimalNegative(t *testing.T) {
	v, err := parseAssumedDecimal("-12345-3")
	if err != nil {
		t.Fatalf("parseAssumedDecimal: %v", err)
	}
	want := -0.12345e-3
	if !astrocore.EqualWithinAbs(v, want, 1e-12) {
		t.Fatalf("expected %e, got %e", want, v)
	}
}

func TestNewSGP4PropagatorEvaluatesAtEpoch(t *testing.T) {
	el, err := Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := NewSGP4Propagator(el)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}
	state := p.State()
	if state.Frame != astrocore.FrameTEME {
		t.Fatalf("expected FrameTEME, got %s", state.Frame)
	}
	r := state.Position.Norm()
	if r < 6500 || r > 7200 {
		t.Fatalf("expected an LEO-band radius, got %f km", r)
	}
}

func TestSGP4PropagatorRejectsManeuvers(t *testing.T) {
	el, err := Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := NewSGP4Propagator(el)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}
	if _, err := p.Maneuver(astrocore.NewImpulsiveThrust(astrocore.NewEpoch(0), 0, 0, 0), 60); err == nil {
		t.Fatal("expected SGP4Propagator.Maneuver to be unsupported")
	}
}

func TestSGP4PropagatorCheckpointRestore(t *testing.T) {
	el, err := Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := NewSGP4Propagator(el)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}
	start := p.State()
	h := p.Checkpoint()
	if _, err := p.Propagate(p.epoch.Roll(3600)); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	p.Restore(h)
	if !astrocore.EqualWithinAbs(start.Position.X, p.State().Position.X, 1e-9) {
		t.Fatalf("Restore should return to the checkpointed state")
	}
}
