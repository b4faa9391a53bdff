package interp

import (
	"math"
	"testing"

	"github.com/kestrel-space/astrocore"
)

func circularSamples(n int, mu float64) []astrocore.StateVector {
	r := astrocore.Earth.RadiusEq + 500
	v := math.Sqrt(mu / r)
	period := 2 * math.Pi * math.Sqrt(r*r*r/mu)
	out := make([]astrocore.StateVector, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1) * period
		theta := t / period * 2 * math.Pi
		pos := astrocore.NewVector3(r*math.Cos(theta), r*math.Sin(theta), 0)
		vel := astrocore.NewVector3(-v*math.Sin(theta), v*math.Cos(theta), 0)
		out[i] = astrocore.NewStateVector(astrocore.NewEpoch(t), pos, vel, astrocore.FrameJ2000)
	}
	return out
}

func TestVerletBlendReturnsExactSampleAtItsEpoch(t *testing.T) {
	samples := circularSamples(5, astrocore.Earth.GM)
	vb := NewVerletBlend(samples, astrocore.Earth.GM)
	s, ok := vb.Interpolate(samples[2].Epoch)
	if !ok {
		t.Fatal("expected a sample epoch to be in window")
	}
	if !astrocore.EqualWithinAbs(s.Position.X, samples[2].Position.X, 1e-9) {
		t.Fatalf("expected exact sample at its own epoch: %+v vs %+v", s.Position, samples[2].Position)
	}
}

func TestVerletBlendOutOfWindowReturnsFalse(t *testing.T) {
	samples := circularSamples(5, astrocore.Earth.GM)
	vb := NewVerletBlend(samples, astrocore.Earth.GM)
	start, end := vb.Window()
	if _, ok := vb.Interpolate(start.Roll(-100)); ok {
		t.Fatal("expected before-window query to miss")
	}
	if _, ok := vb.Interpolate(end.Roll(100)); ok {
		t.Fatal("expected after-window query to miss")
	}
}

func TestHermiteInterpolatesMidpoint(t *testing.T) {
	samples := circularSamples(3, astrocore.Earth.GM)
	h := NewHermite(samples)
	mid := samples[0].Epoch.Roll(samples[1].Epoch.Sub(samples[0].Epoch) / 2)
	s, ok := h.Interpolate(mid)
	if !ok {
		t.Fatal("expected midpoint to be in window")
	}
	if s.Position.Norm() <= 0 {
		t.Fatal("expected a nonzero interpolated position")
	}
}

func TestHermiteExactAtSamples(t *testing.T) {
	samples := circularSamples(4, astrocore.Earth.GM)
	h := NewHermite(samples)
	for _, samp := range samples {
		s, ok := h.Interpolate(samp.Epoch)
		if !ok {
			t.Fatalf("sample epoch should be in window")
		}
		if !astrocore.EqualWithinAbs(s.Position.X, samp.Position.X, 1e-6) {
			t.Fatalf("expected exact position at sample: %+v vs %+v", s.Position, samp.Position)
		}
	}
}

func TestLagrangeExactAtNodes(t *testing.T) {
	samples := circularSamples(6, astrocore.Earth.GM)
	lg, err := NewLagrange(samples, 4)
	if err != nil {
		t.Fatalf("NewLagrange: %v", err)
	}
	for _, samp := range samples {
		s, ok := lg.Interpolate(samp.Epoch)
		if !ok {
			t.Fatal("sample epoch should be in window")
		}
		if !astrocore.EqualWithinAbs(s.Position.X, samp.Position.X, 1e-6) ||
			!astrocore.EqualWithinAbs(s.Position.Y, samp.Position.Y, 1e-6) {
			t.Fatalf("Lagrange should be exact at a node: %+v vs %+v", s.Position, samp.Position)
		}
	}
}

func TestLagrangeRejectsTooFewSamples(t *testing.T) {
	if _, err := NewLagrange([]astrocore.StateVector{circularSamples(2, astrocore.Earth.GM)[0]}, 4); err == nil {
		t.Fatal("expected an error for fewer than two samples")
	}
}

func TestChebyshevExactAtRecordBoundaries(t *testing.T) {
	rec := ChebyshevRecord{
		Start:   astrocore.NewEpoch(0),
		End:     astrocore.NewEpoch(100),
		CoeffsX: []float64{1, 2, 0.5},
		CoeffsY: []float64{0, 1, 0},
		CoeffsZ: []float64{0, 0, 0},
	}
	c := NewChebyshev([]ChebyshevRecord{rec})
	s, ok := c.Interpolate(astrocore.NewEpoch(0))
	if !ok {
		t.Fatal("expected the record start to be in window")
	}
	// x = -1 at Start: value = -1*bk1 - bk2 + c0, computed via Clenshaw.
	want := clenshawValue(rec.CoeffsX, -1)
	if !astrocore.EqualWithinAbs(s.Position.X, want, 1e-9) {
		t.Fatalf("expected %f at record start, got %f", want, s.Position.X)
	}

	end, ok := c.Interpolate(astrocore.NewEpoch(100))
	if !ok {
		t.Fatal("expected the record end to be in window under the closed-interval policy")
	}
	wantEnd := clenshawValue(rec.CoeffsX, 1)
	if !astrocore.EqualWithinAbs(end.Position.X, wantEnd, 1e-9) {
		t.Fatalf("expected %f at record end, got %f", wantEnd, end.Position.X)
	}
}

func clenshawValue(coeffs []float64, x float64) float64 {
	v, _ := clenshawWithDerivative(coeffs, x, 100)
	return v
}

func TestChebyshevPrefersEarlierRecordAtSharedBoundary(t *testing.T) {
	r1 := ChebyshevRecord{Start: astrocore.NewEpoch(0), End: astrocore.NewEpoch(50), CoeffsX: []float64{1}, CoeffsY: []float64{0}, CoeffsZ: []float64{0}}
	r2 := ChebyshevRecord{Start: astrocore.NewEpoch(50), End: astrocore.NewEpoch(100), CoeffsX: []float64{2}, CoeffsY: []float64{0}, CoeffsZ: []float64{0}}
	c := NewChebyshev([]ChebyshevRecord{r1, r2})
	if c.recordFor(astrocore.NewEpoch(50)) != 0 {
		t.Fatal("expected the earlier record to win at a shared boundary")
	}
}

func TestOverlapOfDisjointWindowsIsFalse(t *testing.T) {
	a := NewVerletBlend(circularSamples(3, astrocore.Earth.GM), astrocore.Earth.GM)
	laterSamples := circularSamples(3, astrocore.Earth.GM)
	_, aEnd := a.Window()
	for i := range laterSamples {
		laterSamples[i].Epoch = laterSamples[i].Epoch.Roll(aEnd.POSIXSeconds() + 1e6)
	}
	b := NewVerletBlend(laterSamples, astrocore.Earth.GM)
	if _, _, ok := a.Overlap(b); ok {
		t.Fatal("expected disjoint windows not to overlap")
	}
}
