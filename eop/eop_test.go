package eop

import (
	"strings"
	"testing"

	"github.com/kestrel-space/astrocore"
)

const sampleCSV = `58000.0,0.1,0.2,1.0,0.01,0.02
58001.0,0.3,0.4,2.0,0.03,0.04
58002.0,0.5,0.6,3.0,0.05,0.06
`

func TestZeroProviderReturnsZeroParameters(t *testing.T) {
	p := ZeroProvider.At(astrocore.NewEpoch(0))
	if p != (Parameters{}) {
		t.Fatalf("expected zero Parameters, got %+v", p)
	}
}

func TestStaticProviderIsConstant(t *testing.T) {
	want := Parameters{PolarMotionX: 1, PolarMotionY: 2, LOD: 3, DPsi: 4, DEps: 5}
	p := StaticProvider{Value: want}
	if p.At(astrocore.NewEpoch(0)) != want {
		t.Fatalf("StaticProvider should always return its fixed value")
	}
	if p.At(astrocore.NewEpoch(1e9)) != want {
		t.Fatalf("StaticProvider should ignore epoch")
	}
}

func TestTableProviderInterpolatesLinearly(t *testing.T) {
	tp, err := parseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	mjdEpoch := astrocore.NewEpoch((58000.5 + 2400000.5 - 2440587.5) * 86400.0)
	params := tp.At(mjdEpoch)
	wantX := 0.1 * 4.84813681109536e-6 * 0.5 + 0.3*4.84813681109536e-6*0.5
	if !astrocore.EqualWithinAbs(params.PolarMotionX, wantX, 1e-12) {
		t.Fatalf("expected interpolated polar motion x %e, got %e", wantX, params.PolarMotionX)
	}
}

func TestTableProviderFallsBackToNearestEndpoint(t *testing.T) {
	tp, err := parseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	before := astrocore.NewEpoch((57000.0 + 2400000.5 - 2440587.5) * 86400.0)
	after := astrocore.NewEpoch((60000.0 + 2400000.5 - 2440587.5) * 86400.0)

	first := tp.At(before)
	last := tp.At(after)
	if first.LOD != 0.001 {
		t.Fatalf("expected nearest-endpoint fallback to the first row, got LOD=%f", first.LOD)
	}
	if last.LOD != 0.003 {
		t.Fatalf("expected nearest-endpoint fallback to the last row, got LOD=%f", last.LOD)
	}
}

func TestParseCSVSkipsMalformedRows(t *testing.T) {
	csvWithJunk := sampleCSV + "not,a,valid,row\n58003.0,0.7,0.8,4.0,0.07,0.08\n"
	tp, err := parseCSV(strings.NewReader(csvWithJunk))
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(tp.rows) != 4 {
		t.Fatalf("expected 4 valid rows parsed, got %d", len(tp.rows))
	}
}

func TestEmptyTableProviderReturnsZero(t *testing.T) {
	tp := &TableProvider{}
	if tp.At(astrocore.NewEpoch(0)) != (Parameters{}) {
		t.Fatal("expected zero Parameters from an empty table")
	}
}
