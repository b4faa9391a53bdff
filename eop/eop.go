// Package eop provides the EopProvider contract: polar motion and
// length-of-day at a UTC epoch, and a CSV-backed implementation for the
// Celestrak EOP-All.csv format. The core treats EOP data as an external
// collaborator (spec §1); this package is that collaborator's concrete
// shape, grounded on legacy/smd/config.go's CSV-cache-lookup pattern
// (stateFromString / the SPICE state cache) adapted from a one-shot
// lookup to an interpolated time series.
package eop

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kestrel-space/astrocore"
)

// Parameters is the five-tuple an EopProvider returns for a UTC epoch:
// polar motion (xp, yp) in radians, length-of-day in seconds, and the
// nutation corrections (dPsi, dEps) in radians.
type Parameters struct {
	PolarMotionX float64
	PolarMotionY float64
	LOD          float64
	DPsi         float64
	DEps         float64
}

// Provider yields EOP parameters at a UTC epoch. Out-of-table epochs
// fall back to the nearest endpoint, per §6's documented extrapolation
// policy.
type Provider interface {
	At(epoch astrocore.Epoch) Parameters
}

// StaticProvider always returns the same Parameters, useful for tests
// and for callers who only care about the sidereal-rotation term and
// treat polar motion/nutation corrections as negligible.
type StaticProvider struct {
	Value Parameters
}

// At implements Provider.
func (s StaticProvider) At(astrocore.Epoch) Parameters {
	return s.Value
}

// ZeroProvider is a StaticProvider returning all-zero parameters —
// equivalent to skipping polar motion and nutation-correction terms
// entirely (GCRF degenerates to J2000 and ITRF misses polar motion).
var ZeroProvider Provider = StaticProvider{}

type tableRow struct {
	mjd          float64
	polarMotionX float64
	polarMotionY float64
	lod          float64
	dPsi         float64
	dEps         float64
}

// TableProvider is a read-mostly, sorted-by-epoch in-memory table loaded
// from a Celestrak-style EOP-All.csv, matching the spec's description of
// the EOP provider as "a read-mostly cache populated at startup" (§5).
type TableProvider struct {
	rows []tableRow
}

// LoadCSV parses a Celestrak EOP-All.csv file. Expected columns (by
// index, 0-based): 0=MJD, 1=PM-x (arcsec), 2=PM-y (arcsec), 3=LOD (ms),
// 4=dPsi (arcsec), 5=dEps (arcsec) — the subset of Celestrak's EOP-All
// format this core actually consumes; unused columns are ignored.
func LoadCSV(path string) (*TableProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) (*TableProvider, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows := make([]tableRow, 0, 4096)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 6 {
			continue
		}
		row, ok := parseRow(rec)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].mjd < rows[j].mjd })
	return &TableProvider{rows: rows}, nil
}

func parseRow(rec []string) (tableRow, bool) {
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := parseFloat(rec[i])
		if err != nil {
			return tableRow{}, false
		}
		vals[i] = v
	}
	const arcsecToRad = 4.84813681109536e-6
	return tableRow{
		mjd:          vals[0],
		polarMotionX: vals[1] * arcsecToRad,
		polarMotionY: vals[2] * arcsecToRad,
		lod:          vals[3] / 1000.0,
		dPsi:         vals[4] * arcsecToRad,
		dEps:         vals[5] * arcsecToRad,
	}, true
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// At implements Provider via linear interpolation between table
// neighbors, falling back to the nearest endpoint outside the table's
// span.
func (t *TableProvider) At(epoch astrocore.Epoch) Parameters {
	if len(t.rows) == 0 {
		return Parameters{}
	}
	mjd := epoch.JulianDate() - 2400000.5
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].mjd >= mjd })
	if i <= 0 {
		return rowToParams(t.rows[0])
	}
	if i >= len(t.rows) {
		return rowToParams(t.rows[len(t.rows)-1])
	}
	lo, hi := t.rows[i-1], t.rows[i]
	if hi.mjd == lo.mjd {
		return rowToParams(lo)
	}
	frac := (mjd - lo.mjd) / (hi.mjd - lo.mjd)
	return Parameters{
		PolarMotionX: lerp(lo.polarMotionX, hi.polarMotionX, frac),
		PolarMotionY: lerp(lo.polarMotionY, hi.polarMotionY, frac),
		LOD:          lerp(lo.lod, hi.lod, frac),
		DPsi:         lerp(lo.dPsi, hi.dPsi, frac),
		DEps:         lerp(lo.dEps, hi.dEps, frac),
	}
}

func rowToParams(r tableRow) Parameters {
	return Parameters{
		PolarMotionX: r.polarMotionX,
		PolarMotionY: r.polarMotionY,
		LOD:          r.lod,
		DPsi:         r.dPsi,
		DEps:         r.dEps,
	}
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}
