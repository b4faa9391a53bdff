// Package tle implements the two-line-element parser and SGP4 propagator
// of §4.3 and §6: a 69-column TLE line pair (with Alpha-5 extended
// satellite-number support), and a propagation.Propagator wrapping
// github.com/joshuaferrara/go-satellite's SGP4, grounded on
// _examples/anupshinde-goeph/satellite/satellite.go's TLEToSat/Propagate
// usage.
package tle

import (
	"strconv"
	"strings"
	"time"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/interp"
	gosatellite "github.com/joshuaferrara/go-satellite"
)

// Elements is a parsed two-line element set, per §4.3.
type Elements struct {
	SatelliteNumber   int
	Classification    byte
	IntlDesignator    string
	EpochYear         int
	EpochDayOfYear    float64
	MeanMotionDot     float64 // rev/day^2
	MeanMotionDotDot  float64 // rev/day^3
	BStar             float64
	ElementSetNumber  int
	Inclination       float64 // deg
	RAAN              float64 // deg
	Eccentricity      float64
	ArgPerigee        float64 // deg
	MeanAnomaly       float64 // deg
	MeanMotion        float64 // rev/day
	RevolutionNumber  int
	Line1             string
	Line2             string
}

// alpha5Digit maps a leading TLE satellite-number letter (A-Z, excluding
// I and O) to its Alpha-5 value 10-33, per §4.3's extended numbering
// rule for catalog numbers above 99999.
func alpha5Digit(c byte) (int, bool) {
	if c < 'A' || c > 'Z' || c == 'I' || c == 'O' {
		return 0, false
	}
	// A=10,B=11,...H=17, J=18 (I skipped), ... N=22, P=23 (O skipped), ... Z=33
	letters := "ABCDEFGHJKLMNPQRSTUVWXYZ"
	idx := strings.IndexByte(letters, c)
	if idx < 0 {
		return 0, false
	}
	return 10 + idx, true
}

// parseSatelliteNumber parses TLE columns 3-7 (1-indexed), honoring the
// Alpha-5 leading-letter convention.
func parseSatelliteNumber(field string) (int, error) {
	if len(field) == 0 {
		return 0, astrocore.NewError(astrocore.ErrDimensionMismatch, "empty satellite number field")
	}
	if d, ok := alpha5Digit(field[0]); ok {
		rest, err := strconv.Atoi(strings.TrimSpace(field[1:]))
		if err != nil {
			return 0, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid Alpha-5 satellite number %q: %v", field, err)
		}
		return d*10000 + rest, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid satellite number %q: %v", field, err)
	}
	return n, nil
}

// epochYearToFour applies the TLE epoch-year pivot rule of §4.3: two-
// digit years below 57 are 20xx, otherwise 19xx.
func epochYearToFour(twoDigit int) int {
	if twoDigit < 57 {
		return 2000 + twoDigit
	}
	return 1900 + twoDigit
}

// Parse reads a standard 69-column TLE line pair (the name line, if
// present as a third line, is not required here) into Elements.
func Parse(line1, line2 string) (Elements, error) {
	if len(line1) < 69 || len(line2) < 69 {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "TLE lines must be 69 columns, got %d/%d", len(line1), len(line2))
	}
	if line1[0] != '1' || line2[0] != '2' {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "TLE line numbers must be 1 and 2")
	}

	satNum, err := parseSatelliteNumber(line1[2:7])
	if err != nil {
		return Elements{}, err
	}
	satNum2, err := parseSatelliteNumber(line2[2:7])
	if err != nil {
		return Elements{}, err
	}
	if satNum != satNum2 {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "line 1/2 satellite numbers disagree: %d != %d", satNum, satNum2)
	}

	epochYear2, err := strconv.Atoi(strings.TrimSpace(line1[18:20]))
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid epoch year: %v", err)
	}
	epochDay, err := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid epoch day: %v", err)
	}
	mmDot, err := strconv.ParseFloat(strings.TrimSpace(line1[33:43]), 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid mean-motion dot: %v", err)
	}
	mmDotDot, err := parseAssumedDecimal(line1[44:52])
	if err != nil {
		return Elements{}, err
	}
	bstar, err := parseAssumedDecimal(line1[53:61])
	if err != nil {
		return Elements{}, err
	}
	elsetNum, err := strconv.Atoi(strings.TrimSpace(line1[64:68]))
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid element set number: %v", err)
	}

	inc, err := strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid inclination: %v", err)
	}
	raan, err := strconv.ParseFloat(strings.TrimSpace(line2[17:25]), 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid RAAN: %v", err)
	}
	eccStr := "0." + strings.TrimSpace(line2[26:33])
	ecc, err := strconv.ParseFloat(eccStr, 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid eccentricity: %v", err)
	}
	argp, err := strconv.ParseFloat(strings.TrimSpace(line2[34:42]), 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid argument of perigee: %v", err)
	}
	ma, err := strconv.ParseFloat(strings.TrimSpace(line2[43:51]), 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid mean anomaly: %v", err)
	}
	mm, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid mean motion: %v", err)
	}
	revNum, err := strconv.Atoi(strings.TrimSpace(line2[63:68]))
	if err != nil {
		return Elements{}, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid revolution number: %v", err)
	}

	return Elements{
		SatelliteNumber:  satNum,
		Classification:   line1[7],
		IntlDesignator:   strings.TrimSpace(line1[9:17]),
		EpochYear:        epochYearToFour(epochYear2),
		EpochDayOfYear:   epochDay,
		MeanMotionDot:    mmDot,
		MeanMotionDotDot: mmDotDot,
		BStar:            bstar,
		ElementSetNumber: elsetNum,
		Inclination:      inc,
		RAAN:             raan,
		Eccentricity:     ecc,
		ArgPerigee:       argp,
		MeanAnomaly:      ma,
		MeanMotion:       mm,
		RevolutionNumber: revNum,
		Line1:            line1,
		Line2:            line2,
	}, nil
}

// parseAssumedDecimal parses TLE's signed-exponential packed fields of
// the form "+12345-3" meaning +0.12345e-3, used by the BSTAR and
// second-derivative-of-mean-motion columns.
func parseAssumedDecimal(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, nil
	}
	sign := 1.0
	if field[0] == '-' {
		sign = -1.0
		field = field[1:]
	} else if field[0] == '+' {
		field = field[1:]
	}
	expSignIdx := strings.IndexAny(field, "+-")
	if expSignIdx < 0 {
		v, err := strconv.ParseFloat("0."+field, 64)
		if err != nil {
			return 0, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid packed decimal %q: %v", field, err)
		}
		return sign * v, nil
	}
	mantissa := field[:expSignIdx]
	expPart := field[expSignIdx:]
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		return 0, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid packed exponent %q: %v", expPart, err)
	}
	m, err := strconv.ParseFloat("0."+mantissa, 64)
	if err != nil {
		return 0, astrocore.NewError(astrocore.ErrDimensionMismatch, "invalid packed mantissa %q: %v", mantissa, err)
	}
	return sign * m * pow10(exp), nil
}

func pow10(e int) float64 {
	v := 1.0
	if e >= 0 {
		for i := 0; i < e; i++ {
			v *= 10
		}
		return v
	}
	for i := 0; i < -e; i++ {
		v /= 10
	}
	return v
}

// sgp4FailureMessage maps go-satellite's numbered SGP4 error codes onto
// human text, mirroring §6's PropagatorFailure sub-code table.
func sgp4FailureMessage(code int) string {
	switch code {
	case astrocore.PropMeanElementsBad:
		return "mean elements, ecc >= 1.0 or ecc < -0.001 or a < 0.95"
	case astrocore.PropMeanMotionNonPositive:
		return "mean motion less than 0"
	case astrocore.PropPertElementsBad:
		return "pert elements, ecc < 0 or ecc > 1"
	case astrocore.PropNegativeSemiLatus:
		return "semi-latus rectum < 0"
	case astrocore.PropSubOrbital:
		return "satellite has decayed below the Earth's surface"
	case astrocore.PropDecayed:
		return "satellite has decayed"
	default:
		return "unknown SGP4 failure"
	}
}

// SGP4Propagator is a propagation.Propagator (see the propagation
// package) backed by a TLE and go-satellite's SGP4 implementation,
// producing states in the TEME frame per §6.
type SGP4Propagator struct {
	elements Elements
	sat      gosatellite.Satellite
	epoch    astrocore.Epoch
	state    astrocore.StateVector
	checkpoints []astrocore.StateVector
}

// NewSGP4Propagator builds an SGP4Propagator from a parsed TLE, using
// the WGS-84 gravity model constants, matching satellite.go's
// gosatellite.TLEToSat(line1, line2, gosatellite.GravityWGS84) call.
func NewSGP4Propagator(el Elements) (*SGP4Propagator, error) {
	sat := gosatellite.TLEToSat(el.Line1, el.Line2, gosatellite.GravityWGS84)
	epoch := epochFromTLE(el)
	p := &SGP4Propagator{elements: el, sat: sat, epoch: epoch}
	state, err := p.evaluate(epoch)
	if err != nil {
		return nil, err
	}
	p.state = state
	return p, nil
}

// epochFromTLE converts the TLE's (year, day-of-year) epoch into an
// astrocore.Epoch.
func epochFromTLE(el Elements) astrocore.Epoch {
	jan1 := astrocore.EpochFromTime(time.Date(el.EpochYear, time.January, 1, 0, 0, 0, 0, time.UTC))
	return jan1.Roll((el.EpochDayOfYear - 1) * 86400)
}

func (p *SGP4Propagator) evaluate(target astrocore.Epoch) (astrocore.StateVector, error) {
	t := target.Time()
	pos, vel := gosatellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	if p.sat.Error != 0 {
		return astrocore.StateVector{}, astrocore.NewPropagatorFailure(p.sat.Error, sgp4FailureMessage(p.sat.Error))
	}
	r := astrocore.NewVector3(pos.X, pos.Y, pos.Z)
	v := astrocore.NewVector3(vel.X, vel.Y, vel.Z)
	return astrocore.NewStateVector(target, r, v, astrocore.FrameTEME), nil
}

// Propagate advances the SGP4 propagator to target, per propagation.Propagator.
func (p *SGP4Propagator) Propagate(target astrocore.Epoch) (astrocore.StateVector, error) {
	state, err := p.evaluate(target)
	if err != nil {
		return astrocore.StateVector{}, err
	}
	p.state = state
	return state, nil
}

// State returns the last-propagated state.
func (p *SGP4Propagator) State() astrocore.StateVector { return p.state }

// Reset returns the propagator to its TLE epoch.
func (p *SGP4Propagator) Reset() {
	state, _ := p.evaluate(p.epoch)
	p.state = state
	p.checkpoints = nil
}

// Checkpoint pushes the current state onto the checkpoint stack and
// returns its handle, matching propagation.base's bookkeeping style.
func (p *SGP4Propagator) Checkpoint() int {
	p.checkpoints = append(p.checkpoints, p.state)
	return len(p.checkpoints) - 1
}

// Restore pops back to the checkpoint at handle.
func (p *SGP4Propagator) Restore(handle int) {
	if handle < 0 || handle >= len(p.checkpoints) {
		return
	}
	p.state = p.checkpoints[handle]
	p.checkpoints = p.checkpoints[:handle]
}

// ClearCheckpoints discards the checkpoint stack.
func (p *SGP4Propagator) ClearCheckpoints() { p.checkpoints = nil }

// Maneuver is not supported on an SGP4Propagator: SGP4's mean elements
// have no clean impulsive-delta-v update, per §6's note that
// maneuvering TLE-sourced propagators requires first converting to an
// osculating state and switching to a numerical propagator.
func (p *SGP4Propagator) Maneuver(thrust astrocore.Thrust, sampleInterval float64) ([]astrocore.StateVector, error) {
	return nil, astrocore.NewError(astrocore.ErrPropagatorFailure, "SGP4Propagator does not support maneuvers; convert to a numerical propagator first")
}

// EphemerisManeuver is unsupported for the same reason as Maneuver.
func (p *SGP4Propagator) EphemerisManeuver(start, finish astrocore.Epoch, thrusts []astrocore.Thrust, interval float64) (interp.Interpolator, error) {
	return nil, astrocore.NewError(astrocore.ErrPropagatorFailure, "SGP4Propagator does not support maneuvers; convert to a numerical propagator first")
}
