package astrocore

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/julian"
)

// Epoch is a UTC instant stored as POSIX seconds (seconds since
// 1970-01-01T00:00:00Z), matching the data model's single-float Epoch.
// Julian-date conversion reuses soniakeys/meeus/julian the same way the
// teacher's celestial.go and config.go do for VSOP87 lookups.
type Epoch struct {
	posixSeconds float64
}

const posixToJulianEpoch = 2440587.5 // JD at 1970-01-01T00:00:00Z

// NewEpoch builds an Epoch from POSIX seconds.
func NewEpoch(posixSeconds float64) Epoch {
	return Epoch{posixSeconds: posixSeconds}
}

// EpochFromTime builds an Epoch from a time.Time (converted to UTC).
func EpochFromTime(t time.Time) Epoch {
	u := t.UTC()
	return Epoch{posixSeconds: float64(u.Unix()) + float64(u.Nanosecond())/1e9}
}

// Time returns e as a time.Time in UTC.
func (e Epoch) Time() time.Time {
	sec := int64(e.posixSeconds)
	nsec := int64((e.posixSeconds - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// POSIXSeconds returns the raw POSIX-seconds representation.
func (e Epoch) POSIXSeconds() float64 {
	return e.posixSeconds
}

// JulianDate returns the UTC Julian date.
func (e Epoch) JulianDate() float64 {
	return e.posixSeconds/86400.0 + posixToJulianEpoch
}

// JulianCenturiesJ2000 returns Julian centuries since the J2000.0 epoch
// (2000-01-01T12:00:00 TT), approximating TT ≈ UTC for the core's
// frame-transform purposes (leap-second precision is an EOP-provider
// concern, not this epoch's).
func (e Epoch) JulianCenturiesJ2000() float64 {
	const j2000 = 2451545.0
	return (e.JulianDate() - j2000) / 36525.0
}

// Sub returns e - o in seconds.
func (e Epoch) Sub(o Epoch) float64 {
	return e.posixSeconds - o.posixSeconds
}

// Roll returns e advanced by secs seconds.
func (e Epoch) Roll(secs float64) Epoch {
	return Epoch{posixSeconds: e.posixSeconds + secs}
}

// Before reports whether e is strictly before o.
func (e Epoch) Before(o Epoch) bool {
	return e.posixSeconds < o.posixSeconds
}

// After reports whether e is strictly after o.
func (e Epoch) After(o Epoch) bool {
	return e.posixSeconds > o.posixSeconds
}

// Equal reports whether e and o represent the same instant to
// microsecond precision.
func (e Epoch) Equal(o Epoch) bool {
	return EqualWithinAbs(e.posixSeconds, o.posixSeconds, 1e-6)
}

// GMST returns the Greenwich Mean Sidereal Time angle in radians at e,
// via the IAU 1982 polynomial in Julian centuries since J2000, taken from
// Epoch's own Julian-date arithmetic (meeus/julian is not involved).
func (e Epoch) GMST() float64 {
	t := e.JulianCenturiesJ2000()
	// Seconds of GMST, IAU 1982.
	gmstSec := 67310.54841 +
		(876600*3600+8640184.812866)*t +
		0.093104*t*t -
		6.2e-6*t*t*t
	thetaDeg := gmstSec / 240.0 // 240 = 86400/360 sidereal seconds per degree
	return WrapTwoPi(thetaDeg * (math.Pi / 180.0))
}

// TimeToJD converts a time.Time directly to a Julian date via
// soniakeys/meeus/julian, the conversion path the teacher uses for VSOP87
// ephemeris queries (celestial.go) and SPICE cache lookups (config.go).
func TimeToJD(t time.Time) float64 {
	return julian.TimeToJD(t)
}

// JDToTime converts a Julian date back to a time.Time.
func JDToTime(jd float64) time.Time {
	return julian.JDToTime(jd)
}
