package astrocore

import "fmt"

// ErrorCode enumerates the closed error taxonomy every fallible operation
// in this module returns through. New members are never added silently;
// callers are expected to switch exhaustively over this set.
type ErrorCode int

const (
	// ErrFrameNotInertial is returned when classical elements are
	// requested from a fixed (non-inertial) frame.
	ErrFrameNotInertial ErrorCode = iota + 1
	// ErrSingularMatrix is returned when a matrix inversion, LU, or
	// Cholesky factorization encounters a (near-)zero pivot.
	ErrSingularMatrix
	// ErrDimensionMismatch is returned on vector/matrix shape mismatches.
	ErrDimensionMismatch
	// ErrNotCoplanar is returned when Gibbs IOD's three position vectors
	// span more than 5 degrees from coplanar.
	ErrNotCoplanar
	// ErrLambertNoConvergence is returned when the Lambert or Gooding
	// iteration exceeds its budget without meeting tolerance.
	ErrLambertNoConvergence
	// ErrPropagatorFailure wraps an SGP4-numbered failure code (§6).
	ErrPropagatorFailure
	// ErrStepRejectionLimit is returned when an adaptive integrator step
	// is rejected 16 times in a row.
	ErrStepRejectionLimit
)

func (c ErrorCode) String() string {
	switch c {
	case ErrFrameNotInertial:
		return "FrameNotInertial"
	case ErrSingularMatrix:
		return "SingularMatrix"
	case ErrDimensionMismatch:
		return "DimensionMismatch"
	case ErrNotCoplanar:
		return "NotCoplanar"
	case ErrLambertNoConvergence:
		return "LambertNoConvergence"
	case ErrPropagatorFailure:
		return "PropagatorFailure"
	case ErrStepRejectionLimit:
		return "StepRejectionLimit"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across astrocore. It carries
// a code from the closed taxonomy plus an optional SGP4 sub-code (only
// meaningful when Code == ErrPropagatorFailure) and a free-form detail
// string for diagnostics.
type Error struct {
	Code    ErrorCode
	SubCode int
	Detail  string
}

func (e *Error) Error() string {
	if e.Code == ErrPropagatorFailure {
		return fmt.Sprintf("%s(%d): %s", e.Code, e.SubCode, e.Detail)
	}
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// NewError builds an *Error with the given code and a formatted detail.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// PropagatorFailure codes, numbered to match SGP4's own exit codes (§6).
const (
	PropMeanElementsBad     = 1
	PropMeanMotionNonPositive = 2
	PropPertElementsBad     = 3
	PropNegativeSemiLatus   = 4
	PropSubOrbital          = 5
	PropDecayed             = 6
)

// NewPropagatorFailure builds an *Error for a numbered SGP4-style failure.
func NewPropagatorFailure(subCode int, detail string) *Error {
	return &Error{Code: ErrPropagatorFailure, SubCode: subCode, Detail: detail}
}
