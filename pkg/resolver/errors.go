package resolver

import (
	"errors"
	"fmt"

	"github.com/1F47E/imagery-dater/pkg/models"
)

// Sentinel errors for broad classification.
var (
	ErrResolutionFailed = errors.New("resolution failed")
	ErrOracleCallFailed = errors.New("oracle call failed")
	ErrInvalidWindow    = errors.New("invalid search window")
)

// ErrorKind is a coarse-grained categorization for resolution errors.
type ErrorKind string

const (
	// KindResolutionFailed means the oracle never answered true inside the search window.
	KindResolutionFailed ErrorKind = "resolution_failed"
	// KindOracleCallFailed means a probe returned a transport or decoding error.
	KindOracleCallFailed ErrorKind = "oracle_call_failed"
	// KindInvalidWindow means the month hint does not yield a usable search window.
	KindInvalidWindow ErrorKind = "invalid_window"
)

// Error tags a failed resolution with the query it belongs to.
type Error struct {
	Location models.Location
	Month    models.Month
	Kind     ErrorKind
	Calls    int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("resolve (%s) %s: %s", e.Location, e.Month, e.Kind)
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match the sentinel that corresponds to the kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindResolutionFailed:
		return target == ErrResolutionFailed
	case KindOracleCallFailed:
		return target == ErrOracleCallFailed
	case KindInvalidWindow:
		return target == ErrInvalidWindow
	}
	return false
}

// IsKind helps callers classify errors without a type assertion.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// KindOf returns the kind of a resolution error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
