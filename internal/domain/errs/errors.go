// Package errs holds the sentinel errors shared by the match core.
//
// Adapters translate driver failures into these kinds so that domain code and
// callers only ever use errors.Is against this package.
package errs

import "errors"

var (
	// ErrConflict reports a lost uniqueness race. It is resolved into an
	// outcome by the caller and never reaches end users.
	ErrConflict = errors.New("conflict")
	// ErrNotFound reports a missing or dissolved entity.
	ErrNotFound = errors.New("not found")
	// ErrQuotaExceeded reports a capability gate denial.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrSelfReference reports an interest whose actor is its own target.
	ErrSelfReference = errors.New("actor and target must differ")
	// ErrStorage reports a transient storage failure. Callers may retry.
	ErrStorage = errors.New("storage unavailable")
	// ErrUnknownMilestone reports a milestone key absent from the catalog.
	ErrUnknownMilestone = errors.New("unknown milestone")
	// ErrInvalidInput reports a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)

// QuotaError carries the remaining allowance alongside ErrQuotaExceeded.
type QuotaError struct {
	Action    string
	Remaining int
}

func (e *QuotaError) Error() string {
	return ErrQuotaExceeded.Error() + ": " + e.Action
}

// Unwrap lets errors.Is match ErrQuotaExceeded.
func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Retryable reports whether err is worth retrying unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage)
}
