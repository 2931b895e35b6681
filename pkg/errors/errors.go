package errors

import "errors"

// Sentinels for domain errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation error")
	ErrUnavailable = errors.New("service unavailable")

	// ErrCompliance marks an attempt blocked by do-not-call or calling-hours
	// rules. Distinct from ErrProvider so audits can tell them apart.
	ErrCompliance = errors.New("compliance violation")
	// ErrProvider marks a telephony placement or status failure.
	ErrProvider = errors.New("telephony provider error")
	// ErrTimeout marks a status wait that exceeded its hard bound.
	ErrTimeout = errors.New("timeout")
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}
