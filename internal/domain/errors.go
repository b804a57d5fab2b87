package domain

import "errors"

var (
	// ErrUnauthorized is returned when the caller is not the market creator.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidStage is returned when an operation is attempted outside its
	// required lifecycle stage (e.g. Trade before Fund, Fund twice).
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidConfig is returned for construction-time parameter violations.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrTransferFailed is returned when an external asset or claim movement
	// was rejected. The whole operation is aborted.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrSlippageExceeded is returned when a trade's net cost violates the
	// caller's stated collateral limit.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrInvalidInput is returned for malformed trade vectors.
	ErrInvalidInput = errors.New("invalid input")

	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
