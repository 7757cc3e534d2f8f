package domain

import "errors"

var (
	// ErrNotFound signals a missing resource. Single-result reads report
	// zero matches as a nil document instead.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedOperation signals a join kind or stage the engine cannot run.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrTypeMismatch signals a numeric reduction over a non-numeric value.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrInvalidQuery signals a query the engine cannot evaluate, such as a bad pattern.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrMalformedPersistence signals a corrupt collection file.
	// The local engine recovers from it and only logs it.
	ErrMalformedPersistence = errors.New("malformed persistence")
	// ErrConcurrentWriteHazard names the race between the count and data
	// passes of remote pagination. It is never returned.
	ErrConcurrentWriteHazard = errors.New("concurrent write hazard")
	// ErrClosed signals use of a closed datastore.
	ErrClosed = errors.New("datastore closed")
)
