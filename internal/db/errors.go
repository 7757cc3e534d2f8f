package db

import "errors"

// Sentinel errors for key-value operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
)

// Op constants name the failing operation for error context.
const (
	OpInsert    = "insert"
	OpFind      = "find"
	OpCount     = "count"
	OpSum       = "sum"
	OpGroupSum  = "group_sum"
	OpAggregate = "aggregate"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpReset     = "reset"
	OpPersist   = "persist"
	OpLoad      = "load"
	OpPing      = "ping"
	OpConnect   = "connect"
	OpGet       = "GET"
	OpSet       = "SET"
	OpIncrBy    = "INCRBY"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
