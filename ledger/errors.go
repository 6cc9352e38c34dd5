package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the invocation sender is not allowed to
	// perform the requested operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrWitnessFailed is returned when the sender fails to prove control over
	// the account it claims. It matches ErrUnauthorized.
	ErrWitnessFailed = fmt.Errorf("%w: witness check failed", ErrUnauthorized)

	// ErrInvocationFault is returned when an invocation panics. All its writes
	// are dropped.
	ErrInvocationFault = errors.New("invocation fault")

	// ErrReadOnly is the panic value of write attempts made from read calls.
	ErrReadOnly = errors.New("read-only context")
)
