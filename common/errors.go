package common

import (
	"errors"

	"github.com/nspcc-dev/snapshot-contract/ledger"
)

// Errors returned by the contracts. All of them are recoverable by the caller
// and must be checked with errors.Is.
var (
	// ErrInvalidEpoch is returned on zero epoch submission.
	ErrInvalidEpoch = errors.New("invalid epoch")

	// ErrDuplicateEpoch is returned when epoch already has a recorded
	// snapshot. Callers retrying a submission after an ambiguous failure may
	// treat it as success if the recorded hash matches.
	ErrDuplicateEpoch = errors.New("epoch is already recorded")

	// ErrContractPaused is returned by mutating calls of the paused contract.
	// Callers should queue the operation and retry later.
	ErrContractPaused = errors.New("contract is paused")

	// ErrUnauthorized is returned when the caller fails identity or
	// permission check.
	ErrUnauthorized = ledger.ErrUnauthorized

	// ErrNotInitialized is returned by operations requiring an admin when it
	// has never been set.
	ErrNotInitialized = errors.New("contract is not initialized")

	// ErrAlreadyInitialized is returned on repeated initialization.
	ErrAlreadyInitialized = errors.New("contract is already initialized")

	// ErrInvalidAdmin is returned on initialization with zero admin account.
	ErrInvalidAdmin = errors.New("invalid admin account")
)
