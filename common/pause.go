package common

import (
	"github.com/nspcc-dev/snapshot-contract/ledger"
)

const pausedKey = "paused"

// InitPause sets the contract active.
func InitPause(inst ledger.Storage) {
	inst.Put([]byte(pausedKey), []byte{0})
}

// IsPaused checks whether the contract is paused. Uninitialized contracts are
// active.
func IsPaused(inst ledger.Storage) bool {
	v := inst.Get([]byte(pausedKey))
	return len(v) == 1 && v[0] == 1
}

// CheckNotPaused returns ErrContractPaused if the contract is paused. Every
// mutating method of the pausable contract calls it before touching the
// storage.
func CheckNotPaused(inst ledger.Storage) error {
	if IsPaused(inst) {
		return ErrContractPaused
	}

	return nil
}

// SetPaused switches pause state of the contract and reports whether it has
// changed. The caller must be checked with CheckAdmin first.
func SetPaused(inst ledger.Storage, paused bool) bool {
	if IsPaused(inst) == paused {
		return false
	}

	v := byte(0)
	if paused {
		v = 1
	}

	inst.Put([]byte(pausedKey), []byte{v})

	return true
}
