package common

import (
	"encoding/binary"

	"github.com/nspcc-dev/snapshot-contract/ledger"
)

const (
	major = 0
	minor = 3
	patch = 0

	// Version of the contracts recorded on initialization.
	Version = major*1_000_000 + minor*1_000 + patch

	versionKey = "version"
)

// SetVersion records the current Version in the instance storage.
func SetVersion(inst ledger.Storage) {
	inst.Put([]byte(versionKey), binary.BigEndian.AppendUint32(nil, Version))
}

// GetVersion returns version the contract was initialized with or 0.
func GetVersion(inst ledger.Storage) int {
	v := inst.Get([]byte(versionKey))
	if len(v) != 4 {
		return 0
	}

	return int(binary.BigEndian.Uint32(v))
}
