package common

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/snapshot-contract/ledger"
)

const adminKey = "admin"

// SetAdmin sets the contract admin in the instance storage. The admin can be
// set only once, ErrAlreadyInitialized is returned on subsequent calls.
func SetAdmin(ic *ledger.Context, admin util.Uint160) error {
	if admin.Equals(util.Uint160{}) {
		return ErrInvalidAdmin
	}

	inst := ic.Instance()
	if inst.Get([]byte(adminKey)) != nil {
		return ErrAlreadyInitialized
	}

	inst.Put([]byte(adminKey), admin.BytesBE())

	return nil
}

// GetAdmin returns the contract admin. The second value is false if the admin
// is not set.
func GetAdmin(inst ledger.Storage) (util.Uint160, bool, error) {
	data := inst.Get([]byte(adminKey))
	if data == nil {
		return util.Uint160{}, false, nil
	}

	admin, err := util.Uint160DecodeBytesBE(data)
	if err != nil {
		return util.Uint160{}, false, fmt.Errorf("decode admin: %w", err)
	}

	return admin, true, nil
}

// CheckAdmin checks that the invocation is sent by the contract admin. It
// returns ErrNotInitialized if there is no admin and ErrUnauthorized if the
// sender is someone else.
func CheckAdmin(ic *ledger.Context) error {
	admin, ok, err := GetAdmin(ic.Instance())
	if err != nil {
		return err
	}

	if !ok {
		return ErrNotInitialized
	}

	return CheckWitness(ic, admin)
}
