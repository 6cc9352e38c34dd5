package common

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/snapshot-contract/ledger"
)

// CheckWitness checks that the invocation is sent by the given account.
// It returns ErrUnauthorized otherwise.
func CheckWitness(ic *ledger.Context, account util.Uint160) error {
	auth := ic.Auth()
	if !auth.Verified() || !auth.Caller().Equals(account) {
		return fmt.Errorf("%w: witness of %s is missing", ErrUnauthorized, address.Uint160ToString(account))
	}

	return nil
}
