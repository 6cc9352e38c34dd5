package snapshot

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// Metadata is a recorded snapshot. Records are immutable once stored.
type Metadata struct {
	// Epoch is a caller-assigned sequence number of the snapshot.
	Epoch uint64 `json:"epoch"`

	// Hash is a content fingerprint of the snapshot.
	Hash util.Uint256 `json:"hash"`

	// RecordedAt is a ledger time of the submission in milliseconds since
	// Unix epoch.
	RecordedAt uint64 `json:"recordedAt"`
}

const metadataFields = 3

// ToStackItem implements stackitem.Convertible.
func (m *Metadata) ToStackItem() (stackitem.Item, error) {
	return stackitem.NewStruct([]stackitem.Item{
		stackitem.NewBigInteger(new(big.Int).SetUint64(m.Epoch)),
		stackitem.NewByteArray(m.Hash.BytesBE()),
		stackitem.NewBigInteger(new(big.Int).SetUint64(m.RecordedAt)),
	}), nil
}

// FromStackItem implements stackitem.Convertible.
func (m *Metadata) FromStackItem(item stackitem.Item) error {
	fields, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not a struct")
	}

	if len(fields) != metadataFields {
		return fmt.Errorf("wrong number of fields %d", len(fields))
	}

	epoch, err := uint64Item(fields[0])
	if err != nil {
		return fmt.Errorf("invalid epoch: %w", err)
	}

	rawHash, err := fields[1].TryBytes()
	if err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}

	hash, err := util.Uint256DecodeBytesBE(rawHash)
	if err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}

	recordedAt, err := uint64Item(fields[2])
	if err != nil {
		return fmt.Errorf("invalid record time: %w", err)
	}

	m.Epoch = epoch
	m.Hash = hash
	m.RecordedAt = recordedAt

	return nil
}

func uint64Item(item stackitem.Item) (uint64, error) {
	n, err := item.TryInteger()
	if err != nil {
		return 0, err
	}

	if !n.IsUint64() {
		return 0, fmt.Errorf("%s overflows uint64", n)
	}

	return n.Uint64(), nil
}
