package common

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/snapshot-contract/ledger"
)

// GetSerialized reads the value stored by the key into v. It returns false if
// there is no value.
func GetSerialized(s ledger.Storage, key []byte, v stackitem.Convertible) (bool, error) {
	data := s.Get(key)
	if data == nil {
		return false, nil
	}

	item, err := stackitem.Deserialize(data)
	if err != nil {
		return false, fmt.Errorf("deserialize stack item: %w", err)
	}

	err = v.FromStackItem(item)
	if err != nil {
		return false, fmt.Errorf("decode stack item: %w", err)
	}

	return true, nil
}

// SetSerialized serializes data and puts it into contract storage.
func SetSerialized(s ledger.Storage, key []byte, v stackitem.Convertible) error {
	item, err := v.ToStackItem()
	if err != nil {
		return fmt.Errorf("encode stack item: %w", err)
	}

	data, err := stackitem.Serialize(item)
	if err != nil {
		return fmt.Errorf("serialize stack item: %w", err)
	}

	s.Put(key, data)

	return nil
}
