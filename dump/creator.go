package dump

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nspcc-dev/snapshot-contract/ledger"
)

// Creator writes a dump of the ledger contracts. The dump consists of two
// files:
//
//	'<label>-<height>-contracts.json': JSON array of contracts' states
//	'<label>-<height>-storage.csv': CSV of contracts' storages
//
// Storage CSV rows are 'name,key,value' where name is the contract name and
// key and value are base64-encoded. Keys start with the storage tier byte.
//
// Use OpenReader or IterateDumps to read dumps back.
type Creator struct {
	contractsFile *os.File
	storageFile   *os.File

	contracts []contractRecord
	items     *csv.Writer
}

// NewCreator creates files of the dump with given ID in the directory.
// Resulting Creator must be closed. NewCreator fails with os.ErrExist if
// the dump already exists.
func NewCreator(dir string, id ID) (*Creator, error) {
	if err := id.validate(); err != nil {
		return nil, fmt.Errorf("invalid dump ID: %w", err)
	}

	contractsPath, storagePath := id.files(dir)

	storageFile, err := createFile(storagePath)
	if err != nil {
		return nil, err
	}

	contractsFile, err := createFile(contractsPath)
	if err != nil {
		_ = storageFile.Close()
		_ = os.Remove(storagePath)
		return nil, err
	}

	return &Creator{
		contractsFile: contractsFile,
		storageFile:   storageFile,
		items:         csv.NewWriter(storageFile),
	}, nil
}

func createFile(p string) (*os.File, error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}

	return f, nil
}

// AddContract lists the contract in the dump and returns StorageWriter for
// its storage items. Nothing is written to the contract list until Flush.
func (x *Creator) AddContract(name string, st ledger.ContractState) *StorageWriter {
	x.contracts = append(x.contracts, contractRecord{Name: name, State: st})

	return &StorageWriter{name: name, csv: x.items}
}

// Flush writes the contract list and buffered storage items.
func (x *Creator) Flush() error {
	enc := json.NewEncoder(x.contractsFile)
	enc.SetIndent("", " ")

	if err := enc.Encode(x.contracts); err != nil {
		return fmt.Errorf("write contract list: %w", err)
	}

	x.items.Flush()

	if err := x.items.Error(); err != nil {
		return fmt.Errorf("write storage items: %w", err)
	}

	return nil
}

// Close closes dump files. The Creator must not be used after.
func (x *Creator) Close() error {
	return errors.Join(x.storageFile.Close(), x.contractsFile.Close())
}

// StorageWriter writes storage items of a single contract.
type StorageWriter struct {
	name string
	csv  *csv.Writer
}

// Write appends the storage item to the dump.
func (x *StorageWriter) Write(key, value []byte) error {
	err := x.csv.Write([]string{x.name, itemEncoding.EncodeToString(key), itemEncoding.EncodeToString(value)})
	if err != nil {
		return fmt.Errorf("write storage item of '%s': %w", x.name, err)
	}

	return nil
}

// Ledger dumps all contracts registered in the ledger into the directory and
// returns ID of the dump. Invocations wait until the dump is written, so the
// dump holds exactly the state at its height.
func Ledger(l *ledger.Ledger, dir, label string) (ID, error) {
	var id ID

	err := l.View(func(v ledger.View) error {
		height, err := v.Height()
		if err != nil {
			return fmt.Errorf("get ledger height: %w", err)
		}

		id = ID{Label: label, Height: height}

		return writeView(v, dir, id)
	})
	if err != nil {
		return ID{}, err
	}

	return id, nil
}

func writeView(v ledger.View, dir string, id ID) error {
	contracts, err := v.Contracts()
	if err != nil {
		return fmt.Errorf("list contracts: %w", err)
	}

	d, err := NewCreator(dir, id)
	if err != nil {
		return fmt.Errorf("init dump: %w", err)
	}

	defer func() { _ = d.Close() }()

	for _, c := range contracts {
		w := d.AddContract(c.Name, c)

		if err = v.IterateStorage(c.ID, w.Write); err != nil {
			return fmt.Errorf("dump '%s' contract storage: %w", c.Name, err)
		}
	}

	if err = d.Flush(); err != nil {
		return fmt.Errorf("flush dump: %w", err)
	}

	return nil
}
