package dump

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/nspcc-dev/snapshot-contract/ledger"
)

// Item is a storage item of the dumped contract.
type Item struct {
	Key   []byte
	Value []byte
}

// Reader provides contents of the dump. The dump is read into memory
// entirely on opening.
type Reader struct {
	contracts []contractRecord
	items     map[string][]Item
}

// OpenReader reads the dump with given ID from the directory.
func OpenReader(dir string, id ID) (*Reader, error) {
	contractsPath, storagePath := id.files(dir)

	var r Reader

	err := readFile(contractsPath, r.readContracts)
	if err != nil {
		return nil, fmt.Errorf("read contract list of %s: %w", id, err)
	}

	err = readFile(storagePath, r.readItems)
	if err != nil {
		return nil, fmt.Errorf("read storage items of %s: %w", id, err)
	}

	return &r, nil
}

func readFile(p string, f func(io.Reader) error) error {
	file, err := os.Open(p)
	if err != nil {
		return err
	}

	defer file.Close()

	return f(file)
}

func (x *Reader) readContracts(r io.Reader) error {
	return json.NewDecoder(r).Decode(&x.contracts)
}

func (x *Reader) readItems(r io.Reader) error {
	rows := csv.NewReader(r)
	rows.FieldsPerRecord = 3

	x.items = make(map[string][]Item, len(x.contracts))

	for line := 1; ; line++ {
		row, err := rows.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		key, err := itemEncoding.DecodeString(row[1])
		if err != nil {
			return fmt.Errorf("line %d: key: %w", line, err)
		}

		value, err := itemEncoding.DecodeString(row[2])
		if err != nil {
			return fmt.Errorf("line %d: value: %w", line, err)
		}

		x.items[row[0]] = append(x.items[row[0]], Item{Key: key, Value: value})
	}
}

// IterateDumps opens every dump found in the directory and passes it to f in
// the order of dump file names. Missing directory holds no dumps. An error
// returned by f is returned as is.
func IterateDumps(dir string, f func(ID, *Reader) error) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list dump directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sep+contractsSuffix) {
			continue
		}

		id, err := ParseID(e.Name())
		if err != nil {
			return fmt.Errorf("unexpected dump file '%s': %w", e.Name(), err)
		}

		r, err := OpenReader(dir, id)
		if err != nil {
			return err
		}

		if err = f(id, r); err != nil {
			return err
		}
	}

	return nil
}

// IterateContractStates passes listed contracts to f in dump order.
func (x *Reader) IterateContractStates(f func(name string, st ledger.ContractState)) {
	for _, c := range x.contracts {
		f(c.Name, c.State)
	}
}

// IterateContractStorages passes storage items to f contract by contract in
// dump order. Items of the contract follow dump order too.
func (x *Reader) IterateContractStorages(f func(name string, key, value []byte)) {
	for _, c := range x.contracts {
		for _, it := range x.items[c.Name] {
			f(c.Name, it.Key, it.Value)
		}
	}
}

// Stats returns the number of listed contracts and storage items.
func (x *Reader) Stats() (contracts, items int) {
	for _, its := range x.items {
		items += len(its)
	}

	return len(x.contracts), items
}

// Verify checks that the dump could be made by Ledger: contracts are listed
// once, every storage item belongs to a listed contract and item keys of
// each contract strictly ascend.
func (x *Reader) Verify() error {
	var (
		names = make(map[string]struct{}, len(x.contracts))
		ids   = make(map[int32]string, len(x.contracts))
	)

	for _, c := range x.contracts {
		if _, ok := names[c.Name]; ok {
			return fmt.Errorf("contract '%s' is listed twice", c.Name)
		}

		if other, ok := ids[c.State.ID]; ok {
			return fmt.Errorf("contracts '%s' and '%s' share ID %d", other, c.Name, c.State.ID)
		}

		names[c.Name] = struct{}{}
		ids[c.State.ID] = c.Name
	}

	for name, its := range x.items {
		if _, ok := names[name]; !ok {
			return fmt.Errorf("%d storage items of unlisted contract '%s'", len(its), name)
		}

		for i := 1; i < len(its); i++ {
			if bytes.Compare(its[i-1].Key, its[i].Key) >= 0 {
				return fmt.Errorf("storage of '%s' is out of order at key %x", name, its[i].Key)
			}
		}
	}

	return nil
}
