package dump

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nspcc-dev/snapshot-contract/ledger"
)

const (
	sep             = "-"
	contractsSuffix = "contracts.json"
	storageSuffix   = "storage.csv"
)

// keys and values of storage items are binary.
var itemEncoding = base64.StdEncoding

// ID identifies the dump within its directory.
type ID struct {
	// Source of the dump, e.g. prod or staging. Must not contain '-'.
	Label string
	// Ledger height the dump is taken at.
	Height uint32
}

// String returns '<label>-<height>'.
func (x ID) String() string {
	return x.Label + sep + strconv.FormatUint(uint64(x.Height), 10)
}

// ParseID decodes ID from its string form. Words following the height are
// ignored, so names of the dump files are accepted as well.
func ParseID(s string) (ID, error) {
	label, rest, ok := strings.Cut(s, sep)
	if !ok {
		return ID{}, fmt.Errorf("'%s' is not a dump ID: no height", s)
	}

	height, _, _ := strings.Cut(rest, sep)

	n, err := strconv.ParseUint(height, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("'%s' is not a dump ID: height: %w", s, err)
	}

	id := ID{Label: label, Height: uint32(n)}

	return id, id.validate()
}

func (x ID) validate() error {
	switch {
	case x.Label == "":
		return fmt.Errorf("missing label")
	case strings.Contains(x.Label, sep):
		return fmt.Errorf("label '%s' must not contain '%s'", x.Label, sep)
	default:
		return nil
	}
}

// files returns paths of the contract list and the storage items of the dump.
func (x ID) files(dir string) (contracts, storage string) {
	prefix := filepath.Join(dir, x.String()+sep)
	return prefix + contractsSuffix, prefix + storageSuffix
}

// contractRecord is an element of the contract list.
type contractRecord struct {
	Name  string               `json:"name"`
	State ledger.ContractState `json:"state"`
}
