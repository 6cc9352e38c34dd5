package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

const (
	storagePrefix = 0x70

	tierInstance   = 'i'
	tierPersistent = 'p'
)

// contractKeyLen is the length of the contract storage prefix without a tier.
const contractKeyLen = 5

func contractPrefix(id int32) []byte {
	k := make([]byte, contractKeyLen)
	k[0] = storagePrefix
	binary.LittleEndian.PutUint32(k[1:], uint32(id))
	return k
}

// transaction is a state of a single invocation shared by all contracts
// called within it.
type transaction struct {
	cache     *storage.MemCachedStore
	auth      AuthContext
	height    uint32
	hash      util.Uint256
	timestamp uint64
	readOnly  bool
	events    []Event
}

// Context is an execution context of a contract within a single invocation.
// It is valid only inside the function passed to Invoke or Read.
type Context struct {
	tx *transaction
	id int32
}

// ID returns ID of the executing contract.
func (c *Context) ID() int32 {
	return c.id
}

// Instance returns instance storage of the executing contract.
func (c *Context) Instance() Storage {
	return c.storage(tierInstance)
}

// Persistent returns persistent storage of the executing contract.
func (c *Context) Persistent() Storage {
	return c.storage(tierPersistent)
}

func (c *Context) storage(tier byte) Storage {
	return Storage{
		tx:     c.tx,
		prefix: append(contractPrefix(c.id), tier),
	}
}

// Auth returns identity of the invocation sender.
func (c *Context) Auth() AuthContext {
	return c.tx.auth
}

// Timestamp returns ledger time of the invocation in milliseconds since Unix
// epoch. Read calls see the time of the last committed invocation.
func (c *Context) Timestamp() uint64 {
	return c.tx.timestamp
}

// Height returns height of the invocation. Read calls see the current height.
func (c *Context) Height() uint32 {
	return c.tx.height
}

// ReadOnly checks whether the context belongs to a read call.
func (c *Context) ReadOnly() bool {
	return c.tx.readOnly
}

// Notify emits a contract event. Events are delivered to the listeners only
// if the invocation is committed.
func (c *Context) Notify(name string, args ...stackitem.Item) {
	if c.tx.readOnly {
		panic(ErrReadOnly)
	}

	c.tx.events = append(c.tx.events, Event{
		Contract: c.id,
		Name:     name,
		Args:     args,
	})
}

// Nested returns execution context of another contract called within the
// same invocation. Nested contexts share the sender, the time and the
// all-or-nothing fate of the invocation.
func (c *Context) Nested(id int32) *Context {
	return &Context{tx: c.tx, id: id}
}

// Storage is a single storage tier of the contract.
type Storage struct {
	tx     *transaction
	prefix []byte
}

func (s Storage) key(k []byte) []byte {
	res := make([]byte, 0, len(s.prefix)+len(k))
	res = append(res, s.prefix...)
	return append(res, k...)
}

// Get returns value stored by the key or nil if there is none. Backend
// failures abort the invocation.
func (s Storage) Get(key []byte) []byte {
	v, err := s.tx.cache.Get(s.key(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil
		}
		panic(fmt.Errorf("read storage item: %w", err))
	}

	return slices.Clone(v)
}

// Put saves the value by the key. It panics with ErrReadOnly in read calls.
func (s Storage) Put(key, value []byte) {
	if s.tx.readOnly {
		panic(ErrReadOnly)
	}

	s.tx.cache.Put(s.key(key), slices.Clone(value))
}

// Delete removes value stored by the key. It panics with ErrReadOnly in read
// calls.
func (s Storage) Delete(key []byte) {
	if s.tx.readOnly {
		panic(ErrReadOnly)
	}

	s.tx.cache.Delete(s.key(key))
}

// Find iterates over items with the given key prefix in ascending key order
// until f returns false. Keys passed to f include the prefix.
func (s Storage) Find(prefix []byte, f func(key, value []byte) bool) {
	s.tx.cache.Seek(storage.SeekRange{Prefix: s.key(prefix)}, func(k, v []byte) bool {
		return f(slices.Clone(k[len(s.prefix):]), slices.Clone(v))
	})
}
