package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/snapshot-contract/metrics"
	"go.uber.org/zap"
)

const (
	sysHeight         = 0x01
	sysTimestamp      = 0x02
	sysContractPrefix = 0x03
	sysNextContractID = 0x04
)

// Call describes a state-changing call of the contract method. Method and
// arguments are signed by the sender along with the ledger height, so each
// witness is valid for a single invocation only.
type Call struct {
	Contract int32
	Method   string
	Args     []stackitem.Item
}

// Event is a notification emitted by the contract during an invocation.
type Event struct {
	Contract int32
	Name     string
	Args     []stackitem.Item
}

// Receipt describes a committed invocation.
type Receipt struct {
	// Height of the ledger after the invocation.
	Height uint32

	// Hash of the signed invocation digest.
	Hash util.Uint256

	// Verified sender of the invocation.
	Sender util.Uint160

	// Ledger time of the invocation, milliseconds since Unix epoch.
	Timestamp uint64

	Events []Event
}

// Listener is called with every committed invocation.
type Listener func(*Receipt)

// ContractState describes contract registered in the ledger.
type ContractState struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Ledger is an execution host of the contracts backed by the neo-go storage.
// Ledger must be created using New.
type Ledger struct {
	store     storage.Store
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.Ledger
	listeners []Listener
	magic     uint32

	mtx   sync.RWMutex
	names map[int32]string
}

// Option allows to set optional Ledger parameters.
type Option func(*Ledger)

// WithClock sets the source of invocation timestamps. Defaults to the system
// clock.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		l.log = log
	}
}

// WithMetrics enables invocation metrics.
func WithMetrics(m *metrics.Ledger) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithListener adds listener of committed invocations. Listeners are called
// synchronously, after the commit, in the order they were added.
func WithListener(f Listener) Option {
	return func(l *Ledger) {
		l.listeners = append(l.listeners, f)
	}
}

// WithMagic sets network magic mixed into invocation digests, so witnesses
// made for one ledger are useless for another one.
func WithMagic(magic uint32) Option {
	return func(l *Ledger) {
		l.magic = magic
	}
}

// New returns Ledger working on top of the given store. The store is owned by
// the Ledger since then and closed by Close.
func New(st storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: st,
		clock: clock.New(),
		log:   zap.NewNop(),
		names: make(map[int32]string),
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	return l.store.Close()
}

// Deploy registers the named contract and returns its ID. Repeated calls
// return the same ID, IDs are never reused.
func (l *Ledger) Deploy(name string) (int32, error) {
	if name == "" {
		return 0, errors.New("empty contract name")
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	cache := storage.NewMemCachedStore(l.store)
	key := append([]byte{sysContractPrefix}, name...)

	v, err := cache.Get(key)
	if err == nil {
		if len(v) != 4 {
			return 0, fmt.Errorf("invalid ID of the contract '%s'", name)
		}
		id := int32(binary.LittleEndian.Uint32(v))
		l.names[id] = name
		return id, nil
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, fmt.Errorf("read contract '%s' state: %w", name, err)
	}

	next, err := getUint32(cache, []byte{sysNextContractID})
	if err != nil {
		return 0, fmt.Errorf("read next contract ID: %w", err)
	}

	id := int32(next) + 1

	cache.Put(key, uint32Bytes(uint32(id)))
	cache.Put([]byte{sysNextContractID}, uint32Bytes(uint32(id)))

	_, err = cache.PersistSync()
	if err != nil {
		return 0, fmt.Errorf("persist contract '%s' state: %w", name, err)
	}

	l.names[id] = name

	l.log.Info("contract registered", zap.String("name", name), zap.Int32("id", id))

	return id, nil
}

// View is a read-only state of the ledger at some height. It is valid only
// inside the function passed to Ledger.View.
type View struct {
	store storage.Store
}

// View calls f with the ledger state no invocation can change until f
// returns. f must not call other Ledger methods.
func (l *Ledger) View(f func(v View) error) error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	return f(View{store: l.store})
}

// Contracts returns all registered contracts ordered by name.
func (l *Ledger) Contracts() ([]ContractState, error) {
	var res []ContractState

	err := l.View(func(v View) error {
		var err error
		res, err = v.Contracts()
		return err
	})

	return res, err
}

// Height returns the number of committed invocations.
func (l *Ledger) Height() (uint32, error) {
	var res uint32

	err := l.View(func(v View) error {
		var err error
		res, err = v.Height()
		return err
	})

	return res, err
}

// IterateStorage passes all storage items of the contract into f. Keys start
// with the tier byte. Iteration stops on the first error returned by f.
func (l *Ledger) IterateStorage(id int32, f func(key, value []byte) error) error {
	return l.View(func(v View) error {
		return v.IterateStorage(id, f)
	})
}

// Contracts returns all registered contracts ordered by name.
func (v View) Contracts() ([]ContractState, error) {
	var (
		res []ContractState
		err error
	)

	v.store.Seek(storage.SeekRange{Prefix: []byte{sysContractPrefix}}, func(k, val []byte) bool {
		if len(val) != 4 {
			err = fmt.Errorf("invalid ID of the contract '%s'", k[1:])
			return false
		}
		res = append(res, ContractState{
			ID:   int32(binary.LittleEndian.Uint32(val)),
			Name: string(k[1:]),
		})
		return true
	})

	return res, err
}

// Height returns the number of committed invocations.
func (v View) Height() (uint32, error) {
	return getUint32(v.store, []byte{sysHeight})
}

// IterateStorage is the same as Ledger.IterateStorage.
func (v View) IterateStorage(id int32, f func(key, value []byte) error) error {
	var err error

	v.store.Seek(storage.SeekRange{Prefix: contractPrefix(id)}, func(k, val []byte) bool {
		err = f(k[contractKeyLen:], val)
		return err == nil
	})

	return err
}

// Invoke verifies the signer's witness for the call and executes f in the
// context of the called contract. The call is atomic: writes of f are
// persisted only if f returns nil. Errors of f are returned as is; if f
// panics, the returned error matches ErrInvocationFault.
//
// Listeners are notified after the ledger lock is released, so they may read
// the state. f itself must not call other Ledger methods.
func (l *Ledger) Invoke(c Call, s Signer, f func(ic *Context) error) (*Receipt, error) {
	start := time.Now()

	l.mtx.Lock()
	rcpt, err := l.invoke(c, s, f)
	name := l.contractName(c.Contract)
	l.mtx.Unlock()

	status := "halt"
	if err != nil {
		status = "fault"
	}

	l.metrics.ObserveInvocation(name, c.Method, status, time.Since(start))

	if err != nil {
		l.log.Debug("invocation failed",
			zap.String("contract", name),
			zap.String("method", c.Method),
			zap.Error(err))
		return nil, err
	}

	l.metrics.SetHeight(rcpt.Height)

	l.log.Debug("invocation committed",
		zap.String("contract", name),
		zap.String("method", c.Method),
		zap.Uint32("height", rcpt.Height),
		zap.Stringer("sender", rcpt.Sender),
		zap.Int("events", len(rcpt.Events)))

	for _, lst := range l.listeners {
		lst(rcpt)
	}

	return rcpt, nil
}

func (l *Ledger) invoke(c Call, s Signer, f func(ic *Context) error) (*Receipt, error) {
	height, err := getUint32(l.store, []byte{sysHeight})
	if err != nil {
		return nil, fmt.Errorf("read ledger height: %w", err)
	}

	height++

	digest, err := l.digest(height, c)
	if err != nil {
		return nil, fmt.Errorf("calculate invocation digest: %w", err)
	}

	auth, err := authenticate(s, digest)
	if err != nil {
		return nil, err
	}

	cache := storage.NewMemCachedStore(l.store)

	ts, err := l.nextTimestamp(cache)
	if err != nil {
		return nil, err
	}

	tx := &transaction{
		cache:     cache,
		auth:      auth,
		height:    height,
		hash:      digest,
		timestamp: ts,
	}

	err = run(&Context{tx: tx, id: c.Contract}, f)
	if err != nil {
		return nil, err
	}

	cache.Put([]byte{sysHeight}, uint32Bytes(height))
	cache.Put([]byte{sysTimestamp}, uint64Bytes(ts))

	_, err = cache.PersistSync()
	if err != nil {
		return nil, fmt.Errorf("persist invocation changes: %w", err)
	}

	return &Receipt{
		Height:    height,
		Hash:      digest,
		Sender:    auth.Caller(),
		Timestamp: ts,
		Events:    tx.events,
	}, nil
}

// Read executes f in the read-only context of the contract. Read calls see
// committed state only, they never wait for the signer and are never gated.
func (l *Ledger) Read(id int32, f func(ic *Context) error) error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	height, err := getUint32(l.store, []byte{sysHeight})
	if err != nil {
		return fmt.Errorf("read ledger height: %w", err)
	}

	ts, err := getUint64(l.store, []byte{sysTimestamp})
	if err != nil {
		return fmt.Errorf("read ledger time: %w", err)
	}

	tx := &transaction{
		cache:     storage.NewMemCachedStore(l.store),
		height:    height,
		timestamp: ts,
		readOnly:  true,
	}

	return run(&Context{tx: tx, id: id}, f)
}

// nextTimestamp returns time of the new invocation. Ledger time never goes
// backwards even if the clock does.
func (l *Ledger) nextTimestamp(cache *storage.MemCachedStore) (uint64, error) {
	last, err := getUint64(cache, []byte{sysTimestamp})
	if err != nil {
		return 0, fmt.Errorf("read ledger time: %w", err)
	}

	now := l.clock.Now().UnixMilli()
	if now < 0 || uint64(now) < last {
		return last, nil
	}

	return uint64(now), nil
}

func (l *Ledger) digest(height uint32, c Call) (util.Uint256, error) {
	args := c.Args
	if args == nil {
		args = []stackitem.Item{}
	}

	bArgs, err := stackitem.Serialize(stackitem.NewArray(args))
	if err != nil {
		return util.Uint256{}, fmt.Errorf("serialize arguments: %w", err)
	}

	w := io.NewBufBinWriter()
	w.WriteU32LE(l.magic)
	w.WriteU32LE(height)
	w.WriteU32LE(uint32(c.Contract))
	w.WriteString(c.Method)
	w.WriteVarBytes(bArgs)
	if w.Err != nil {
		return util.Uint256{}, w.Err
	}

	return hash.Sha256(w.Bytes()), nil
}

func (l *Ledger) contractName(id int32) string {
	if name, ok := l.names[id]; ok {
		return name
	}
	return strconv.FormatInt(int64(id), 10)
}

func run(ic *Context, f func(ic *Context) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if e, ok := r.(error); ok {
			err = fmt.Errorf("%w: %w", ErrInvocationFault, e)
		} else {
			err = fmt.Errorf("%w: %v", ErrInvocationFault, r)
		}
	}()

	return f(ic)
}

type getter interface {
	Get([]byte) ([]byte, error)
}

func getUint32(st getter, key []byte) (uint32, error) {
	v, err := st.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}

	if len(v) != 4 {
		return 0, fmt.Errorf("invalid value length %d", len(v))
	}

	return binary.LittleEndian.Uint32(v), nil
}

func getUint64(st getter, key []byte) (uint64, error) {
	v, err := st.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}

	if len(v) != 8 {
		return 0, fmt.Errorf("invalid value length %d", len(v))
	}

	return binary.LittleEndian.Uint64(v), nil
}

func uint32Bytes(n uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, n)
}

func uint64Bytes(n uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, n)
}
