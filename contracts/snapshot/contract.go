package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/snapshot-contract/common"
	"github.com/nspcc-dev/snapshot-contract/ledger"
	"go.uber.org/zap"
)

// Name of the contract in the ledger.
const Name = "snapshot"

// Contract method names.
const (
	MethodInitialize     = "initialize"
	MethodSubmitSnapshot = "submitSnapshot"
	MethodPause          = "pause"
	MethodUnpause        = "unpause"

	MethodBindAccessControl   = "bindAccessControl"
	MethodUnbindAccessControl = "unbindAccessControl"
)

// DefaultCacheSize is a default number of records kept in the read cache.
const DefaultCacheSize = 1024

const (
	latestEpochKey   = "latestEpoch"
	accessControlKey = "accessControl"
	snapshotPrefix   = 's'
	epochLen         = 8
	contractIDLen    = 4

	notificationSubmitted   = "SnapshotSubmitted"
	notificationPaused      = "Paused"
	notificationUnpaused    = "Unpaused"
	notificationInitialized = "Initialized"
	notificationBound       = "AccessControlBound"
	notificationUnbound     = "AccessControlUnbound"
)

// ErrNoAccessControl is returned on binding when the client is created
// without WithAccessControl.
var ErrNoAccessControl = errors.New("access control contract is not provided")

// Authorizer decides whether the user may call the method of the contract.
// Its methods are called within the invocation being authorized.
type Authorizer interface {
	// ID returns ledger ID of the access control contract.
	ID() int32

	// Admin returns the admin of the access control contract.
	Admin(ic *ledger.Context) (util.Uint160, bool, error)

	// Permitted checks whether the user may call the method.
	Permitted(ic *ledger.Context, user util.Uint160, method string) (bool, error)
}

// Contract is the epoch-indexed snapshot history. Contract must be created
// using New.
type Contract struct {
	ledger    *ledger.Ledger
	id        int32
	log       *zap.Logger
	acl       Authorizer
	cacheSize int
	cache     *lru.Cache
}

// Option allows to set optional Contract parameters.
type Option func(*Contract)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(c *Contract) {
		c.log = log
	}
}

// WithAccessControl provides the access control contract to consult on
// submissions of non-admin accounts. It takes effect only after the admin
// binds the contract with BindAccessControl; until then only the admin may
// submit.
func WithAccessControl(a Authorizer) Option {
	return func(c *Contract) {
		c.acl = a
	}
}

// WithCacheSize sets the size of the read cache of immutable records.
func WithCacheSize(size int) Option {
	return func(c *Contract) {
		c.cacheSize = size
	}
}

// New registers the contract in the ledger (if needed) and returns it.
func New(l *ledger.Ledger, opts ...Option) (*Contract, error) {
	id, err := l.Deploy(Name)
	if err != nil {
		return nil, fmt.Errorf("deploy %s contract: %w", Name, err)
	}

	c := &Contract{
		ledger:    l,
		id:        id,
		log:       zap.NewNop(),
		cacheSize: DefaultCacheSize,
	}

	for _, o := range opts {
		o(c)
	}

	c.cache, err = lru.New(c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}

	return c, nil
}

// ID returns ledger ID of the contract.
func (c *Contract) ID() int32 {
	return c.id
}

// Initialize sets the admin and makes the contract active. The contract can
// be initialized once by any account.
func (c *Contract) Initialize(caller ledger.Signer, admin util.Uint160) error {
	_, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   MethodInitialize,
		Args:     []stackitem.Item{stackitem.NewByteArray(admin.BytesBE())},
	}, caller, func(ic *ledger.Context) error {
		if err := common.SetAdmin(ic, admin); err != nil {
			return err
		}

		inst := ic.Instance()
		common.InitPause(inst)
		common.SetVersion(inst)

		ic.Notify(notificationInitialized, stackitem.NewByteArray(admin.BytesBE()))

		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	c.log.Info("snapshot contract initialized", zap.String("admin", address.Uint160ToString(admin)))

	return nil
}

// SubmitSnapshot records the snapshot of the epoch and returns ledger time
// it is recorded at. Recorded epochs can never be overwritten.
func (c *Contract) SubmitSnapshot(caller ledger.Signer, epoch uint64, hash util.Uint256) (uint64, error) {
	var res Metadata

	rcpt, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   MethodSubmitSnapshot,
		Args: []stackitem.Item{
			stackitem.NewBigInteger(new(big.Int).SetUint64(epoch)),
			stackitem.NewByteArray(hash.BytesBE()),
		},
	}, caller, func(ic *ledger.Context) error {
		inst := ic.Instance()

		admin, ok, err := common.GetAdmin(inst)
		if err != nil {
			return err
		}

		if !ok {
			return common.ErrNotInitialized
		}

		if err := common.CheckNotPaused(inst); err != nil {
			return err
		}

		if err := c.authorize(ic, admin, MethodSubmitSnapshot); err != nil {
			return err
		}

		if epoch == 0 {
			return common.ErrInvalidEpoch
		}

		ps := ic.Persistent()
		key := snapshotKey(epoch)

		if ps.Get(key) != nil {
			return fmt.Errorf("%w: %d", common.ErrDuplicateEpoch, epoch)
		}

		res = Metadata{
			Epoch:      epoch,
			Hash:       hash,
			RecordedAt: ic.Timestamp(),
		}

		if err := common.SetSerialized(ps, key, &res); err != nil {
			return err
		}

		latest, ok := getLatestEpoch(inst)
		if !ok || epoch > latest {
			inst.Put([]byte(latestEpochKey), epochBytes(epoch))
		}

		ic.Notify(notificationSubmitted,
			stackitem.NewBigInteger(new(big.Int).SetUint64(epoch)),
			stackitem.NewByteArray(hash.BytesBE()),
			stackitem.NewBigInteger(new(big.Int).SetUint64(res.RecordedAt)))

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("submit snapshot: %w", err)
	}

	c.cache.Add(epoch, res)

	c.log.Info("snapshot submitted",
		zap.Uint64("epoch", epoch),
		zap.Stringer("hash", hash),
		zap.Uint64("recorded at", res.RecordedAt),
		zap.String("caller", address.Uint160ToString(rcpt.Sender)))

	return res.RecordedAt, nil
}

func (c *Contract) authorize(ic *ledger.Context, admin util.Uint160, method string) error {
	caller := ic.Auth().Caller()
	if caller.Equals(admin) {
		return nil
	}

	bound, ok := getAccessControl(ic.Instance())
	if ok && c.acl != nil && c.acl.ID() == bound {
		ok, err := c.acl.Permitted(ic, caller, method)
		if err != nil {
			return fmt.Errorf("check permission: %w", err)
		}

		if ok {
			return nil
		}
	}

	return fmt.Errorf("%w: %s is not allowed to call '%s'",
		common.ErrUnauthorized, address.Uint160ToString(caller), method)
}

// BindAccessControl makes permissions of the access control contract given
// to WithAccessControl count for snapshot submissions. Admin only. The access
// control contract must be initialized with the same admin. Binding the bound
// contract is a no-op.
func (c *Contract) BindAccessControl(caller ledger.Signer) error {
	if c.acl == nil {
		return fmt.Errorf("%s: %w", MethodBindAccessControl, ErrNoAccessControl)
	}

	var (
		id      = c.acl.ID()
		changed bool
	)

	_, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   MethodBindAccessControl,
		Args:     []stackitem.Item{stackitem.NewBigInteger(big.NewInt(int64(id)))},
	}, caller, func(ic *ledger.Context) error {
		if err := common.CheckAdmin(ic); err != nil {
			return err
		}

		admin, _, err := common.GetAdmin(ic.Instance())
		if err != nil {
			return err
		}

		aclAdmin, ok, err := c.acl.Admin(ic)
		if err != nil {
			return fmt.Errorf("access control admin: %w", err)
		}

		if !ok {
			return fmt.Errorf("access control contract: %w", common.ErrNotInitialized)
		}

		if !aclAdmin.Equals(admin) {
			return fmt.Errorf("%w: access control contract is managed by %s",
				common.ErrUnauthorized, address.Uint160ToString(aclAdmin))
		}

		inst := ic.Instance()
		if current, ok := getAccessControl(inst); ok && current == id {
			return nil
		}

		inst.Put([]byte(accessControlKey), contractIDBytes(id))
		ic.Notify(notificationBound, stackitem.NewBigInteger(big.NewInt(int64(id))))
		changed = true

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", MethodBindAccessControl, err)
	}

	if changed {
		c.log.Info("access control bound", zap.Int32("contract", id))
	}

	return nil
}

// UnbindAccessControl leaves snapshot submissions to the admin only. Admin
// only. Unbinding the unbound contract is a no-op.
func (c *Contract) UnbindAccessControl(caller ledger.Signer) error {
	var (
		id      int32
		changed bool
	)

	_, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   MethodUnbindAccessControl,
	}, caller, func(ic *ledger.Context) error {
		if err := common.CheckAdmin(ic); err != nil {
			return err
		}

		inst := ic.Instance()

		id, changed = getAccessControl(inst)
		if changed {
			inst.Delete([]byte(accessControlKey))
			ic.Notify(notificationUnbound, stackitem.NewBigInteger(big.NewInt(int64(id))))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", MethodUnbindAccessControl, err)
	}

	if changed {
		c.log.Info("access control unbound", zap.Int32("contract", id))
	}

	return nil
}

// AccessControl returns ledger ID of the bound access control contract. The
// second value is false if submissions are left to the admin only.
func (c *Contract) AccessControl() (int32, bool, error) {
	var (
		id int32
		ok bool
	)

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		id, ok = getAccessControl(ic.Instance())
		return nil
	})

	return id, ok, err
}

// Pause stops all snapshot submissions. Admin only. Pausing the paused
// contract is a no-op.
func (c *Contract) Pause(caller ledger.Signer) error {
	return c.setPaused(caller, true)
}

// Unpause resumes snapshot submissions. Admin only. Unpausing the active
// contract is a no-op.
func (c *Contract) Unpause(caller ledger.Signer) error {
	return c.setPaused(caller, false)
}

func (c *Contract) setPaused(caller ledger.Signer, paused bool) error {
	var (
		changed      bool
		method       = MethodUnpause
		notification = notificationUnpaused
	)

	if paused {
		method = MethodPause
		notification = notificationPaused
	}

	_, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   method,
	}, caller, func(ic *ledger.Context) error {
		if err := common.CheckAdmin(ic); err != nil {
			return err
		}

		changed = common.SetPaused(ic.Instance(), paused)
		if changed {
			ic.Notify(notification, stackitem.NewByteArray(ic.Auth().Caller().BytesBE()))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if changed {
		c.log.Info("pause state changed", zap.Bool("paused", paused))
	}

	return nil
}

// IsPaused checks whether submissions are stopped.
func (c *Contract) IsPaused() (bool, error) {
	var res bool

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		res = common.IsPaused(ic.Instance())
		return nil
	})

	return res, err
}

// GetAdmin returns the admin. The second value is false if the contract is
// not initialized.
func (c *Contract) GetAdmin() (util.Uint160, bool, error) {
	var (
		admin util.Uint160
		ok    bool
	)

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		var err error
		admin, ok, err = common.GetAdmin(ic.Instance())
		return err
	})

	return admin, ok, err
}

// Version returns version the contract was initialized with.
func (c *Contract) Version() (int, error) {
	var v int

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		v = common.GetVersion(ic.Instance())
		return nil
	})

	return v, err
}

// GetSnapshot returns the snapshot of the epoch or nil if the epoch is not
// recorded.
func (c *Contract) GetSnapshot(epoch uint64) (*Metadata, error) {
	if v, ok := c.cache.Get(epoch); ok {
		m := v.(Metadata)
		return &m, nil
	}

	var (
		res *Metadata
		err error
	)

	err = c.ledger.Read(c.id, func(ic *ledger.Context) error {
		res, err = getSnapshot(ic.Persistent(), epoch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	if res != nil {
		c.cache.Add(epoch, *res)
	}

	return res, nil
}

// GetLatestEpoch returns the greatest recorded epoch. The second value is
// false if nothing is recorded.
func (c *Contract) GetLatestEpoch() (uint64, bool, error) {
	var (
		epoch uint64
		ok    bool
	)

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		epoch, ok = getLatestEpoch(ic.Instance())
		return nil
	})

	return epoch, ok, err
}

// GetLatestSnapshot returns the snapshot of the greatest recorded epoch or nil
// if nothing is recorded.
func (c *Contract) GetLatestSnapshot() (*Metadata, error) {
	var res *Metadata

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		epoch, ok := getLatestEpoch(ic.Instance())
		if !ok {
			return nil
		}

		var err error

		res, err = getSnapshot(ic.Persistent(), epoch)
		if err == nil && res == nil {
			err = fmt.Errorf("missing record of the latest epoch %d", epoch)
		}

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}

	return res, nil
}

// IterateSnapshots passes all recorded snapshots to f in ascending epoch
// order until f returns false. f must not call the ledger.
func (c *Contract) IterateSnapshots(f func(Metadata) bool) error {
	return c.ledger.Read(c.id, func(ic *ledger.Context) error {
		var err error

		ic.Persistent().Find([]byte{snapshotPrefix}, func(k, v []byte) bool {
			var m *Metadata

			m, err = decodeSnapshot(v)
			if err != nil {
				err = fmt.Errorf("decode snapshot by key %x: %w", k, err)
				return false
			}

			return f(*m)
		})

		return err
	})
}

// GetSnapshotHistory returns all recorded snapshots indexed by epoch.
func (c *Contract) GetSnapshotHistory() (map[uint64]Metadata, error) {
	res := make(map[uint64]Metadata)

	err := c.IterateSnapshots(func(m Metadata) bool {
		res[m.Epoch] = m
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot history: %w", err)
	}

	return res, nil
}

// GetAllEpochs returns all recorded epochs in ascending order.
func (c *Contract) GetAllEpochs() ([]uint64, error) {
	var res []uint64

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		ic.Persistent().Find([]byte{snapshotPrefix}, func(k, _ []byte) bool {
			if len(k) == 1+epochLen {
				res = append(res, binary.BigEndian.Uint64(k[1:]))
			}
			return true
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get epochs: %w", err)
	}

	return res, nil
}

func getSnapshot(ps ledger.Storage, epoch uint64) (*Metadata, error) {
	var m Metadata

	ok, err := common.GetSerialized(ps, snapshotKey(epoch), &m)
	if err != nil || !ok {
		return nil, err
	}

	return &m, nil
}

func decodeSnapshot(data []byte) (*Metadata, error) {
	item, err := stackitem.Deserialize(data)
	if err != nil {
		return nil, err
	}

	var m Metadata

	return &m, m.FromStackItem(item)
}

func getLatestEpoch(inst ledger.Storage) (uint64, bool) {
	data := inst.Get([]byte(latestEpochKey))
	if len(data) != epochLen {
		return 0, false
	}

	return binary.BigEndian.Uint64(data), true
}

func getAccessControl(inst ledger.Storage) (int32, bool) {
	data := inst.Get([]byte(accessControlKey))
	if len(data) != contractIDLen {
		return 0, false
	}

	return int32(binary.LittleEndian.Uint32(data)), true
}

func contractIDBytes(id int32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, contractIDLen), uint32(id))
}

// snapshotKey keeps records sorted by epoch in the storage.
func snapshotKey(epoch uint64) []byte {
	return append([]byte{snapshotPrefix}, epochBytes(epoch)...)
}

func epochBytes(epoch uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, epochLen), epoch)
}
