package acl

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/snapshot-contract/common"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl/role"
	"github.com/nspcc-dev/snapshot-contract/ledger"
	"go.uber.org/zap"
)

// Name of the contract in the ledger.
const Name = "acl"

// Contract method names.
const (
	MethodInitialize        = "initialize"
	MethodGrantRole         = "grantRole"
	MethodRevokeRole        = "revokeRole"
	MethodGrantPermission   = "grantPermission"
	MethodRevokePermission  = "revokePermission"
	MaxMethodLength         = 64
	rolePrefix              = 'r'
	permissionPrefix        = 'p'
	roleKeyLen              = 1 + util.Uint160Size + 1
	permissionKeyPrefixLen  = 2
	notificationGranted     = "RoleGranted"
	notificationRevoked     = "RoleRevoked"
	notificationPermGranted = "PermissionGranted"
	notificationPermRevoked = "PermissionRevoked"
)

var (
	// ErrUnknownRole is returned for roles out of the role.Type enum.
	ErrUnknownRole = errors.New("unknown role")

	// ErrInvalidMethod is returned for empty or too long method names.
	ErrInvalidMethod = errors.New("invalid method name")
)

// Contract is the access control contract. Contract must be created using New.
type Contract struct {
	ledger *ledger.Ledger
	id     int32
	log    *zap.Logger
}

// Option allows to set optional Contract parameters.
type Option func(*Contract)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(c *Contract) {
		c.log = log
	}
}

// New registers the contract in the ledger (if needed) and returns it.
func New(l *ledger.Ledger, opts ...Option) (*Contract, error) {
	id, err := l.Deploy(Name)
	if err != nil {
		return nil, fmt.Errorf("deploy %s contract: %w", Name, err)
	}

	c := &Contract{
		ledger: l,
		id:     id,
		log:    zap.NewNop(),
	}

	for _, o := range opts {
		o(c)
	}

	return c, nil
}

// ID returns ledger ID of the contract.
func (c *Contract) ID() int32 {
	return c.id
}

// Initialize sets the root admin. The contract can be initialized once by
// any account.
func (c *Contract) Initialize(caller ledger.Signer, admin util.Uint160) error {
	_, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   MethodInitialize,
		Args:     []stackitem.Item{stackitem.NewByteArray(admin.BytesBE())},
	}, caller, func(ic *ledger.Context) error {
		if err := common.SetAdmin(ic, admin); err != nil {
			return err
		}

		common.SetVersion(ic.Instance())

		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	c.log.Info("access control initialized", zap.String("admin", address.Uint160ToString(admin)))

	return nil
}

// GetAdmin returns the root admin. The second value is false if the contract
// is not initialized.
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

// Admin returns the root admin within the invocation of another contract.
func (c *Contract) Admin(ic *ledger.Context) (util.Uint160, bool, error) {
	return common.GetAdmin(ic.Nested(c.id).Instance())
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

// GrantRole gives the role to the user. Admin only. Granting a held role is a
// no-op.
func (c *Contract) GrantRole(caller ledger.Signer, user util.Uint160, r role.Type) error {
	changed, err := c.setRole(caller, MethodGrantRole, user, r, true)
	if err != nil {
		return fmt.Errorf("grant %s role: %w", r, err)
	}

	if changed {
		c.log.Info("role granted",
			zap.String("account", address.Uint160ToString(user)),
			zap.Stringer("role", r))
	}

	return nil
}

// RevokeRole takes the role away from the user. Admin only. Revoking a role
// which is not held is a no-op.
func (c *Contract) RevokeRole(caller ledger.Signer, user util.Uint160, r role.Type) error {
	changed, err := c.setRole(caller, MethodRevokeRole, user, r, false)
	if err != nil {
		return fmt.Errorf("revoke %s role: %w", r, err)
	}

	if changed {
		c.log.Info("role revoked",
			zap.String("account", address.Uint160ToString(user)),
			zap.Stringer("role", r))
	}

	return nil
}

func (c *Contract) setRole(caller ledger.Signer, method string, user util.Uint160, r role.Type, grant bool) (bool, error) {
	var changed bool

	_, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   method,
		Args:     []stackitem.Item{stackitem.NewByteArray(user.BytesBE()), roleItem(r)},
	}, caller, func(ic *ledger.Context) error {
		if err := common.CheckAdmin(ic); err != nil {
			return err
		}

		if err := checkRole(r); err != nil {
			return err
		}

		ps := ic.Persistent()
		key := roleKey(user, r)

		if (ps.Get(key) != nil) == grant {
			return nil
		}

		notification := notificationGranted
		if grant {
			ps.Put(key, []byte{1})
		} else {
			ps.Delete(key)
			notification = notificationRevoked
		}

		ic.Notify(notification, stackitem.NewByteArray(user.BytesBE()), roleItem(r))
		changed = true

		return nil
	})

	return changed, err
}

// HasRole checks whether the user holds the role. Roles are stored
// explicitly only, so the root admin does not hold Admin role unless granted.
func (c *Contract) HasRole(user util.Uint160, r role.Type) (bool, error) {
	var res bool

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		res = ic.Persistent().Get(roleKey(user, r)) != nil
		return nil
	})

	return res, err
}

// Roles returns all roles held by the user in ascending order.
func (c *Contract) Roles(user util.Uint160) ([]role.Type, error) {
	var res []role.Type

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		res = rolesOf(ic.Persistent(), user)
		return nil
	})

	return res, err
}

// GrantPermission allows holders of the role to call the method. Admin only.
// Granting an existing permission is a no-op.
func (c *Contract) GrantPermission(caller ledger.Signer, r role.Type, method string) error {
	changed, err := c.setPermission(caller, MethodGrantPermission, r, method, true)
	if err != nil {
		return fmt.Errorf("grant '%s' to %s role: %w", method, r, err)
	}

	if changed {
		c.log.Info("permission granted", zap.Stringer("role", r), zap.String("method", method))
	}

	return nil
}

// RevokePermission forbids holders of the role to call the method. Admin
// only. Revoking a missing permission is a no-op.
func (c *Contract) RevokePermission(caller ledger.Signer, r role.Type, method string) error {
	changed, err := c.setPermission(caller, MethodRevokePermission, r, method, false)
	if err != nil {
		return fmt.Errorf("revoke '%s' from %s role: %w", method, r, err)
	}

	if changed {
		c.log.Info("permission revoked", zap.Stringer("role", r), zap.String("method", method))
	}

	return nil
}

func (c *Contract) setPermission(caller ledger.Signer, method string, r role.Type, target string, grant bool) (bool, error) {
	var changed bool

	_, err := c.ledger.Invoke(ledger.Call{
		Contract: c.id,
		Method:   method,
		Args:     []stackitem.Item{roleItem(r), stackitem.NewByteArray([]byte(target))},
	}, caller, func(ic *ledger.Context) error {
		if err := common.CheckAdmin(ic); err != nil {
			return err
		}

		if err := checkRole(r); err != nil {
			return err
		}

		if err := checkMethod(target); err != nil {
			return err
		}

		ps := ic.Persistent()
		key := permissionKey(r, target)

		if (ps.Get(key) != nil) == grant {
			return nil
		}

		notification := notificationPermGranted
		if grant {
			ps.Put(key, []byte{1})
		} else {
			ps.Delete(key)
			notification = notificationPermRevoked
		}

		ic.Notify(notification, roleItem(r), stackitem.NewByteArray([]byte(target)))
		changed = true

		return nil
	})

	return changed, err
}

// Permissions returns methods granted to the role in ascending order.
func (c *Contract) Permissions(r role.Type) ([]string, error) {
	var res []string

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		ic.Persistent().Find([]byte{permissionPrefix, byte(r)}, func(k, _ []byte) bool {
			res = append(res, string(k[permissionKeyPrefixLen:]))
			return true
		})
		return nil
	})

	return res, err
}

// CheckPermission checks whether the user may call the method: the user is
// the root admin, holds Admin role or holds any role granted the method.
func (c *Contract) CheckPermission(user util.Uint160, method string) (bool, error) {
	var res bool

	err := c.ledger.Read(c.id, func(ic *ledger.Context) error {
		var err error
		res, err = checkPermission(ic, user, method)
		return err
	})

	return res, err
}

// Permitted is CheckPermission for the calls nested into an invocation of
// another contract. The check is a part of that invocation.
func (c *Contract) Permitted(ic *ledger.Context, user util.Uint160, method string) (bool, error) {
	return checkPermission(ic.Nested(c.id), user, method)
}

func checkPermission(ic *ledger.Context, user util.Uint160, method string) (bool, error) {
	if err := checkMethod(method); err != nil {
		return false, err
	}

	admin, ok, err := common.GetAdmin(ic.Instance())
	if err != nil {
		return false, err
	}

	if !ok {
		return false, fmt.Errorf("%s contract: %w", Name, common.ErrNotInitialized)
	}

	if admin.Equals(user) {
		return true, nil
	}

	ps := ic.Persistent()

	for _, r := range rolesOf(ps, user) {
		if r == role.Admin || ps.Get(permissionKey(r, method)) != nil {
			return true, nil
		}
	}

	return false, nil
}

func rolesOf(ps ledger.Storage, user util.Uint160) []role.Type {
	var res []role.Type

	prefix := append([]byte{rolePrefix}, user.BytesBE()...)

	ps.Find(prefix, func(k, _ []byte) bool {
		if len(k) == roleKeyLen {
			res = append(res, role.Type(k[roleKeyLen-1]))
		}
		return true
	})

	return res
}

func checkRole(r role.Type) error {
	if !r.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownRole, byte(r))
	}

	return nil
}

func checkMethod(method string) error {
	if method == "" || len(method) > MaxMethodLength {
		return fmt.Errorf("%w: length %d", ErrInvalidMethod, len(method))
	}

	return nil
}

func roleKey(user util.Uint160, r role.Type) []byte {
	key := make([]byte, 0, roleKeyLen)
	key = append(key, rolePrefix)
	key = append(key, user.BytesBE()...)
	return append(key, byte(r))
}

func permissionKey(r role.Type, method string) []byte {
	return append([]byte{permissionPrefix, byte(r)}, method...)
}

func roleItem(r role.Type) stackitem.Item {
	return stackitem.NewBigInteger(big.NewInt(int64(r)))
}
