package acl_test

import (
	"strings"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/snapshot-contract/common"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl/role"
	"github.com/nspcc-dev/snapshot-contract/ledger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const method = "submitSnapshot"

type testEnv struct {
	l      *ledger.Ledger
	c      *acl.Contract
	admin  ledger.Signer
	events *[]ledger.Event
}

func newSigner(t *testing.T) ledger.Signer {
	k, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return ledger.NewSigner(k)
}

func account(s ledger.Signer) util.Uint160 {
	return s.PublicKey().GetScriptHash()
}

func newContract(t *testing.T) testEnv {
	var events []ledger.Event

	l := ledger.New(storage.NewMemoryStore(), ledger.WithListener(func(r *ledger.Receipt) {
		events = append(events, r.Events...)
	}))

	c, err := acl.New(l, acl.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	return testEnv{l: l, c: c, admin: newSigner(t), events: &events}
}

func newInitialized(t *testing.T) testEnv {
	e := newContract(t)
	require.NoError(t, e.c.Initialize(e.admin, account(e.admin)))
	return e
}

func (e testEnv) lastEvent(t *testing.T) ledger.Event {
	require.NotEmpty(t, *e.events)
	return (*e.events)[len(*e.events)-1]
}

func TestInitialize(t *testing.T) {
	e := newContract(t)

	_, ok, err := e.c.GetAdmin()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = e.c.CheckPermission(account(e.admin), method)
	require.ErrorIs(t, err, common.ErrNotInitialized)

	err = e.c.GrantRole(e.admin, account(e.admin), role.Operator)
	require.ErrorIs(t, err, common.ErrNotInitialized)

	require.ErrorIs(t, e.c.Initialize(e.admin, util.Uint160{}), common.ErrInvalidAdmin)

	// any account may initialize the contract
	deployer := newSigner(t)
	require.NoError(t, e.c.Initialize(deployer, account(e.admin)))

	admin, ok, err := e.c.GetAdmin()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, account(e.admin), admin)

	v, err := e.c.Version()
	require.NoError(t, err)
	require.Equal(t, common.Version, v)

	err = e.c.Initialize(e.admin, account(deployer))
	require.ErrorIs(t, err, common.ErrAlreadyInitialized)

	admin, _, err = e.c.GetAdmin()
	require.NoError(t, err)
	require.Equal(t, account(e.admin), admin)
}

func TestContract_GrantRole(t *testing.T) {
	e := newInitialized(t)
	user := account(newSigner(t))

	t.Run("non-admin", func(t *testing.T) {
		err := e.c.GrantRole(newSigner(t), user, role.Operator)
		require.ErrorIs(t, err, common.ErrUnauthorized)

		ok, err := e.c.HasRole(user, role.Operator)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unknown role", func(t *testing.T) {
		err := e.c.GrantRole(e.admin, user, role.Type(42))
		require.ErrorIs(t, err, acl.ErrUnknownRole)
	})

	require.NoError(t, e.c.GrantRole(e.admin, user, role.Operator))

	ev := e.lastEvent(t)
	require.Equal(t, "RoleGranted", ev.Name)
	require.Equal(t, e.c.ID(), ev.Contract)
	require.Len(t, ev.Args, 2)

	ok, err := e.c.HasRole(user, role.Operator)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.c.HasRole(user, role.Viewer)
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("idempotent", func(t *testing.T) {
		n := len(*e.events)
		require.NoError(t, e.c.GrantRole(e.admin, user, role.Operator))
		require.Len(t, *e.events, n)
	})

	require.NoError(t, e.c.GrantRole(e.admin, user, role.Viewer))

	roles, err := e.c.Roles(user)
	require.NoError(t, err)
	require.Equal(t, []role.Type{role.Operator, role.Viewer}, roles)

	t.Run("revoke", func(t *testing.T) {
		err := e.c.RevokeRole(newSigner(t), user, role.Operator)
		require.ErrorIs(t, err, common.ErrUnauthorized)

		require.NoError(t, e.c.RevokeRole(e.admin, user, role.Operator))
		require.Equal(t, "RoleRevoked", e.lastEvent(t).Name)

		ok, err := e.c.HasRole(user, role.Operator)
		require.NoError(t, err)
		require.False(t, ok)

		n := len(*e.events)
		require.NoError(t, e.c.RevokeRole(e.admin, user, role.Operator))
		require.Len(t, *e.events, n)

		roles, err := e.c.Roles(user)
		require.NoError(t, err)
		require.Equal(t, []role.Type{role.Viewer}, roles)
	})
}

func TestContract_GrantPermission(t *testing.T) {
	e := newInitialized(t)

	err := e.c.GrantPermission(newSigner(t), role.Operator, method)
	require.ErrorIs(t, err, common.ErrUnauthorized)

	for _, m := range []string{"", strings.Repeat("a", acl.MaxMethodLength+1)} {
		err = e.c.GrantPermission(e.admin, role.Operator, m)
		require.ErrorIs(t, err, acl.ErrInvalidMethod)
	}

	require.ErrorIs(t, e.c.GrantPermission(e.admin, role.Type(0), method), acl.ErrUnknownRole)

	require.NoError(t, e.c.GrantPermission(e.admin, role.Operator, method))
	require.Equal(t, "PermissionGranted", e.lastEvent(t).Name)

	n := len(*e.events)
	require.NoError(t, e.c.GrantPermission(e.admin, role.Operator, method))
	require.Len(t, *e.events, n)

	require.NoError(t, e.c.GrantPermission(e.admin, role.Operator, "pause"))

	methods, err := e.c.Permissions(role.Operator)
	require.NoError(t, err)
	require.Equal(t, []string{"pause", method}, methods)

	methods, err = e.c.Permissions(role.Viewer)
	require.NoError(t, err)
	require.Empty(t, methods)

	require.NoError(t, e.c.RevokePermission(e.admin, role.Operator, "pause"))
	require.Equal(t, "PermissionRevoked", e.lastEvent(t).Name)

	methods, err = e.c.Permissions(role.Operator)
	require.NoError(t, err)
	require.Equal(t, []string{method}, methods)
}

func TestContract_CheckPermission(t *testing.T) {
	e := newInitialized(t)

	var (
		operator = account(newSigner(t))
		viewer   = account(newSigner(t))
		admin    = account(newSigner(t))
		stranger = account(newSigner(t))
	)

	require.NoError(t, e.c.GrantRole(e.admin, operator, role.Operator))
	require.NoError(t, e.c.GrantRole(e.admin, viewer, role.Viewer))
	require.NoError(t, e.c.GrantRole(e.admin, admin, role.Admin))
	require.NoError(t, e.c.GrantPermission(e.admin, role.Operator, method))

	for _, tc := range []struct {
		name string
		user util.Uint160
		res  bool
	}{
		{"root admin", account(e.admin), true},
		{"admin role", admin, true},
		{"granted role", operator, true},
		{"other role", viewer, false},
		{"no role", stranger, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := e.c.CheckPermission(tc.user, method)
			require.NoError(t, err)
			require.Equal(t, tc.res, ok)
		})
	}

	ok, err := e.c.CheckPermission(operator, "pause")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = e.c.CheckPermission(operator, "")
	require.ErrorIs(t, err, acl.ErrInvalidMethod)

	// root admin does not hold the role explicitly
	ok, err = e.c.HasRole(account(e.admin), role.Admin)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, e.c.RevokePermission(e.admin, role.Operator, method))

	ok, err = e.c.CheckPermission(operator, method)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContract_Permitted(t *testing.T) {
	e := newInitialized(t)
	operator := newSigner(t)

	require.NoError(t, e.c.GrantRole(e.admin, account(operator), role.Operator))
	require.NoError(t, e.c.GrantPermission(e.admin, role.Operator, method))

	id, err := e.l.Deploy("caller")
	require.NoError(t, err)

	call := func(s ledger.Signer) error {
		_, err := e.l.Invoke(ledger.Call{Contract: id, Method: method}, s, func(ic *ledger.Context) error {
			ok, err := e.c.Permitted(ic, ic.Auth().Caller(), method)
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrUnauthorized
			}

			ic.Persistent().Put([]byte("done"), []byte{1})
			return nil
		})
		return err
	}

	require.ErrorIs(t, call(newSigner(t)), common.ErrUnauthorized)
	require.NoError(t, call(operator))

	var done []byte
	require.NoError(t, e.l.Read(id, func(ic *ledger.Context) error {
		done = ic.Persistent().Get([]byte("done"))
		return nil
	}))
	require.Equal(t, []byte{1}, done)
}
