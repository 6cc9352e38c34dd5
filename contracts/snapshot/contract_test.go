package snapshot_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/snapshot-contract/common"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl/role"
	"github.com/nspcc-dev/snapshot-contract/contracts/snapshot"
	"github.com/nspcc-dev/snapshot-contract/ledger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	l      *ledger.Ledger
	clk    *clock.Mock
	c      *snapshot.Contract
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

func hashOf(b byte) util.Uint256 {
	h, err := util.Uint256DecodeBytesBE(bytes.Repeat([]byte{b}, util.Uint256Size))
	if err != nil {
		panic(err)
	}
	return h
}

func newLedger(t *testing.T) (*ledger.Ledger, *clock.Mock, *[]ledger.Event) {
	var events []ledger.Event

	clk := clock.NewMock()
	clk.Set(time.UnixMilli(1_000_000))

	l := ledger.New(storage.NewMemoryStore(),
		ledger.WithClock(clk),
		ledger.WithLogger(zaptest.NewLogger(t)),
		ledger.WithListener(func(r *ledger.Receipt) {
			events = append(events, r.Events...)
		}))

	return l, clk, &events
}

func newContract(t *testing.T, opts ...snapshot.Option) testEnv {
	l, clk, events := newLedger(t)

	c, err := snapshot.New(l, append([]snapshot.Option{snapshot.WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)

	return testEnv{l: l, clk: clk, c: c, admin: newSigner(t), events: events}
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

func (e testEnv) requireEmpty(t *testing.T) {
	epochs, err := e.c.GetAllEpochs()
	require.NoError(t, err)
	require.Empty(t, epochs)

	_, ok, err := e.c.GetLatestEpoch()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInitialize(t *testing.T) {
	e := newContract(t)

	_, err := e.c.SubmitSnapshot(e.admin, 1, hashOf(1))
	require.ErrorIs(t, err, common.ErrNotInitialized)

	require.ErrorIs(t, e.c.Pause(e.admin), common.ErrNotInitialized)

	_, ok, err := e.c.GetAdmin()
	require.NoError(t, err)
	require.False(t, ok)

	paused, err := e.c.IsPaused()
	require.NoError(t, err)
	require.False(t, paused)

	require.ErrorIs(t, e.c.Initialize(e.admin, util.Uint160{}), common.ErrInvalidAdmin)

	require.NoError(t, e.c.Initialize(newSigner(t), account(e.admin)))
	require.Equal(t, "Initialized", e.lastEvent(t).Name)

	admin, ok, err := e.c.GetAdmin()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, account(e.admin), admin)

	v, err := e.c.Version()
	require.NoError(t, err)
	require.Equal(t, common.Version, v)

	err = e.c.Initialize(newSigner(t), account(newSigner(t)))
	require.ErrorIs(t, err, common.ErrAlreadyInitialized)

	admin, _, err = e.c.GetAdmin()
	require.NoError(t, err)
	require.Equal(t, account(e.admin), admin)
}

func TestSubmitSnapshot(t *testing.T) {
	e := newInitialized(t)

	e.clk.Add(time.Second)

	recordedAt, err := e.c.SubmitSnapshot(e.admin, 7, hashOf(7))
	require.NoError(t, err)
	require.EqualValues(t, 1_001_000, recordedAt)

	ev := e.lastEvent(t)
	require.Equal(t, "SnapshotSubmitted", ev.Name)
	require.Equal(t, e.c.ID(), ev.Contract)
	require.Len(t, ev.Args, 3)

	m, err := e.c.GetSnapshot(7)
	require.NoError(t, err)
	require.Equal(t, &snapshot.Metadata{Epoch: 7, Hash: hashOf(7), RecordedAt: recordedAt}, m)

	m, err = e.c.GetLatestSnapshot()
	require.NoError(t, err)
	require.Equal(t, &snapshot.Metadata{Epoch: 7, Hash: hashOf(7), RecordedAt: recordedAt}, m)

	m, err = e.c.GetSnapshot(8)
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestSubmitSnapshot_Uniqueness(t *testing.T) {
	e := newInitialized(t)

	first, err := e.c.SubmitSnapshot(e.admin, 5, hashOf(1))
	require.NoError(t, err)

	n := len(*e.events)
	e.clk.Add(time.Minute)

	_, err = e.c.SubmitSnapshot(e.admin, 5, hashOf(2))
	require.ErrorIs(t, err, common.ErrDuplicateEpoch)
	require.Len(t, *e.events, n)

	m, err := e.c.GetSnapshot(5)
	require.NoError(t, err)
	require.Equal(t, hashOf(1), m.Hash)
	require.Equal(t, first, m.RecordedAt)

	history, err := e.c.GetSnapshotHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, hashOf(1), history[5].Hash)
}

func TestSubmitSnapshot_ZeroEpoch(t *testing.T) {
	e := newInitialized(t)

	_, err := e.c.SubmitSnapshot(e.admin, 0, hashOf(1))
	require.ErrorIs(t, err, common.ErrInvalidEpoch)

	e.requireEmpty(t)

	m, err := e.c.GetSnapshot(0)
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestSubmitSnapshot_LatestMonotonicity(t *testing.T) {
	for _, tc := range []struct {
		name   string
		epochs []uint64
		latest uint64
	}{
		{"ascending", []uint64{1, 2, 3}, 3},
		{"descending", []uint64{5, 3}, 5},
		{"growing", []uint64{5, 9}, 9},
		{"mixed", []uint64{4, 10, 2, 7, 1 << 40, 3}, 1 << 40},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newInitialized(t)

			var highest uint64
			for _, epoch := range tc.epochs {
				_, err := e.c.SubmitSnapshot(e.admin, epoch, hashOf(byte(epoch)))
				require.NoError(t, err)

				if epoch > highest {
					highest = epoch
				}

				latest, ok, err := e.c.GetLatestEpoch()
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, highest, latest)
			}

			latest, _, err := e.c.GetLatestEpoch()
			require.NoError(t, err)
			require.Equal(t, tc.latest, latest)

			m, err := e.c.GetLatestSnapshot()
			require.NoError(t, err)
			require.Equal(t, tc.latest, m.Epoch)
		})
	}
}

func TestSubmitSnapshot_HistoryCompleteness(t *testing.T) {
	e := newInitialized(t)

	epochs := []uint64{300, 1, 256, 42, 2}
	for _, epoch := range epochs {
		_, err := e.c.SubmitSnapshot(e.admin, epoch, hashOf(byte(epoch)))
		require.NoError(t, err)
	}

	history, err := e.c.GetSnapshotHistory()
	require.NoError(t, err)
	require.Len(t, history, len(epochs))

	for _, epoch := range epochs {
		require.Equal(t, epoch, history[epoch].Epoch)
		require.Equal(t, hashOf(byte(epoch)), history[epoch].Hash)
	}

	all, err := e.c.GetAllEpochs()
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 42, 256, 300}, all)

	var visited []uint64
	require.NoError(t, e.c.IterateSnapshots(func(m snapshot.Metadata) bool {
		visited = append(visited, m.Epoch)
		return len(visited) < 3
	}))
	require.Equal(t, []uint64{1, 2, 42}, visited)
}

func TestSubmitSnapshot_Authorization(t *testing.T) {
	e := newInitialized(t)

	_, err := e.c.SubmitSnapshot(newSigner(t), 1, hashOf(1))
	require.ErrorIs(t, err, common.ErrUnauthorized)
	e.requireEmpty(t)

	t.Run("nil signer", func(t *testing.T) {
		_, err := e.c.SubmitSnapshot(nil, 1, hashOf(1))
		require.ErrorIs(t, err, common.ErrUnauthorized)
		e.requireEmpty(t)
	})

	t.Run("not cached", func(t *testing.T) {
		m, err := e.c.GetSnapshot(1)
		require.NoError(t, err)
		require.Nil(t, m)
	})
}

func TestPause(t *testing.T) {
	e := newInitialized(t)

	_, err := e.c.SubmitSnapshot(e.admin, 1, hashOf(1))
	require.NoError(t, err)

	t.Run("non-admin", func(t *testing.T) {
		stranger := newSigner(t)

		require.ErrorIs(t, e.c.Pause(stranger), common.ErrUnauthorized)

		paused, err := e.c.IsPaused()
		require.NoError(t, err)
		require.False(t, paused)

		require.NoError(t, e.c.Pause(e.admin))
		require.ErrorIs(t, e.c.Unpause(stranger), common.ErrUnauthorized)

		paused, err = e.c.IsPaused()
		require.NoError(t, err)
		require.True(t, paused)

		require.NoError(t, e.c.Unpause(e.admin))
	})

	require.NoError(t, e.c.Pause(e.admin))
	require.Equal(t, "Paused", e.lastEvent(t).Name)

	t.Run("idempotent", func(t *testing.T) {
		n := len(*e.events)
		require.NoError(t, e.c.Pause(e.admin))
		require.Len(t, *e.events, n)
	})

	// paused state is checked before authorization and arguments
	for _, epoch := range []uint64{0, 1, 2} {
		_, err = e.c.SubmitSnapshot(e.admin, epoch, hashOf(2))
		require.ErrorIs(t, err, common.ErrContractPaused)
	}

	_, err = e.c.SubmitSnapshot(newSigner(t), 2, hashOf(2))
	require.ErrorIs(t, err, common.ErrContractPaused)

	m, err := e.c.GetSnapshot(1)
	require.NoError(t, err)
	require.Equal(t, hashOf(1), m.Hash)

	m, err = e.c.GetLatestSnapshot()
	require.NoError(t, err)
	require.EqualValues(t, 1, m.Epoch)

	history, err := e.c.GetSnapshotHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, e.c.Unpause(e.admin))
	require.Equal(t, "Unpaused", e.lastEvent(t).Name)

	n := len(*e.events)
	require.NoError(t, e.c.Unpause(e.admin))
	require.Len(t, *e.events, n)

	_, err = e.c.SubmitSnapshot(e.admin, 2, hashOf(2))
	require.NoError(t, err)
}

func TestScenario(t *testing.T) {
	e := newInitialized(t)

	_, err := e.c.SubmitSnapshot(e.admin, 1, hashOf(0xAA))
	require.NoError(t, err)

	_, err = e.c.SubmitSnapshot(e.admin, 3, hashOf(0xCC))
	require.NoError(t, err)

	latest, ok, err := e.c.GetLatestEpoch()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 3, latest)

	require.NoError(t, e.c.Pause(e.admin))

	_, err = e.c.SubmitSnapshot(e.admin, 2, hashOf(0xBB))
	require.ErrorIs(t, err, common.ErrContractPaused)

	require.NoError(t, e.c.Unpause(e.admin))

	_, err = e.c.SubmitSnapshot(e.admin, 2, hashOf(0xBB))
	require.NoError(t, err)

	history, err := e.c.GetSnapshotHistory()
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, hashOf(0xAA), history[1].Hash)
	require.Equal(t, hashOf(0xBB), history[2].Hash)
	require.Equal(t, hashOf(0xCC), history[3].Hash)

	latest, _, err = e.c.GetLatestEpoch()
	require.NoError(t, err)
	require.EqualValues(t, 3, latest)
}

func TestAccessControl(t *testing.T) {
	l, _, events := newLedger(t)

	a, err := acl.New(l)
	require.NoError(t, err)

	c, err := snapshot.New(l, snapshot.WithAccessControl(a), snapshot.WithCacheSize(2))
	require.NoError(t, err)

	var (
		admin    = newSigner(t)
		operator = newSigner(t)
		viewer   = newSigner(t)
		delegate = newSigner(t)
	)

	require.NoError(t, c.Initialize(admin, account(admin)))

	t.Run("acl not initialized", func(t *testing.T) {
		require.ErrorIs(t, c.BindAccessControl(admin), common.ErrNotInitialized)

		_, ok, err := c.AccessControl()
		require.NoError(t, err)
		require.False(t, ok)
	})

	require.NoError(t, a.Initialize(admin, account(admin)))
	require.NoError(t, a.GrantRole(admin, account(operator), role.Operator))
	require.NoError(t, a.GrantRole(admin, account(viewer), role.Viewer))
	require.NoError(t, a.GrantRole(admin, account(delegate), role.Admin))
	require.NoError(t, a.GrantPermission(admin, role.Operator, snapshot.MethodSubmitSnapshot))

	t.Run("not bound", func(t *testing.T) {
		_, err := c.SubmitSnapshot(operator, 1, hashOf(1))
		require.ErrorIs(t, err, common.ErrUnauthorized)
	})

	require.ErrorIs(t, c.BindAccessControl(operator), common.ErrUnauthorized)
	require.NoError(t, c.BindAccessControl(admin))

	ev := (*events)[len(*events)-1]
	require.Equal(t, "AccessControlBound", ev.Name)

	n := len(*events)
	require.NoError(t, c.BindAccessControl(admin))
	require.Len(t, *events, n)

	id, ok, err := c.AccessControl()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.ID(), id)

	_, err = c.SubmitSnapshot(operator, 1, hashOf(1))
	require.NoError(t, err)

	_, err = c.SubmitSnapshot(viewer, 2, hashOf(2))
	require.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = c.SubmitSnapshot(delegate, 2, hashOf(2))
	require.NoError(t, err)

	_, err = c.SubmitSnapshot(admin, 3, hashOf(3))
	require.NoError(t, err)

	// pause stays with the admin of the snapshot contract
	require.ErrorIs(t, c.Pause(operator), common.ErrUnauthorized)
	require.ErrorIs(t, c.Pause(delegate), common.ErrUnauthorized)
	require.ErrorIs(t, c.UnbindAccessControl(delegate), common.ErrUnauthorized)

	require.NoError(t, a.RevokeRole(admin, account(operator), role.Operator))

	_, err = c.SubmitSnapshot(operator, 4, hashOf(4))
	require.ErrorIs(t, err, common.ErrUnauthorized)

	require.NoError(t, c.UnbindAccessControl(admin))

	_, err = c.SubmitSnapshot(delegate, 4, hashOf(4))
	require.ErrorIs(t, err, common.ErrUnauthorized)

	epochs, err := c.GetAllEpochs()
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, epochs)

	// cache holds two records only
	for _, epoch := range epochs {
		m, err := c.GetSnapshot(epoch)
		require.NoError(t, err)
		require.Equal(t, hashOf(byte(epoch)), m.Hash)
	}
}

// allowAll permits everything to everyone.
type allowAll struct {
	id    int32
	admin util.Uint160
}

func (a allowAll) ID() int32 { return a.id }

func (a allowAll) Admin(*ledger.Context) (util.Uint160, bool, error) { return a.admin, true, nil }

func (allowAll) Permitted(*ledger.Context, util.Uint160, string) (bool, error) { return true, nil }

func TestAccessControl_Binding(t *testing.T) {
	t.Run("client-side access control", func(t *testing.T) {
		e := newInitialized(t)
		attacker := newSigner(t)

		a, err := acl.New(e.l)
		require.NoError(t, err)
		require.NoError(t, a.Initialize(attacker, account(attacker)))
		require.NoError(t, a.GrantRole(attacker, account(attacker), role.Operator))
		require.NoError(t, a.GrantPermission(attacker, role.Operator, snapshot.MethodSubmitSnapshot))

		rogue, err := snapshot.New(e.l, snapshot.WithAccessControl(a))
		require.NoError(t, err)

		_, err = rogue.SubmitSnapshot(attacker, 1, hashOf(0xEE))
		require.ErrorIs(t, err, common.ErrUnauthorized)

		require.ErrorIs(t, rogue.BindAccessControl(attacker), common.ErrUnauthorized)

		// the admin cannot bind the contract someone else manages either
		require.ErrorIs(t, rogue.BindAccessControl(e.admin), common.ErrUnauthorized)

		_, err = rogue.SubmitSnapshot(attacker, 1, hashOf(0xEE))
		require.ErrorIs(t, err, common.ErrUnauthorized)

		e.requireEmpty(t)
	})

	t.Run("binding mismatch", func(t *testing.T) {
		e := newInitialized(t)
		attacker := newSigner(t)

		bound, err := snapshot.New(e.l, snapshot.WithAccessControl(allowAll{id: 100, admin: account(e.admin)}))
		require.NoError(t, err)
		require.NoError(t, bound.BindAccessControl(e.admin))

		rogue, err := snapshot.New(e.l, snapshot.WithAccessControl(allowAll{id: 101, admin: account(attacker)}))
		require.NoError(t, err)

		_, err = rogue.SubmitSnapshot(attacker, 1, hashOf(0xEE))
		require.ErrorIs(t, err, common.ErrUnauthorized)

		_, err = e.c.SubmitSnapshot(attacker, 1, hashOf(0xEE))
		require.ErrorIs(t, err, common.ErrUnauthorized)

		e.requireEmpty(t)

		_, err = bound.SubmitSnapshot(attacker, 1, hashOf(0xEE))
		require.NoError(t, err)
	})

	t.Run("missing access control", func(t *testing.T) {
		e := newInitialized(t)
		require.ErrorIs(t, e.c.BindAccessControl(e.admin), snapshot.ErrNoAccessControl)
	})
}

func TestPersistence(t *testing.T) {
	st := storage.NewMemoryStore()
	admin := newSigner(t)

	c, err := snapshot.New(ledger.New(st))
	require.NoError(t, err)
	require.NoError(t, c.Initialize(admin, account(admin)))

	_, err = c.SubmitSnapshot(admin, 10, hashOf(10))
	require.NoError(t, err)
	require.NoError(t, c.Pause(admin))

	reopened, err := snapshot.New(ledger.New(st))
	require.NoError(t, err)
	require.Equal(t, c.ID(), reopened.ID())

	m, err := reopened.GetLatestSnapshot()
	require.NoError(t, err)
	require.EqualValues(t, 10, m.Epoch)

	paused, err := reopened.IsPaused()
	require.NoError(t, err)
	require.True(t, paused)

	require.ErrorIs(t, reopened.Initialize(admin, account(admin)), common.ErrAlreadyInitialized)
}
