package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl/role"
	"github.com/nspcc-dev/snapshot-contract/contracts/snapshot"
	"github.com/nspcc-dev/snapshot-contract/ledger"
	"go.uber.org/zap"
)

// Prm groups all parameters of the deployment procedure.
type Prm struct {
	// Writes progress into the log.
	Logger *zap.Logger

	// Ledger to deploy contracts to.
	Ledger *ledger.Ledger

	// Admin of all contracts. Signs initialization and grants.
	Admin ledger.Signer

	// Accounts allowed to submit snapshots. They receive Operator role.
	Operators []util.Uint160

	// Bind snapshot submissions to the access control contract and grant
	// them to Operators. Only the admin may submit otherwise.
	RBAC bool

	// Size of the snapshot read cache. Zero means snapshot.DefaultCacheSize.
	CacheSize int
}

// Contracts groups deployed contracts.
type Contracts struct {
	ACL      *acl.Contract
	Snapshot *snapshot.Contract
}

// contract is a common initialization interface of the contracts.
type contract interface {
	GetAdmin() (util.Uint160, bool, error)
	Initialize(caller ledger.Signer, admin util.Uint160) error
}

// Deploy registers and initializes the access control and snapshot contracts
// in the ledger and grants snapshot submission to the configured operators.
//
// Deploy is idempotent: already initialized contracts are checked to have the
// same admin and are left as is, existing grants are not duplicated. Deploy
// aborts by context between the stages.
//
// Summary of stages:
//  1. access control contract registration and initialization
//  2. snapshot contract registration and initialization
//  3. binding of the access control contract (removal if RBAC is off)
//  4. permission of Operator role to submit snapshots (RBAC only)
//  5. Operator role distribution (RBAC only)
func Deploy(ctx context.Context, prm Prm) (*Contracts, error) {
	if prm.Ledger == nil {
		return nil, errors.New("missing ledger")
	}

	if prm.Admin == nil || prm.Admin.PublicKey() == nil {
		return nil, errors.New("missing admin key")
	}

	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	admin := prm.Admin.PublicKey().GetScriptHash()

	log.Info("deploying access control contract...")

	aclContract, err := acl.New(prm.Ledger, acl.WithLogger(log))
	if err != nil {
		return nil, err
	}

	err = initContract(log, acl.Name, aclContract, prm.Admin, admin)
	if err != nil {
		return nil, fmt.Errorf("init %s contract: %w", acl.Name, err)
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("deploying snapshot contract...", zap.Bool("rbac", prm.RBAC))

	opts := []snapshot.Option{
		snapshot.WithLogger(log),
		snapshot.WithAccessControl(aclContract),
	}
	if prm.CacheSize > 0 {
		opts = append(opts, snapshot.WithCacheSize(prm.CacheSize))
	}

	snapshotContract, err := snapshot.New(prm.Ledger, opts...)
	if err != nil {
		return nil, err
	}

	err = initContract(log, snapshot.Name, snapshotContract, prm.Admin, admin)
	if err != nil {
		return nil, fmt.Errorf("init %s contract: %w", snapshot.Name, err)
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	err = bindAccessControl(log, snapshotContract, aclContract.ID(), prm)
	if err != nil {
		return nil, fmt.Errorf("bind access control: %w", err)
	}

	if prm.RBAC {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		log.Info("granting snapshot submission to operators...", zap.Int("operators", len(prm.Operators)))

		err = aclContract.GrantPermission(prm.Admin, role.Operator, snapshot.MethodSubmitSnapshot)
		if err != nil {
			return nil, err
		}

		for _, op := range prm.Operators {
			if err = ctx.Err(); err != nil {
				return nil, err
			}

			err = aclContract.GrantRole(prm.Admin, op, role.Operator)
			if err != nil {
				return nil, fmt.Errorf("operator %s: %w", address.Uint160ToString(op), err)
			}
		}
	} else if len(prm.Operators) > 0 {
		log.Warn("RBAC is disabled, operators are not granted snapshot submission",
			zap.Int("operators", len(prm.Operators)))
	}

	log.Info("contracts successfully deployed",
		zap.Int32("acl", aclContract.ID()),
		zap.Int32("snapshot", snapshotContract.ID()))

	return &Contracts{
		ACL:      aclContract,
		Snapshot: snapshotContract,
	}, nil
}

func initContract(log *zap.Logger, name string, c contract, signer ledger.Signer, admin util.Uint160) error {
	current, ok, err := c.GetAdmin()
	if err != nil {
		return fmt.Errorf("get admin: %w", err)
	}

	if ok {
		if !current.Equals(admin) {
			return fmt.Errorf("contract is initialized with another admin %s", address.Uint160ToString(current))
		}

		log.Debug("contract is already initialized", zap.String("contract", name))

		return nil
	}

	err = c.Initialize(signer, admin)
	if err != nil {
		return err
	}

	log.Info("contract successfully initialized", zap.String("contract", name))

	return nil
}

// bindAccessControl brings the persisted binding in line with prm.RBAC.
func bindAccessControl(log *zap.Logger, c *snapshot.Contract, aclID int32, prm Prm) error {
	bound, ok, err := c.AccessControl()
	if err != nil {
		return err
	}

	switch {
	case prm.RBAC && ok && bound == aclID:
		log.Debug("access control is already bound")
		return nil
	case prm.RBAC:
		return c.BindAccessControl(prm.Admin)
	case ok:
		return c.UnbindAccessControl(prm.Admin)
	default:
		return nil
	}
}
