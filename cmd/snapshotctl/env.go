package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/snapshot-contract/config"
	"github.com/nspcc-dev/snapshot-contract/contracts/acl"
	"github.com/nspcc-dev/snapshot-contract/contracts/snapshot"
	"github.com/nspcc-dev/snapshot-contract/ledger"
	"github.com/nspcc-dev/snapshot-contract/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var wifFlag = cli.StringFlag{
	Name:   "wif, w",
	Usage:  "WIF-encoded private key signing the invocation",
	EnvVar: "SNAPSHOT_WIF",
}

// env groups components opened for a single command.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	ledger   *ledger.Ledger
	acl      *acl.Contract
	snapshot *snapshot.Contract
}

func openEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := cfg.Logger.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := cfg.Ledger.DB.Store()
	if err != nil {
		return nil, err
	}

	m, err := metrics.NewLedger(prometheus.NewRegistry())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	l := ledger.New(st,
		ledger.WithLogger(log),
		ledger.WithMetrics(m),
		ledger.WithMagic(cfg.Ledger.Magic))

	aclContract, err := acl.New(l, acl.WithLogger(log))
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	// whether the access control contract is consulted is decided by the
	// binding stored in the snapshot contract
	snapshotContract, err := snapshot.New(l,
		snapshot.WithLogger(log),
		snapshot.WithCacheSize(cfg.Contracts.CacheSize),
		snapshot.WithAccessControl(aclContract))
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	return &env{
		cfg:      cfg,
		log:      log,
		ledger:   l,
		acl:      aclContract,
		snapshot: snapshotContract,
	}, nil
}

func (e *env) close() {
	err := e.ledger.Close()
	if err != nil {
		e.log.Warn("failed to close ledger", zap.Error(err))
	}

	_ = e.log.Sync()
}

// withEnv wraps command action into opening and closing of the env.
func withEnv(f func(*cli.Context, *env) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		e, err := openEnv(c)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		defer e.close()

		return f(c, e)
	}
}

func signerFromFlag(c *cli.Context) (ledger.Signer, error) {
	wif := c.String("wif")
	if wif == "" {
		return nil, fmt.Errorf("missing private key, use --wif flag or SNAPSHOT_WIF environment")
	}

	k, err := keys.NewPrivateKeyFromWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("decode WIF: %w", err)
	}

	return ledger.NewSigner(k), nil
}

// parseHash decodes snapshot hash from big-endian hex (with optional 0x
// prefix) or base58 string.
func parseHash(s string) (util.Uint256, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) == 2*util.Uint256Size {
		b, err := hex.DecodeString(trimmed)
		if err == nil {
			return util.Uint256DecodeBytesBE(b)
		}
	}

	b, err := base58.Decode(s)
	if err != nil {
		return util.Uint256{}, fmt.Errorf("hash '%s' is neither hex nor base58", s)
	}

	if len(b) != util.Uint256Size {
		return util.Uint256{}, fmt.Errorf("invalid hash length %d", len(b))
	}

	return util.Uint256DecodeBytesBE(b)
}

func parseAccount(s string) (util.Uint160, error) {
	if s == "" {
		return util.Uint160{}, fmt.Errorf("missing account")
	}

	acc, err := address.StringToUint160(s)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid address '%s': %w", s, err)
	}

	return acc, nil
}
