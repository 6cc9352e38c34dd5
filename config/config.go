package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/core/storage/dbconfig"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is a prefix of environment variables overriding config values,
// e.g. SNAPSHOT_LEDGER_DB_PATH overrides ledger.db.path.
const EnvPrefix = "SNAPSHOT"

// Supported ledger storage backends.
const (
	DBInMemory = "inmemory"
	DBLevelDB  = "leveldb"
	DBBoltDB   = "boltdb"
)

// Config is a configuration of the snapshot registry tools.
type Config struct {
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Deploy    DeployConfig    `mapstructure:"deploy"`
}

// LedgerConfig configures the ledger.
type LedgerConfig struct {
	DB DBConfig `mapstructure:"db"`

	// Magic is mixed into invocation digests.
	Magic uint32 `mapstructure:"magic"`
}

// DBConfig selects the storage backend of the ledger.
type DBConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

// ContractsConfig configures the contracts.
type ContractsConfig struct {
	RBAC      bool `mapstructure:"rbac"`
	CacheSize int  `mapstructure:"cacheSize"`
}

// DeployConfig configures the deployment procedure.
type DeployConfig struct {
	// Operators are addresses allowed to submit snapshots.
	Operators []string `mapstructure:"operators"`
}

var defaults = map[string]any{
	"ledger.db.type":      DBInMemory,
	"ledger.db.path":      "",
	"ledger.magic":        0,
	"logger.level":        "info",
	"contracts.rbac":      false,
	"contracts.cacheSize": 1024,
	"deploy.operators":    []string{},
}

// Load reads the YAML config file and applies environment overrides. Empty
// path means defaults and environment only. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		err := v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the config values.
func (c *Config) Validate() error {
	switch c.Ledger.DB.Type {
	case DBInMemory:
	case DBLevelDB, DBBoltDB:
		if c.Ledger.DB.Path == "" {
			return fmt.Errorf("ledger.db.path: required for %s backend", c.Ledger.DB.Type)
		}
	default:
		return fmt.Errorf("ledger.db.type: unsupported backend '%s'", c.Ledger.DB.Type)
	}

	_, err := zapcore.ParseLevel(c.Logger.Level)
	if err != nil {
		return fmt.Errorf("logger.level: %w", err)
	}

	if c.Contracts.CacheSize <= 0 {
		return errors.New("contracts.cacheSize: must be positive")
	}

	_, err = c.Deploy.OperatorAccounts()
	if err != nil {
		return fmt.Errorf("deploy.operators: %w", err)
	}

	return nil
}

// Store opens the configured storage backend.
func (c DBConfig) Store() (storage.Store, error) {
	cfg := dbconfig.DBConfiguration{Type: c.Type}

	switch c.Type {
	case DBLevelDB:
		cfg.LevelDBOptions.DataDirectoryPath = c.Path
	case DBBoltDB:
		cfg.BoltDBOptions.FilePath = c.Path
	}

	st, err := storage.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", c.Type, err)
	}

	return st, nil
}

// Build creates console logger with the configured level.
func (c LoggerConfig) Build() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// OperatorAccounts decodes operator addresses.
func (c DeployConfig) OperatorAccounts() ([]util.Uint160, error) {
	res := make([]util.Uint160, 0, len(c.Operators))

	for i := range c.Operators {
		acc, err := address.StringToUint160(c.Operators[i])
		if err != nil {
			return nil, fmt.Errorf("invalid address #%d '%s': %w", i, c.Operators[i], err)
		}

		res = append(res, acc)
	}

	return res, nil
}
