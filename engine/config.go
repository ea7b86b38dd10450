package engine

import (
	"fmt"
	"math/big"
	"strings"

	chaincfg "github.com/airchains-network/contract-harness/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// Config is the fixed execution context shared by every invocation of a run.
type Config struct {
	ChainConfig  *params.ChainConfig
	BlockNumber  *big.Int
	Time         uint64
	Difficulty   *big.Int
	GasLimit     uint64 // block gas limit
	BaseFee      *big.Int
	BlobBaseFee  *big.Int
	Random       *common.Hash // set once the merge is active
	Coinbase     common.Address
	GasPrice     *big.Int
	Origin       *common.Address // fixed tx origin, the caller when nil
	CallGasLimit uint64
}

// NewConfig builds an execution context from the chain defaults.
func NewConfig(chain chaincfg.Chain) (Config, error) {
	chainConfig, merged, err := chainConfigFor(chain.Fork, chain.ChainID)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ChainConfig:  chainConfig,
		BlockNumber:  new(big.Int).SetUint64(chain.BlockNumber),
		Time:         chain.Timestamp,
		Difficulty:   new(big.Int).SetUint64(chain.Difficulty),
		GasLimit:     chain.BlockGasLimit,
		BaseFee:      new(big.Int).SetUint64(chain.BaseFee),
		BlobBaseFee:  big.NewInt(1),
		GasPrice:     new(big.Int).SetUint64(chain.GasPrice),
		CallGasLimit: chain.CallGasLimit,
	}
	if merged {
		cfg.Random = &common.Hash{}
	}
	return cfg, nil
}

// DefaultConfig is NewConfig over the neutral defaults.
func DefaultConfig() Config {
	cfg, err := NewConfig(chaincfg.Default())
	if err != nil {
		panic(err) // the defaults name a known fork
	}
	return cfg
}

// Rules returns the fork rules active for the configured block.
func (c *Config) Rules() params.Rules {
	return c.ChainConfig.Rules(c.BlockNumber, c.Random != nil, c.Time)
}

func (c *Config) blockContext() vm.BlockContext {
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    c.Coinbase,
		GasLimit:    c.GasLimit,
		BlockNumber: new(big.Int).Set(c.BlockNumber),
		Time:        c.Time,
		Difficulty:  new(big.Int).Set(c.Difficulty),
		BaseFee:     new(big.Int).Set(c.BaseFee),
		BlobBaseFee: new(big.Int).Set(c.BlobBaseFee),
		Random:      c.Random,
	}
}

func (c *Config) txContext(caller common.Address) vm.TxContext {
	origin := caller
	if c.Origin != nil {
		origin = *c.Origin
	}
	return vm.TxContext{
		Origin:   origin,
		GasPrice: new(big.Int).Set(c.GasPrice),
	}
}

// chainConfigFor enables every fork up to and including fork at genesis. It
// reports whether the merge is part of the schedule.
func chainConfigFor(fork string, chainID uint64) (*params.ChainConfig, bool, error) {
	cfg := &params.ChainConfig{
		ChainID:             new(big.Int).SetUint64(chainID),
		HomesteadBlock:      big.NewInt(0),
		EIP150Block:         big.NewInt(0),
		EIP155Block:         big.NewInt(0),
		EIP158Block:         big.NewInt(0),
		ByzantiumBlock:      big.NewInt(0),
		ConstantinopleBlock: big.NewInt(0),
		PetersburgBlock:     big.NewInt(0),
		IstanbulBlock:       big.NewInt(0),
		MuirGlacierBlock:    big.NewInt(0),
	}
	switch strings.ToLower(fork) {
	case "istanbul":
		return cfg, false, nil
	case "", "london":
		cfg.BerlinBlock = big.NewInt(0)
		cfg.LondonBlock = big.NewInt(0)
		return cfg, false, nil
	case "shanghai", "cancun":
		cfg.BerlinBlock = big.NewInt(0)
		cfg.LondonBlock = big.NewInt(0)
		cfg.ArrowGlacierBlock = big.NewInt(0)
		cfg.GrayGlacierBlock = big.NewInt(0)
		cfg.MergeNetsplitBlock = big.NewInt(0)
		cfg.TerminalTotalDifficulty = big.NewInt(0)
		cfg.TerminalTotalDifficultyPassed = true
		cfg.ShanghaiTime = new(uint64)
		if strings.EqualFold(fork, "cancun") {
			cfg.CancunTime = new(uint64)
		}
		return cfg, true, nil
	}
	return nil, false, fmt.Errorf("unsupported fork %q", fork)
}
