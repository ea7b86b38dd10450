package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	chaincfg "github.com/airchains-network/contract-harness/internal/config"
	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pelletier/go-toml"
)

// Config holds the harness configuration
type Config struct {
	General   GeneralConfig    `toml:"general"`
	Compiler  CompilerConfig   `toml:"compiler"`
	Chain     ChainConfig      `toml:"chain"`
	Accounts  []AccountConfig  `toml:"accounts"`
	Target    TargetConfig     `toml:"target"`
	Bench     BenchConfig      `toml:"bench"`
	Scenarios []ScenarioConfig `toml:"scenarios,omitempty"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	LogLevel string `toml:"log_level"` // logrus level name
}

// CompilerConfig selects how contracts are built
type CompilerConfig struct {
	Kind       string `toml:"kind"` // "solc" or "artifacts"
	SourceRoot string `toml:"source_root"`
	SolcPath   string `toml:"solc_path"`
	CachePath  string `toml:"cache_path"` // empty keeps the cache in memory
}

// ChainConfig is the execution context. Zero values fall back to the defaults.
type ChainConfig struct {
	ChainID       uint64 `toml:"chain_id"`
	Fork          string `toml:"fork"`
	BlockNumber   uint64 `toml:"block_number"`
	Timestamp     uint64 `toml:"timestamp"`
	Difficulty    uint64 `toml:"difficulty"`
	BlockGasLimit uint64 `toml:"block_gas_limit"`
	BaseFee       uint64 `toml:"base_fee"`
	GasPrice      uint64 `toml:"gas_price"`
	CallGasLimit  uint64 `toml:"call_gas_limit"`
	Origin        string `toml:"origin"` // fixed tx origin, the caller when empty
	Coinbase      string `toml:"coinbase"`
}

// AccountConfig seeds one account before the first invocation
type AccountConfig struct {
	Address string            `toml:"address"`
	Balance string            `toml:"balance"` // decimal or 0x-prefixed hex
	Nonce   uint64            `toml:"nonce"`
	Code    string            `toml:"code"`
	Storage map[string]string `toml:"storage,omitempty"`
}

// TargetConfig describes the contract under test
type TargetConfig struct {
	Contract        string        `toml:"contract"`
	Deployer        string        `toml:"deployer"`
	Value           string        `toml:"value"`
	ConstructorArgs []string      `toml:"constructor_args"`
	BalanceFunction string        `toml:"balance_function"` // optional, queried with the deployer address
	StateFunction   string        `toml:"state_function"`
	Args            []string      `toml:"args"`
	GasLimit        uint64        `toml:"gas_limit"`
	Inspect         InspectConfig `toml:"inspect"`
}

// InspectConfig reads one mapping entry straight from storage after the run
type InspectConfig struct {
	Variable     string `toml:"variable"`
	Key          string `toml:"key"`
	SlotOverride string `toml:"slot_override"` // empty defers to the storage layout
}

// BenchConfig holds benchmark settings
type BenchConfig struct {
	Iterations int `toml:"iterations"`
}

// ScenarioConfig is a data-driven test case
type ScenarioConfig struct {
	Name            string       `toml:"name"`
	Contract        string       `toml:"contract"`
	Deployer        string       `toml:"deployer"`
	ConstructorArgs []string     `toml:"constructor_args"`
	Steps           []StepConfig `toml:"steps"`
}

// StepConfig is one invocation of a scenario and its expectation
type StepConfig struct {
	Kind     string   `toml:"kind"` // "call" or "query"
	Function string   `toml:"function"`
	Args     []string `toml:"args"`
	From     string   `toml:"from"` // defaults to the scenario deployer
	Value    string   `toml:"value"`
	Gas      uint64   `toml:"gas"`
	Expect   string   `toml:"expect"`  // succeeded, reverted or failed
	Returns  []string `toml:"returns"` // expected outputs, compared as parsed values
	Events   []string `toml:"events"`  // expected event names in order
}

// DefaultConfig returns a configuration that runs the token scenario
func DefaultConfig() Config {
	chain := chaincfg.Default()
	deployer := "0xf000000000000000000000000000000000000000"
	return Config{
		General: GeneralConfig{LogLevel: "info"},
		Compiler: CompilerConfig{
			Kind:       "solc",
			SourceRoot: "contracts",
			SolcPath:   "solc",
		},
		Chain: ChainConfig{
			ChainID:       chain.ChainID,
			Fork:          chain.Fork,
			BlockNumber:   chain.BlockNumber,
			BlockGasLimit: chain.BlockGasLimit,
			CallGasLimit:  chain.CallGasLimit,
		},
		Accounts: []AccountConfig{{
			Address: deployer,
			Balance: "10000000000000000",
			Nonce:   1,
		}},
		Target: TargetConfig{
			Contract:        "SimpleToken",
			Deployer:        deployer,
			BalanceFunction: "balanceOf",
			StateFunction:   "transfer",
			Args:            []string{"0x00000000000000000000000000000000deadbeef", "9999"},
			Inspect: InspectConfig{
				Variable: "balances",
				Key:      deployer,
			},
		},
		Bench: BenchConfig{Iterations: 1000},
	}
}

// LoadConfig reads a config.toml and returns the Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	file, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	err = toml.Unmarshal(file, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as TOML
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the fields that cannot fall back to a default
func (c Config) Validate() error {
	switch c.Compiler.Kind {
	case "", "solc", "artifacts":
	default:
		return fmt.Errorf("unknown compiler kind %q", c.Compiler.Kind)
	}
	for i, acc := range c.Accounts {
		if _, _, err := acc.Account(); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	if c.Target.Deployer != "" && !common.IsHexAddress(c.Target.Deployer) {
		return fmt.Errorf("target deployer %q is not an address", c.Target.Deployer)
	}
	if c.Bench.Iterations < 0 {
		return fmt.Errorf("bench iterations must not be negative")
	}
	for i, sc := range c.Scenarios {
		if sc.Contract == "" {
			return fmt.Errorf("scenarios[%d]: contract is required", i)
		}
		for j, step := range sc.Steps {
			switch step.Kind {
			case "", "call", "query":
			default:
				return fmt.Errorf("scenarios[%d].steps[%d]: unknown kind %q", i, j, step.Kind)
			}
			if step.Function == "" {
				return fmt.Errorf("scenarios[%d].steps[%d]: function is required", i, j)
			}
			if step.Expect != "" {
				if _, err := types.ParseStatus(step.Expect); err != nil {
					return fmt.Errorf("scenarios[%d].steps[%d]: %w", i, j, err)
				}
			}
		}
	}
	return nil
}

// ChainDefaults merges the configured context over the neutral defaults
func (c ChainConfig) ChainDefaults() chaincfg.Chain {
	chain := chaincfg.Default()
	if c.ChainID != 0 {
		chain.ChainID = c.ChainID
	}
	if c.Fork != "" {
		chain.Fork = c.Fork
	}
	if c.BlockNumber != 0 {
		chain.BlockNumber = c.BlockNumber
	}
	if c.BlockGasLimit != 0 {
		chain.BlockGasLimit = c.BlockGasLimit
	}
	if c.CallGasLimit != 0 {
		chain.CallGasLimit = c.CallGasLimit
	}
	chain.Timestamp = c.Timestamp
	chain.Difficulty = c.Difficulty
	chain.BaseFee = c.BaseFee
	chain.GasPrice = c.GasPrice
	return chain
}

// Account converts the entry into a seeded account
func (a AccountConfig) Account() (common.Address, *types.Account, error) {
	if !common.IsHexAddress(a.Address) {
		return common.Address{}, nil, fmt.Errorf("invalid address %q", a.Address)
	}
	acc := types.NewAccount()
	acc.Nonce = a.Nonce
	if a.Balance != "" {
		balance, err := ParseAmount(a.Balance)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("balance of %s: %w", a.Address, err)
		}
		acc.Balance = balance
	}
	if a.Code != "" {
		acc.Code = common.FromHex(a.Code)
	}
	for k, v := range a.Storage {
		key, err := ParseWord(k)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("storage key of %s: %w", a.Address, err)
		}
		value, err := ParseWord(v)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("storage value of %s: %w", a.Address, err)
		}
		acc.Storage[key] = value
	}
	return common.HexToAddress(a.Address), acc, nil
}

// ParseAmount reads a non-negative 256-bit amount in decimal or 0x hex
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return new(uint256.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", s)
	}
	return v, nil
}

// ParseWord reads a 32-byte word given as a number or hex
func ParseWord(s string) (common.Hash, error) {
	v, err := ParseAmount(s)
	if err != nil {
		return common.Hash{}, err
	}
	return v.Bytes32(), nil
}

// ParseSlot reads a slot index, empty meaning none
func ParseSlot(s string) (*uint64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid slot %q: %w", s, err)
	}
	return &n, nil
}
