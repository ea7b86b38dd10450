package config

import "math"

// Chain holds the neutral execution context every run starts from
type Chain struct {
	ChainID       uint64 // Chain id exposed to CHAINID
	Fork          string // Highest fork enabled: istanbul, london, shanghai or cancun
	BlockNumber   uint64 // Block number seen by NUMBER
	Timestamp     uint64 // Block timestamp seen by TIMESTAMP
	Difficulty    uint64 // Pre-merge difficulty
	BlockGasLimit uint64 // Block gas limit seen by GASLIMIT
	BaseFee       uint64 // Base fee seen by BASEFEE
	GasPrice      uint64 // Gas price seen by GASPRICE, never charged
	CallGasLimit  uint64 // Default gas budget of a single invocation
}

// Default returns the default execution context values
func Default() Chain {
	return Chain{
		ChainID:       1,
		Fork:          "london",
		BlockNumber:   1,
		Timestamp:     0,
		Difficulty:    0,
		BlockGasLimit: math.MaxInt64,
		BaseFee:       0,
		GasPrice:      0,
		CallGasLimit:  30_000_000,
	}
}
