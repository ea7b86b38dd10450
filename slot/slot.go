// Package slot derives the storage keys of values nested inside mapping-typed
// state variables, the same way compiled contract code does.
package slot

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Resolve returns the slot holding mapping[key] for a mapping declared at base:
// keccak256(leftpad32(key) ++ leftpad32(base)).
func Resolve(base, key common.Hash) common.Hash {
	return crypto.Keccak256Hash(key[:], base[:])
}

// ResolveNested walks one mapping level per key, using each derived slot as the
// base of the next level. With no keys it returns base.
func ResolveNested(base common.Hash, keys ...common.Hash) common.Hash {
	slot := base
	for _, key := range keys {
		slot = Resolve(slot, key)
	}
	return slot
}

// ResolveBytes returns the slot for a string or bytes key, which are hashed
// unpadded: keccak256(key ++ leftpad32(base)).
func ResolveBytes(base common.Hash, key []byte) common.Hash {
	return crypto.Keccak256Hash(key, base[:])
}

// StringKey returns the slot of a string-keyed mapping entry.
func StringKey(base common.Hash, key string) common.Hash {
	return ResolveBytes(base, []byte(key))
}

// Index converts a declared slot index to its 32-byte form.
func Index(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

// AddressKey left-pads an address to a mapping key.
func AddressKey(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// IntKey encodes an integer key. Negative values use two's complement, as
// int-typed keys do in the VM.
func IntKey(n *big.Int) common.Hash {
	return common.BytesToHash(math.U256Bytes(new(big.Int).Set(n)))
}

// Key reads a textual mapping key and returns its word together with the
// entry's slot under base. A 0x-prefixed 40-digit hex string is an address,
// anything that parses as a 256-bit signed integer is an integer, and the rest
// is taken as a string. String keys hash unpadded, so their word is only the
// raw bytes for display.
func Key(base common.Hash, key string) (word, slot common.Hash) {
	key = strings.TrimSpace(key)
	if isAddress(key) {
		word = AddressKey(common.HexToAddress(key))
		return word, Resolve(base, word)
	}
	if n, ok := new(big.Int).SetString(strings.ReplaceAll(key, "_", ""), 0); ok && fitsWord(n) {
		word = IntKey(n)
		return word, Resolve(base, word)
	}
	return common.BytesToHash([]byte(key)), StringKey(base, key)
}

// isAddress requires the 0x prefix so a 40-digit decimal stays an integer.
func isAddress(s string) bool {
	return (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) && common.IsHexAddress(s)
}

var minInt256 = new(big.Int).Neg(math.BigPow(2, 255))

func fitsWord(n *big.Int) bool {
	if n.Sign() >= 0 {
		return n.BitLen() <= 256
	}
	return n.Cmp(minInt256) >= 0
}
