package commands

import (
	"math/big"
	"testing"

	"github.com/airchains-network/contract-harness/slot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestResolveSlot(t *testing.T) {
	owner := common.HexToAddress("0xf000000000000000000000000000000000000000")

	got, err := resolveSlot("6", []string{owner.Hex()})
	require.NoError(t, err)
	require.Equal(t, slot.Resolve(slot.Index(6), slot.AddressKey(owner)), got)

	got, err = resolveSlot("0x1", []string{owner.Hex(), "7"})
	require.NoError(t, err)
	require.Equal(t, slot.ResolveNested(slot.Index(1), slot.AddressKey(owner), slot.Index(7)), got)

	got, err = resolveSlot("3", []string{"alice"})
	require.NoError(t, err)
	require.Equal(t, slot.StringKey(slot.Index(3), "alice"), got)

	// an unprefixed 40-digit number is an integer key
	const digits = "1234567890123456789012345678901234567890"
	got, err = resolveSlot("6", []string{digits})
	require.NoError(t, err)
	word, _ := new(big.Int).SetString(digits, 10)
	require.Equal(t, slot.Resolve(slot.Index(6), common.BigToHash(word)), got)

	got, err = resolveSlot("2", nil)
	require.NoError(t, err)
	require.Equal(t, slot.Index(2), got)

	_, err = resolveSlot("x", nil)
	require.Error(t, err)
}
