package eventlog

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const eventsABI = `[
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Note","inputs":[{"name":"tag","type":"string","indexed":true},{"name":"","type":"string","indexed":false}]}
]`

var (
	from = common.HexToAddress("0xf000000000000000000000000000000000000000")
	to   = common.HexToAddress("0x00000000000000000000000000000000deadbeef")
)

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return typ
}

func transferLog() *types.Log {
	return &types.Log{
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(9999).Bytes(), 32),
	}
}

func TestDecode(t *testing.T) {
	addr := mustType(t, "address")
	values, err := Decode(transferLog(), 3, []abi.Type{mustType(t, "bytes32"), addr, addr}, []abi.Type{mustType(t, "uint256")})
	require.NoError(t, err)
	require.Len(t, values, 4)
	require.Equal(t, from, values[1])
	require.Equal(t, to, values[2])
	require.Equal(t, big.NewInt(9999), values[3])
}

func TestDecodeShapeMismatch(t *testing.T) {
	addr := mustType(t, "address")
	u256 := mustType(t, "uint256")
	b32 := mustType(t, "bytes32")

	_, err := Decode(transferLog(), 2, []abi.Type{b32, addr}, []abi.Type{u256})
	require.ErrorIs(t, err, ErrLogShapeMismatch)

	_, err = Decode(transferLog(), 3, []abi.Type{b32, addr}, []abi.Type{u256})
	require.ErrorIs(t, err, ErrLogShapeMismatch)

	_, err = Decode(transferLog(), 3, []abi.Type{b32, addr, addr}, []abi.Type{u256, u256})
	require.ErrorIs(t, err, ErrLogShapeMismatch)

	_, err = Decode(transferLog(), 3, []abi.Type{b32, addr, addr}, nil)
	require.ErrorIs(t, err, ErrLogShapeMismatch)

	_, err = Decode(nil, 0, nil, nil)
	require.ErrorIs(t, err, ErrLogShapeMismatch)
}

func TestMatchAndDecodeEvent(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(eventsABI))
	require.NoError(t, err)

	event, ok := Match(parsed, transferLog())
	require.True(t, ok)
	require.Equal(t, "Transfer", event.Name)

	fields, err := DecodeEvent(*event, transferLog())
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{
		"from":  from,
		"to":    to,
		"value": big.NewInt(9999),
	}, fields)

	_, ok = Match(parsed, &types.Log{Topics: []common.Hash{{0x01}}})
	require.False(t, ok)
	_, ok = Match(parsed, &types.Log{})
	require.False(t, ok)

	_, err = DecodeEvent(parsed.Events["Note"], transferLog())
	require.ErrorIs(t, err, ErrLogShapeMismatch)
}

func TestDecodeDynamicTopic(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(eventsABI))
	require.NoError(t, err)
	note := parsed.Events["Note"]

	tagHash := crypto.Keccak256Hash([]byte("release"))
	data, err := abi.Arguments{{Type: mustType(t, "string")}}.Pack("hello")
	require.NoError(t, err)
	log := &types.Log{Topics: []common.Hash{note.ID, tagHash}, Data: data}

	fields, err := DecodeEvent(note, log)
	require.NoError(t, err)
	require.Equal(t, tagHash, fields["tag"])
	require.Equal(t, "hello", fields["arg1"])
}

func TestDecodeIndexedFixedArray(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"type":"event","name":"Pair","inputs":[{"name":"ids","type":"uint256[2]","indexed":true},{"name":"v","type":"uint256","indexed":false}]}
	]`))
	require.NoError(t, err)
	pair := parsed.Events["Pair"]

	ids, err := abi.Arguments{{Type: mustType(t, "uint256[2]")}}.Pack([2]*big.Int{big.NewInt(1), big.NewInt(2)})
	require.NoError(t, err)
	idsHash := crypto.Keccak256Hash(ids)
	log := &types.Log{
		Topics: []common.Hash{pair.ID, idsHash},
		Data:   common.LeftPadBytes(big.NewInt(7).Bytes(), 32),
	}

	fields, err := DecodeEvent(pair, log)
	require.NoError(t, err)
	require.Equal(t, idsHash, fields["ids"])
	require.Equal(t, big.NewInt(7), fields["v"])
}
