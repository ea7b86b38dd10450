package encoder

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseArguments converts operator-supplied strings into the Go values the ABI
// packer expects for the given parameters.
func ParseArguments(inputs abi.Arguments, args []string) ([]interface{}, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", ErrArgumentTypeMismatch, len(inputs), len(args))
	}
	values := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := ParseArgument(inputs[i].Type, arg)
		if err != nil {
			name := inputs[i].Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		values[i] = v
	}
	return values, nil
}

// ParseArgument converts a single string into a value of type t.
//
// Integers accept decimal or 0x-prefixed hex. Byte types take hex. Arrays and
// slices of the supported element types are written as [a,b,c].
func ParseArgument(t abi.Type, s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: %q is not an address", ErrArgumentTypeMismatch, s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrArgumentTypeMismatch, s)
		}
		return b, nil

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not hex bytes: %v", ErrArgumentTypeMismatch, s, err)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not hex bytes: %v", ErrArgumentTypeMismatch, s, err)
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("%w: %q longer than bytes%d", ErrArgumentTypeMismatch, s, t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.UintTy, abi.IntTy:
		return parseInteger(t, s)

	case abi.SliceTy, abi.ArrayTy:
		return parseList(t, s)
	}
	return nil, fmt.Errorf("%w: unsupported parameter type %s", ErrArgumentTypeMismatch, t.String())
}

func parseInteger(t abi.Type, s string) (interface{}, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrArgumentTypeMismatch, s)
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%w: %s overflows uint%d", ErrArgumentTypeMismatch, s, t.Size)
		}
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		}
		return n, nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return nil, fmt.Errorf("%w: %s overflows int%d", ErrArgumentTypeMismatch, s, t.Size)
	}
	switch t.Size {
	case 8:
		return int8(n.Int64()), nil
	case 16:
		return int16(n.Int64()), nil
	case 32:
		return int32(n.Int64()), nil
	case 64:
		return n.Int64(), nil
	}
	return n, nil
}

func parseList(t abi.Type, s string) (interface{}, error) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("%w: %q is not a list", ErrArgumentTypeMismatch, s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	var items []string
	if inner != "" {
		items = strings.Split(inner, ",")
	}
	if t.T == abi.ArrayTy && len(items) != t.Size {
		return nil, fmt.Errorf("%w: %s wants %d elements, got %d", ErrArgumentTypeMismatch, t.String(), t.Size, len(items))
	}
	var list reflect.Value
	if t.T == abi.SliceTy {
		list = reflect.MakeSlice(t.GetType(), len(items), len(items))
	} else {
		list = reflect.New(t.GetType()).Elem()
	}
	for i, item := range items {
		v, err := ParseArgument(*t.Elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		list.Index(i).Set(reflect.ValueOf(v))
	}
	return list.Interface(), nil
}
