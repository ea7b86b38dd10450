// Package eventlog turns emitted log records into typed values.
package eventlog

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrLogShapeMismatch is returned when a log's topics or data do not have the
// expected shape.
var ErrLogShapeMismatch = errors.New("log shape mismatch")

// Decode interprets a log positionally. Each topic is decoded as the matching
// entry of topicTypes, then the data segment is decoded as dataTypes in order.
// Topics of reference types hold a hash and are returned as common.Hash.
func Decode(log *types.Log, expectedTopics int, topicTypes, dataTypes []abi.Type) ([]interface{}, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: nil log", ErrLogShapeMismatch)
	}
	if len(log.Topics) != expectedTopics {
		return nil, fmt.Errorf("%w: want %d topics, got %d", ErrLogShapeMismatch, expectedTopics, len(log.Topics))
	}
	if len(topicTypes) != expectedTopics {
		return nil, fmt.Errorf("%w: %d topic types declared for %d topics", ErrLogShapeMismatch, len(topicTypes), expectedTopics)
	}
	values := make([]interface{}, 0, len(topicTypes)+len(dataTypes))
	for i, typ := range topicTypes {
		v, err := decodeTopic(typ, log.Topics[i])
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", i, err)
		}
		values = append(values, v)
	}
	data, err := decodeData(dataTypes, log.Data)
	if err != nil {
		return nil, err
	}
	return append(values, data...), nil
}

// DecodeEvent decodes a log against an event definition and returns its
// fields by name. Unnamed fields are keyed by position as "argN".
func DecodeEvent(event abi.Event, log *types.Log) (map[string]interface{}, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: nil log", ErrLogShapeMismatch)
	}
	var (
		topicTypes = make([]abi.Type, 0, 4)
		dataTypes  []abi.Type
		topicNames []string
		dataNames  []string
	)
	if !event.Anonymous {
		if len(log.Topics) == 0 || log.Topics[0] != event.ID {
			return nil, fmt.Errorf("%w: log is not a %s event", ErrLogShapeMismatch, event.Sig)
		}
		topicTypes = append(topicTypes, bytes32Type)
		topicNames = append(topicNames, "")
	}
	for i, input := range event.Inputs {
		name := input.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		if input.Indexed {
			topicTypes = append(topicTypes, input.Type)
			topicNames = append(topicNames, name)
		} else {
			dataTypes = append(dataTypes, input.Type)
			dataNames = append(dataNames, name)
		}
	}
	values, err := Decode(log, len(topicTypes), topicTypes, dataTypes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", event.Name, err)
	}
	fields := make(map[string]interface{}, len(event.Inputs))
	for i, name := range topicNames {
		if name != "" {
			fields[name] = values[i]
		}
	}
	for i, name := range dataNames {
		fields[name] = values[len(topicNames)+i]
	}
	return fields, nil
}

// Match returns the event of contractABI that emitted log, by topic0.
func Match(contractABI abi.ABI, log *types.Log) (*abi.Event, bool) {
	if log == nil || len(log.Topics) == 0 {
		return nil, false
	}
	event, err := contractABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, false
	}
	return event, true
}

var bytes32Type, _ = abi.NewType("bytes32", "", nil)

// decodeTopic unpacks a value topic. Indexed reference types (strings, bytes,
// arrays and tuples) are stored as the hash of their encoding and come back
// as common.Hash.
func decodeTopic(typ abi.Type, topic common.Hash) (interface{}, error) {
	switch typ.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return topic, nil
	}
	values, err := abi.Arguments{{Type: typ}}.UnpackValues(topic[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogShapeMismatch, err)
	}
	return values[0], nil
}

func decodeData(dataTypes []abi.Type, data []byte) ([]interface{}, error) {
	if len(dataTypes) == 0 {
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: want no data, got %d bytes", ErrLogShapeMismatch, len(data))
		}
		return nil, nil
	}
	args := make(abi.Arguments, len(dataTypes))
	var (
		static  = 0
		dynamic = false
	)
	for i, typ := range dataTypes {
		args[i] = abi.Argument{Type: typ}
		if isDynamic(typ) {
			dynamic = true
			static += 32 // head word holds the offset
			continue
		}
		static += staticSize(typ)
	}
	if (!dynamic && len(data) != static) || (dynamic && len(data) < static) {
		return nil, fmt.Errorf("%w: want %d data bytes, got %d", ErrLogShapeMismatch, static, len(data))
	}
	values, err := args.UnpackValues(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogShapeMismatch, err)
	}
	return values, nil
}

func isDynamic(t abi.Type) bool {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy:
		return true
	case abi.ArrayTy:
		return isDynamic(*t.Elem)
	case abi.TupleTy:
		for _, elem := range t.TupleElems {
			if isDynamic(*elem) {
				return true
			}
		}
	}
	return false
}

func staticSize(t abi.Type) int {
	switch t.T {
	case abi.ArrayTy:
		return t.Size * staticSize(*t.Elem)
	case abi.TupleTy:
		total := 0
		for _, elem := range t.TupleElems {
			total += staticSize(*elem)
		}
		return total
	}
	return 32
}
