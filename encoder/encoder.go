// Package encoder builds call payloads: a 4-byte selector followed by the
// ABI-encoded arguments of the target function.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrEncoding is the parent of every encoding failure.
	ErrEncoding = errors.New("encoding error")

	// ErrSignatureMismatch is returned when a function is not part of the interface.
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrEncoding)

	// ErrArgumentTypeMismatch is returned when arguments disagree with the
	// declared parameter types or count.
	ErrArgumentTypeMismatch = fmt.Errorf("%w: argument type mismatch", ErrEncoding)
)

// Selector returns the dispatch tag of a function signature, the first four
// bytes of its Keccak-256 hash.
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(Canonical(signature))))
	return sel
}

// Canonical normalises a signature the way the compiler hashes it: no
// whitespace and the uint/int aliases widened to 256 bits.
func Canonical(signature string) string {
	signature = strings.Join(strings.Fields(signature), "")
	open := strings.IndexByte(signature, '(')
	if open < 0 || !strings.HasSuffix(signature, ")") {
		return signature
	}
	var (
		name   = signature[:open]
		params = signature[open+1 : len(signature)-1]
		out    strings.Builder
		token  strings.Builder
	)
	flush := func() {
		out.WriteString(canonicalType(token.String()))
		token.Reset()
	}
	out.WriteString(name)
	out.WriteByte('(')
	for _, r := range params {
		switch r {
		case ',', '(', ')', '[', ']':
			flush()
			out.WriteRune(r)
		default:
			token.WriteRune(r)
		}
	}
	flush()
	out.WriteByte(')')
	return out.String()
}

func canonicalType(t string) string {
	switch t {
	case "uint":
		return "uint256"
	case "int":
		return "int256"
	}
	return t
}

// Descriptor is a function resolved once from the interface description.
type Descriptor struct {
	Signature string
	Selector  [4]byte
	Method    abi.Method
}

// Interface is a contract's interface description with its functions indexed
// by canonical signature.
type Interface struct {
	ABI    abi.ABI
	bySig  map[string]*Descriptor
	byName map[string][]*Descriptor
}

// ParseInterface parses a JSON interface description.
func ParseInterface(data []byte) (*Interface, error) {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse interface description: %w", err)
	}
	return NewInterface(parsed), nil
}

// NewInterface indexes every method of the given ABI.
func NewInterface(contractABI abi.ABI) *Interface {
	iface := &Interface{
		ABI:    contractABI,
		bySig:  make(map[string]*Descriptor, len(contractABI.Methods)),
		byName: make(map[string][]*Descriptor),
	}
	for _, method := range contractABI.Methods {
		desc := &Descriptor{
			Signature: method.Sig,
			Method:    method,
		}
		copy(desc.Selector[:], method.ID)
		iface.bySig[method.Sig] = desc
		iface.byName[method.RawName] = append(iface.byName[method.RawName], desc)
	}
	return iface
}

// Lookup resolves a canonical signature, or a bare function name when it is
// not overloaded.
func (i *Interface) Lookup(signature string) (*Descriptor, error) {
	if !strings.Contains(signature, "(") {
		descs := i.byName[strings.TrimSpace(signature)]
		switch len(descs) {
		case 0:
			return nil, fmt.Errorf("%w: function %q not found", ErrSignatureMismatch, signature)
		case 1:
			return descs[0], nil
		default:
			sigs := make([]string, 0, len(descs))
			for _, d := range descs {
				sigs = append(sigs, d.Signature)
			}
			sort.Strings(sigs)
			return nil, fmt.Errorf("%w: %q is overloaded (%s)", ErrSignatureMismatch, signature, strings.Join(sigs, ", "))
		}
	}
	desc, ok := i.bySig[Canonical(signature)]
	if !ok {
		return nil, fmt.Errorf("%w: function %q not found", ErrSignatureMismatch, signature)
	}
	return desc, nil
}

// Signatures lists the canonical signatures of every function, sorted.
func (i *Interface) Signatures() []string {
	sigs := make([]string, 0, len(i.bySig))
	for sig := range i.bySig {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	return sigs
}

// EncodeCall returns the selector of signature followed by the packed args.
func (i *Interface) EncodeCall(signature string, args ...interface{}) ([]byte, error) {
	desc, err := i.Lookup(signature)
	if err != nil {
		return nil, err
	}
	return desc.Encode(args...)
}

// EncodeCallStrings parses operator-supplied argument strings per declared
// parameter type and encodes the call.
func (i *Interface) EncodeCallStrings(signature string, args []string) ([]byte, error) {
	desc, err := i.Lookup(signature)
	if err != nil {
		return nil, err
	}
	values, err := ParseArguments(desc.Method.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Signature, err)
	}
	return desc.Encode(values...)
}

// EncodeDeploy appends the encoded constructor arguments to the init code.
func (i *Interface) EncodeDeploy(bytecode []byte, args ...interface{}) ([]byte, error) {
	inputs := i.ABI.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%w: constructor wants %d arguments, got %d", ErrArgumentTypeMismatch, len(inputs), len(args))
	}
	packed, err := inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("%w: constructor: %v", ErrArgumentTypeMismatch, err)
	}
	code := make([]byte, 0, len(bytecode)+len(packed))
	code = append(code, bytecode...)
	return append(code, packed...), nil
}

// EncodeDeployStrings is EncodeDeploy for operator-supplied strings.
func (i *Interface) EncodeDeployStrings(bytecode []byte, args []string) ([]byte, error) {
	values, err := ParseArguments(i.ABI.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("constructor: %w", err)
	}
	return i.EncodeDeploy(bytecode, values...)
}

// DecodeReturn unpacks the output of signature.
func (i *Interface) DecodeReturn(signature string, data []byte) ([]interface{}, error) {
	desc, err := i.Lookup(signature)
	if err != nil {
		return nil, err
	}
	return desc.Decode(data)
}

// Encode packs args behind the selector.
func (d *Descriptor) Encode(args ...interface{}) ([]byte, error) {
	if len(args) != len(d.Method.Inputs) {
		return nil, fmt.Errorf("%w: %s wants %d arguments, got %d", ErrArgumentTypeMismatch, d.Signature, len(d.Method.Inputs), len(args))
	}
	packed, err := d.Method.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArgumentTypeMismatch, d.Signature, err)
	}
	payload := make([]byte, 0, 4+len(packed))
	payload = append(payload, d.Selector[:]...)
	return append(payload, packed...), nil
}

// Decode unpacks return data per the declared outputs.
func (d *Descriptor) Decode(data []byte) ([]interface{}, error) {
	if len(d.Method.Outputs) == 0 {
		return nil, nil
	}
	values, err := d.Method.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", d.Signature, err)
	}
	return values, nil
}

// RevertReason decodes an Error(string) revert payload. It returns the empty
// string when data carries no reason.
func RevertReason(data []byte) string {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return ""
	}
	return reason
}
