// Package compiler turns a contract project into deployable artifacts. The
// Solidity compiler itself is treated as a black box.
package compiler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/airchains-network/contract-harness/encoder"
	"github.com/airchains-network/contract-harness/slot"
)

var (
	// ErrCompilation is returned when the project cannot be compiled.
	ErrCompilation = errors.New("compilation failed")
	// ErrArtifactNotFound is returned when a named contract is not in the output.
	ErrArtifactNotFound = errors.New("contract not found")
)

// Compiler produces the artifacts of every contract under a project root.
type Compiler interface {
	Compile(ctx context.Context, root string) (*Output, error)
}

// Artifact is one compiled contract.
type Artifact struct {
	Name             string // contract name
	Source           string // source unit or artifact file, may be empty
	ABI              json.RawMessage
	Bytecode         []byte // init code
	DeployedBytecode []byte
	Layout           *slot.Layout // nil when the compiler did not report one
}

// ID is the fully qualified name, source:Name.
func (a *Artifact) ID() string {
	if a.Source == "" {
		return a.Name
	}
	return a.Source + ":" + a.Name
}

// Interface parses the artifact's interface description.
func (a *Artifact) Interface() (*encoder.Interface, error) {
	if len(a.ABI) == 0 {
		return nil, fmt.Errorf("%s has no interface description", a.ID())
	}
	return encoder.ParseInterface(a.ABI)
}

// Output is the result of one compilation.
type Output struct {
	Artifacts []*Artifact
}

// Find returns the artifact named name. A fully qualified source:Name also
// matches. A bare name shared by contracts of different sources is ambiguous.
func (o *Output) Find(name string) (*Artifact, error) {
	var found []*Artifact
	for _, a := range o.Artifacts {
		if a.Name == name || a.ID() == name {
			found = append(found, a)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	case 1:
		return found[0], nil
	}
	ids := make([]string, 0, len(found))
	for _, a := range found {
		ids = append(ids, a.ID())
	}
	return nil, fmt.Errorf("%w: %s is ambiguous (%s)", ErrArtifactNotFound, name, strings.Join(ids, ", "))
}

// Names lists the contract names in the output, sorted.
func (o *Output) Names() []string {
	names := make([]string, 0, len(o.Artifacts))
	for _, a := range o.Artifacts {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

func (o *Output) sort() {
	sort.Slice(o.Artifacts, func(i, j int) bool {
		return o.Artifacts[i].ID() < o.Artifacts[j].ID()
	})
}

// decodeCode decodes compiler hex output, with or without a 0x prefix.
func decodeCode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if strings.Contains(s, "__") {
		return nil, fmt.Errorf("%w: bytecode references unlinked libraries", ErrCompilation)
	}
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bytecode: %v", ErrCompilation, err)
	}
	return code, nil
}

// rawOrString accepts a JSON value that is either embedded directly or
// carried as a JSON string, as different solc versions emit both.
func rawOrString(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if trimmed[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return json.RawMessage(s), nil
}
