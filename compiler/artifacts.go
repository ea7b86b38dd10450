package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airchains-network/contract-harness/slot"
	"github.com/sirupsen/logrus"
)

// ArtifactDir loads prebuilt Foundry or Hardhat JSON artifacts instead of
// running a compiler.
type ArtifactDir struct {
	Log *logrus.Logger
}

// NewArtifactDir creates an artifact loader.
func NewArtifactDir(log *logrus.Logger) *ArtifactDir {
	if log == nil {
		log = logrus.New()
	}
	return &ArtifactDir{Log: log}
}

type artifactFile struct {
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         json.RawMessage `json:"bytecode"`
	DeployedBytecode json.RawMessage `json:"deployedBytecode"`
	StorageLayout    json.RawMessage `json:"storageLayout"`
}

// Compile implements Compiler by reading every artifact under root.
func (d *ArtifactDir) Compile(ctx context.Context, root string) (*Output, error) {
	files, err := findSources(root, ".json")
	if err != nil {
		return nil, err
	}
	out := &Output{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasSuffix(path, ".dbg.json") {
			continue
		}
		artifact, err := loadArtifact(root, path)
		if err != nil {
			return nil, err
		}
		if artifact == nil {
			d.Log.Debugf("Skipping %s, not a contract artifact", path)
			continue
		}
		out.Artifacts = append(out.Artifacts, artifact)
	}
	if len(out.Artifacts) == 0 {
		return nil, fmt.Errorf("%w: no contract artifacts under %s", ErrCompilation, root)
	}
	out.sort()
	return out, nil
}

// loadArtifact returns nil for JSON files that do not describe a contract.
func loadArtifact(root, path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrCompilation, path, err)
	}
	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil || len(file.ABI) == 0 || file.ABI[0] != '[' {
		return nil, nil
	}

	name := file.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	source := file.SourceName
	if source == "" {
		source, _ = filepath.Rel(root, path)
	}

	bytecode, err := bytecodeField(file.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	runtime, err := bytecodeField(file.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	layoutJSON, err := rawOrString(file.StorageLayout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad storage layout: %v", ErrCompilation, path, err)
	}
	layout, err := slot.ParseLayout(layoutJSON)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Artifact{
		Name:             name,
		Source:           source,
		ABI:              file.ABI,
		Bytecode:         bytecode,
		DeployedBytecode: runtime,
		Layout:           layout,
	}, nil
}

// bytecodeField accepts a plain hex string (Hardhat) or an object with an
// "object" member (Foundry).
func bytecodeField(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decodeCode(s)
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: unrecognised bytecode field: %v", ErrCompilation, err)
	}
	return decodeCode(obj.Object)
}
