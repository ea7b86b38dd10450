package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airchains-network/contract-harness/db"
	"github.com/airchains-network/contract-harness/slot"
	"github.com/sirupsen/logrus"
)

const cachePrefix = "solc/"

// Solc compiles every .sol file under a root with the solc binary.
type Solc struct {
	Path  string // solc binary, looked up in PATH when empty
	Cache db.DB  // optional output cache keyed by a digest of the sources
	Log   *logrus.Logger
}

// NewSolc creates a solc driver.
func NewSolc(path string, cache db.DB, log *logrus.Logger) *Solc {
	if log == nil {
		log = logrus.New()
	}
	return &Solc{Path: path, Cache: cache, Log: log}
}

type combinedContract struct {
	ABI           json.RawMessage `json:"abi"`
	Bin           string          `json:"bin"`
	BinRuntime    string          `json:"bin-runtime"`
	StorageLayout json.RawMessage `json:"storage-layout"`
}

type combinedOutput struct {
	Contracts map[string]combinedContract `json:"contracts"`
	Version   string                      `json:"version"`
}

// Compile implements Compiler.
func (s *Solc) Compile(ctx context.Context, root string) (*Output, error) {
	sources, err := findSources(root, ".sol")
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no Solidity sources under %s", ErrCompilation, root)
	}

	key, err := s.cacheKey(root, sources)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if cached, err := s.Cache.Get(key); err == nil && cached != nil {
			s.Log.Debugf("Using cached compiler output for %s", root)
			return parseCombinedJSON(cached, root)
		}
	}

	bin := s.Path
	if bin == "" {
		bin = "solc"
	}
	args := []string{
		"--combined-json", "abi,bin,bin-runtime,storage-layout",
		"--base-path", root,
		"--allow-paths", root,
	}
	args = append(args, sources...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	s.Log.Infof("Compiling %d source files under %s", len(sources), root)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrCompilation, bin, err, strings.TrimSpace(stderr.String()))
	}
	if warnings := strings.TrimSpace(stderr.String()); warnings != "" {
		s.Log.Warnf("Compiler output: %s", warnings)
	}

	out, err := parseCombinedJSON(stdout.Bytes(), root)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.store(root, key, stdout.Bytes()); err != nil {
			s.Log.Warnf("Failed to cache compiler output: %v", err)
		}
	}
	return out, nil
}

// store caches output under key and drops the entries of earlier versions of
// the same source tree.
func (s *Solc) store(root string, key, output []byte) error {
	stale, err := s.Cache.Keys(rootPrefix(root))
	if err != nil {
		return err
	}
	pruned := 0
	for _, k := range stale {
		if bytes.Equal(k, key) {
			continue
		}
		if err := s.Cache.Delete(k); err != nil {
			return err
		}
		pruned++
	}
	if pruned > 0 {
		s.Log.Debugf("Pruned %d cached compilations of %s", pruned, root)
	}
	return s.Cache.Put(key, output)
}

// rootPrefix groups the cache entries of one source tree.
func rootPrefix(root string) []byte {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	sum := sha256.Sum256([]byte(root))
	return []byte(cachePrefix + hex.EncodeToString(sum[:8]) + "/")
}

func (s *Solc) cacheKey(root string, sources []string) ([]byte, error) {
	h := sha256.New()
	h.Write([]byte(s.Path))
	for _, src := range sources {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrCompilation, src, err)
		}
		rel, _ := filepath.Rel(root, src)
		h.Write([]byte(rel))
		h.Write([]byte{0})
		h.Write(data)
	}
	return append(rootPrefix(root), hex.EncodeToString(h.Sum(nil))...), nil
}

// parseCombinedJSON reads the output of solc --combined-json.
func parseCombinedJSON(data []byte, root string) (*Output, error) {
	var combined combinedOutput
	if err := json.Unmarshal(data, &combined); err != nil {
		return nil, fmt.Errorf("%w: unreadable compiler output: %v", ErrCompilation, err)
	}
	out := &Output{Artifacts: make([]*Artifact, 0, len(combined.Contracts))}
	for id, c := range combined.Contracts {
		source, name := id, id
		if i := strings.LastIndexByte(id, ':'); i >= 0 {
			source, name = id[:i], id[i+1:]
		}
		if rel, err := filepath.Rel(root, source); err == nil && !strings.HasPrefix(rel, "..") {
			source = rel
		}

		abiJSON, err := rawOrString(c.ABI)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad abi: %v", ErrCompilation, id, err)
		}
		bytecode, err := decodeCode(c.Bin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		runtime, err := decodeCode(c.BinRuntime)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		layoutJSON, err := rawOrString(c.StorageLayout)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad storage layout: %v", ErrCompilation, id, err)
		}
		layout, err := slot.ParseLayout(layoutJSON)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		out.Artifacts = append(out.Artifacts, &Artifact{
			Name:             name,
			Source:           source,
			ABI:              abiJSON,
			Bytecode:         bytecode,
			DeployedBytecode: runtime,
			Layout:           layout,
		})
	}
	out.sort()
	return out, nil
}

// findSources lists the files under root with the given extension, sorted.
// Dependency directories are skipped.
func findSources(root, ext string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: project root %s does not exist", ErrCompilation, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: project root %s is not a directory", ErrCompilation, root)
	}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "node_modules", ".git", "cache":
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan %s: %v", ErrCompilation, root, err)
	}
	sort.Strings(files)
	return files, nil
}
