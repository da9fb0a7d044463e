package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
)

// Artifact is a compiled contract as written by hardhat or foundry.
type Artifact struct {
	ContractName string          `json:"contractName,omitempty"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`
}

// Bytecode accepts both the hardhat string form and the foundry
// {"object": "0x..."} form.
type Bytecode struct {
	hex string
}

func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}
	return fmt.Errorf("bytecode must be a string or an object with an 'object' field")
}

func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

func (b Bytecode) String() string {
	return b.hex
}

// CreationCode decodes the creation bytecode. Unlinked library placeholders
// are rejected.
func (a *Artifact) CreationCode() ([]byte, error) {
	raw := strings.TrimSpace(a.Bytecode.hex)
	if raw == "" || raw == "0x" {
		return nil, fmt.Errorf("artifact %s has empty bytecode", a.ContractName)
	}
	if strings.Contains(raw, "__") {
		return nil, fmt.Errorf("artifact %s has unlinked library references", a.ContractName)
	}
	if !strings.HasPrefix(raw, "0x") {
		raw = "0x" + raw
	}
	code, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s bytecode: %w", a.ContractName, err)
	}
	return code, nil
}

func (a *Artifact) ParsedABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(a.ABI))
}

// ArtifactSource resolves contract names to compiled artifacts.
type ArtifactSource interface {
	Artifact(name string) (*Artifact, error)
}

// ArtifactDir looks up <Name>.json anywhere below a build output directory
// (hardhat artifacts/ or foundry out/). Loaded artifacts are cached.
type ArtifactDir struct {
	Root string

	mu    sync.Mutex
	cache map[string]*Artifact
}

func NewArtifactDir(root string) *ArtifactDir {
	return &ArtifactDir{Root: root, cache: map[string]*Artifact{}}
}

func (d *ArtifactDir) Artifact(name string) (*Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if art, ok := d.cache[name]; ok {
		return art, nil
	}
	path, err := d.find(name)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "read artifact "+name, err)
	}
	var art Artifact
	if err := json.Unmarshal(buf, &art); err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "parse artifact "+path, err)
	}
	if art.ContractName == "" {
		art.ContractName = name
	}
	if _, err := art.CreationCode(); err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "load artifact "+path, err)
	}
	if d.cache == nil {
		d.cache = map[string]*Artifact{}
	}
	d.cache[name] = &art
	return &art, nil
}

var errFound = errors.New("found")

func (d *ArtifactDir) find(name string) (string, error) {
	root := strings.TrimSpace(d.Root)
	if root == "" {
		return "", clierr.Config("artifacts_dir", "artifact directory is required")
	}
	target := name + ".json"
	var match string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == "build-info" || entry.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Name() == target {
			match = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", clierr.Wrap(clierr.CodeConfig, "scan artifact directory "+root, err)
	}
	if match == "" {
		return "", clierr.Config("artifacts_dir", fmt.Sprintf("no %s artifact found under %s", target, root))
	}
	return match, nil
}
