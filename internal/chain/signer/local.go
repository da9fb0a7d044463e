package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
)

const (
	EnvPrivateKey           = "ROUTERDEPLOY_PRIVATE_KEY"
	EnvPrivateKeyFile       = "ROUTERDEPLOY_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "ROUTERDEPLOY_KEYSTORE_PATH"
	EnvKeystorePassword     = "ROUTERDEPLOY_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "ROUTERDEPLOY_KEYSTORE_PASSWORD_FILE"
	EnvDeployer             = "ROUTERDEPLOY_DEPLOYER"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultPrivateKeyRelativePath = "routerdeploy/key.hex"
	defaultPrivateKeyHintPath     = "~/.config/routerdeploy/key.hex"
)

type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

// NewLocalSignerFromInputs loads a key from the selected source. A non-empty
// privateKeyOverride (the --private-key flag) wins over every other source.
// When ROUTERDEPLOY_DEPLOYER is set the loaded key must match it.
func NewLocalSignerFromInputs(source, privateKeyOverride string) (*LocalSigner, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = KeySourceAuto
	}
	cfg := LocalSignerConfig{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	}
	if cfg.PrivateKeyFile == "" {
		cfg.PrivateKeyFile = discoverDefaultPrivateKeyFile()
	}
	if raw := strings.TrimSpace(os.Getenv(EnvDeployer)); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("invalid %s address %q", EnvDeployer, raw))
		}
		cfg.ExpectedAddress = common.HexToAddress(raw)
	}

	switch source {
	case KeySourceAuto:
	case KeySourceEnv:
		cfg.PrivateKeyFile = ""
		cfg.KeystorePath = ""
	case KeySourceFile:
		cfg.PrivateKeyHex = ""
		cfg.KeystorePath = ""
	case KeySourceKeystore:
		cfg.PrivateKeyHex = ""
		cfg.PrivateKeyFile = ""
	default:
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore))
	}
	if strings.TrimSpace(privateKeyOverride) != "" {
		cfg.PrivateKeyHex = strings.TrimSpace(privateKeyOverride)
		cfg.PrivateKeyFile = ""
		cfg.KeystorePath = ""
	}
	return NewLocalSigner(cfg)
}

type LocalSignerConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
	// ExpectedAddress, when set, must equal the address of the loaded key.
	// It also selects the key file when KeystorePath is a directory.
	ExpectedAddress common.Address
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signing key", err)
	}
	addr := crypto.PubkeyToAddress(pk.PublicKey)
	if cfg.ExpectedAddress != (common.Address{}) && addr != cfg.ExpectedAddress {
		return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("signing key address %s does not match deployer %s", addr.Hex(), cfg.ExpectedAddress.Hex()))
	}
	return &LocalSigner{privateKey: pk, address: addr}, nil
}

func loadPrivateKey(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(cfg.PrivateKeyHex) != "" {
		return parseHexKey(cfg.PrivateKeyHex)
	}
	if strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		password := cfg.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(cfg.KeystorePasswordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, fmt.Errorf("keystore password is required")
		}
		path, err := resolveKeystoreFile(cfg.KeystorePath, cfg.ExpectedAddress)
		if err != nil {
			return nil, err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	}
	return nil, fmt.Errorf("missing signing key: pass --private-key, set %s, %s or %s, or create %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, defaultPrivateKeyHintPath)
}

// resolveKeystoreFile accepts either a key file or a geth keystore
// directory. In a directory the file whose name ends with the expected
// address wins; without an expected address the directory must hold one key.
func resolveKeystoreFile(path string, expected common.Address) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("read keystore path: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("read keystore directory: %w", err)
	}
	var candidates []string
	suffix := strings.ToLower(strings.TrimPrefix(expected.Hex(), "0x"))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if expected != (common.Address{}) && !strings.HasSuffix(strings.ToLower(entry.Name()), suffix) {
			continue
		}
		candidates = append(candidates, filepath.Join(path, entry.Name()))
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no keystore file found in %s", path)
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("keystore directory %s holds %d keys; set %s to pick one", path, len(candidates), EnvDeployer)
	}
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func defaultPrivateKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultPrivateKeyRelativePath)
}

func discoverDefaultPrivateKeyFile() string {
	path := defaultPrivateKeyPath()
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
