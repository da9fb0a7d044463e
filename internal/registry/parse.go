package registry

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
)

var hashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ParseAddress parses a 20-byte hex address. Mixed-case input must carry a
// valid EIP-55 checksum; all-lower and all-upper input is accepted as is.
func ParseAddress(field, raw string) (common.Address, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return common.Address{}, clierr.Config(field, "address is required")
	}
	if !strings.HasPrefix(clean, "0x") || !common.IsHexAddress(clean) {
		return common.Address{}, clierr.Config(field, "malformed address "+clean)
	}
	addr := common.HexToAddress(clean)
	body := clean[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex() != clean {
		return common.Address{}, clierr.Config(field, "bad EIP-55 checksum for "+clean+" (expected "+addr.Hex()+")")
	}
	return addr, nil
}

// ParseOptionalAddress is ParseAddress that maps empty input to the zero address.
func ParseOptionalAddress(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	return ParseAddress(field, raw)
}

// ParseHash parses an exactly 32-byte 0x-prefixed hash.
func ParseHash(field, raw string) (common.Hash, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return common.Hash{}, clierr.Config(field, "hash is required")
	}
	if !hashPattern.MatchString(clean) {
		return common.Hash{}, clierr.Config(field, "hash must be exactly 32 bytes of 0x-prefixed hex")
	}
	return common.HexToHash(clean), nil
}
