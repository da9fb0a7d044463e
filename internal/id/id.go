package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	slugPattern        = regexp.MustCompile(`^[a-z][a-z0-9-]{0,63}$`)
)

// NetworkRef is a parsed user reference to a network. Exactly one of
// ChainID and Slug is set.
type NetworkRef struct {
	ChainID int64
	Slug    string
}

// Well-known aliases. Registered profiles may add their own slugs.
var chainIDByAlias = map[string]int64{
	"ethereum":  1,
	"mainnet":   1,
	"eth":       1,
	"base":      8453,
	"sepolia":   11155111,
	"local":     31337,
	"localhost": 31337,
	"hardhat":   31337,
	"fork":      31337,
}

func ParseNetworkRef(input string) (NetworkRef, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return NetworkRef{}, clierr.New(clierr.CodeUsage, "network is required")
	}
	norm := strings.ToLower(raw)

	if chainID, ok := chainIDByAlias[norm]; ok {
		return NetworkRef{ChainID: chainID}, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if chainID, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chainID <= 0 {
			return NetworkRef{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("network id must be positive: %s", input))
		}
		return NetworkRef{ChainID: chainID}, nil
	}

	if slugPattern.MatchString(norm) {
		return NetworkRef{Slug: norm}, nil
	}
	return NetworkRef{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported network input: %s", input))
}

// CAIP2 formats an EVM chain id as an eip155 CAIP-2 identifier.
func CAIP2(chainID int64) string {
	return fmt.Sprintf("eip155:%d", chainID)
}
