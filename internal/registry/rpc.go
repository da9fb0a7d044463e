package registry

import (
	"fmt"
	"strings"
)

// Default RPC endpoints for the supported networks.
// These values are used whenever neither config nor --rpc-url provides one.
var defaultRPCByChainID = map[int64]string{
	NetworkMainnet:   "https://eth.llamarpc.com",
	NetworkBase:      "https://mainnet.base.org",
	NetworkSepolia:   "https://ethereum-sepolia-rpc.publicnode.com",
	NetworkLocalFork: "http://127.0.0.1:8545",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

// ResolveRPCURL picks the first non-empty candidate (flag, then config) and
// falls back to the built-in default for the chain.
func ResolveRPCURL(chainID int64, candidates ...string) (string, error) {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c), nil
		}
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for network id %d; provide --rpc-url", chainID)
}
