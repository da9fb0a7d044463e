// Package pooladdr derives Uniswap-style v2 pair and v3 pool addresses the
// way the Router does off-chain, from a factory address and an init-code hash.
package pooladdr

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Common v3 fee tiers, in hundredths of a bip.
const (
	FeeLow    uint32 = 500
	FeeMedium uint32 = 3000
	FeeHigh   uint32 = 10000
)

// SortTokens returns the pair in factory order (lower address first).
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// V2Pair computes the CREATE2 address of the v2 pair for tokens a and b.
func V2Pair(factory common.Address, initCodeHash common.Hash, a, b common.Address) common.Address {
	token0, token1 := SortTokens(a, b)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// V3Pool computes the CREATE2 address of the v3 pool for tokens a and b at
// the given fee tier. The salt is keccak(abi.encode(token0, token1, fee)).
func V3Pool(factory common.Address, initCodeHash common.Hash, a, b common.Address, fee uint32) common.Address {
	token0, token1 := SortTokens(a, b)
	feeWord := common.LeftPadBytes(new(big.Int).SetUint64(uint64(fee)).Bytes(), 32)
	salt := crypto.Keccak256Hash(
		common.LeftPadBytes(token0.Bytes(), 32),
		common.LeftPadBytes(token1.Bytes(), 32),
		feeWord,
	)
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}
