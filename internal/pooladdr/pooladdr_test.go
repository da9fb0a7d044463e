package pooladdr

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	mainnetV2Factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	mainnetV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v2InitCodeHash   = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
	v3InitCodeHash   = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
	usdc             = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth             = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func TestSortTokens(t *testing.T) {
	token0, token1 := SortTokens(weth, usdc)
	if token0 != usdc || token1 != weth {
		t.Fatalf("unexpected order: %s %s", token0.Hex(), token1.Hex())
	}
}

func TestV2PairMainnetUSDCWETH(t *testing.T) {
	want := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	if got := V2Pair(mainnetV2Factory, v2InitCodeHash, weth, usdc); got != want {
		t.Fatalf("unexpected pair: got %s want %s", got.Hex(), want.Hex())
	}
	if got := V2Pair(mainnetV2Factory, v2InitCodeHash, usdc, weth); got != want {
		t.Fatalf("pair must not depend on token order: %s", got.Hex())
	}
}

func TestV3PoolMainnetUSDCWETH(t *testing.T) {
	cases := map[uint32]common.Address{
		FeeLow:    common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"),
		FeeMedium: common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
	}
	for fee, want := range cases {
		if got := V3Pool(mainnetV3Factory, v3InitCodeHash, weth, usdc, fee); got != want {
			t.Fatalf("fee %d: got %s want %s", fee, got.Hex(), want.Hex())
		}
	}
}

func TestWrongInitCodeHashChangesAddress(t *testing.T) {
	good := V2Pair(mainnetV2Factory, v2InitCodeHash, weth, usdc)
	bad := V2Pair(mainnetV2Factory, v3InitCodeHash, weth, usdc)
	if good == bad {
		t.Fatal("expected different init code hash to derive a different pair")
	}
}
