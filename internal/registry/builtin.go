package registry

import "github.com/ethereum/go-ethereum/common"

const (
	NetworkMainnet   int64 = 1
	NetworkBase      int64 = 8453
	NetworkSepolia   int64 = 11155111
	NetworkLocalFork int64 = 31337
)

// Canonical Permit2 deployment shared by every chain it was deployed to.
var CanonicalPermit2 = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")

var (
	uniswapV2PairInitCodeHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
	uniswapV3PoolInitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
)

func mainnetProfile() NetworkProfile {
	return NetworkProfile{
		NetworkID:          NetworkMainnet,
		Name:               "Ethereum",
		Slug:               "ethereum",
		WrappedNativeToken: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		V2Factory:          common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		V3Factory:          common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		V2PairInitCodeHash: uniswapV2PairInitCodeHash,
		V3PoolInitCodeHash: uniswapV3PoolInitCodeHash,
		RewardsDistributor: common.HexToAddress("0x0554f068365eD43dcC98dcd7Fd7A8208a5638C72"),
		ExternalToken:      common.HexToAddress("0xf4d2888d29D722226FafA5d9B24F9164c092421E"),
		CanonicalPermit2:   CanonicalPermit2,
		ReferenceToken:     common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), // USDC
	}
}

// Builtin returns an unsealed registry holding the supported networks.
// Callers register any config-file profiles and then seal it.
func Builtin() *Registry {
	r := New()

	local := mainnetProfile()
	local.NetworkID = NetworkLocalFork
	local.Name = "Local mainnet fork (chain id 31337)"
	local.Slug = "local"

	profiles := []NetworkProfile{
		mainnetProfile(),
		{
			NetworkID:          NetworkBase,
			Name:               "Base",
			Slug:               "base",
			WrappedNativeToken: common.HexToAddress("0x4200000000000000000000000000000000000006"),
			V2Factory:          common.HexToAddress("0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6"),
			V3Factory:          common.HexToAddress("0x33128a8fC17869897dcE68Ed026d694621f6FDfD"),
			V2PairInitCodeHash: uniswapV2PairInitCodeHash,
			V3PoolInitCodeHash: uniswapV3PoolInitCodeHash,
			CanonicalPermit2:   CanonicalPermit2,
			ReferenceToken:     common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), // USDC
		},
		{
			NetworkID:          NetworkSepolia,
			Name:               "Sepolia",
			Slug:               "sepolia",
			WrappedNativeToken: common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
			V2Factory:          common.HexToAddress("0xce71f5957f481A77161F368AD6dFc61d694Cf171"),
			V3Factory:          common.HexToAddress("0x0227628f3F023bb0B980b67D528571c95c6DaC1c"),
			V2PairInitCodeHash: common.HexToHash("0xaae7dc513491fb17b541bd4a9953285ddf2bb20a773374baecc88c4ebada0767"),
			V3PoolInitCodeHash: uniswapV3PoolInitCodeHash,
			CanonicalPermit2:   CanonicalPermit2,
		},
		local,
	}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}
