package routerargs

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/fees"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
)

// RouterConstructorArgs is the exact parameter set passed to the Router
// constructor. Field order follows the contract's RouterParameters tuple.
type RouterConstructorArgs struct {
	FeeRecipient     common.Address `json:"fee_recipient"`
	FastTradeFeeBps  int64          `json:"fast_trade_fee_bps"`
	SniperFeeBps     int64          `json:"sniper_fee_bps"`
	LimitFeeBps      int64          `json:"limit_fee_bps"`
	FeeBaseBps       int64          `json:"fee_base_bps"`
	Permit2          common.Address `json:"permit2"`
	WETH9            common.Address `json:"weth9"`
	V2Factory        common.Address `json:"v2_factory"`
	V3Factory        common.Address `json:"v3_factory"`
	PairInitCodeHash common.Hash    `json:"pair_init_code_hash"`
	PoolInitCodeHash common.Hash    `json:"pool_init_code_hash"`
}

// routerParameters mirrors the ABI tuple for packing.
type routerParameters struct {
	FeeRecipient     common.Address `abi:"feeRecipient"`
	FastTradeFeeBps  *big.Int       `abi:"fastTradeFeeBps"`
	SniperFeeBps     *big.Int       `abi:"sniperFeeBps"`
	LimitFeeBps      *big.Int       `abi:"limitFeeBps"`
	FeeBaseBps       *big.Int       `abi:"feeBaseBps"`
	Permit2          common.Address `abi:"permit2"`
	Weth9            common.Address `abi:"weth9"`
	V2Factory        common.Address `abi:"v2Factory"`
	V3Factory        common.Address `abi:"v3Factory"`
	PairInitCodeHash [32]byte       `abi:"pairInitCodeHash"`
	PoolInitCodeHash [32]byte       `abi:"poolInitCodeHash"`
}

// Precheck runs every validation Build performs that does not depend on the
// Permit2 address. It lets callers fail before any network call.
func Precheck(profile registry.NetworkProfile, fee fees.FeeConfig) error {
	if err := fees.Validate(fee); err != nil {
		return err
	}
	for _, tag := range fees.TradeTypes() {
		if _, ok := fee.RatesBps[tag]; !ok {
			return clierr.Config("fees.rates_bps."+string(tag), "rate is required")
		}
	}
	for _, tag := range fee.SortedTags() {
		if !tag.Known() {
			return clierr.Config("fees.rates_bps."+string(tag), "unknown trade type")
		}
	}
	return profile.CheckRequired()
}

// Build merges a network profile, a fee config and a resolved Permit2
// address into the Router constructor arguments. It never substitutes
// defaults for missing values.
func Build(profile registry.NetworkProfile, fee fees.FeeConfig, permit2 common.Address) (RouterConstructorArgs, error) {
	if err := Precheck(profile, fee); err != nil {
		return RouterConstructorArgs{}, err
	}
	if permit2 == (common.Address{}) {
		return RouterConstructorArgs{}, clierr.Config("permit2", "address is required")
	}
	return RouterConstructorArgs{
		FeeRecipient:     fee.Recipient,
		FastTradeFeeBps:  fee.RatesBps[fees.TradeFast],
		SniperFeeBps:     fee.RatesBps[fees.TradeSniper],
		LimitFeeBps:      fee.RatesBps[fees.TradeLimit],
		FeeBaseBps:       fee.BaseBps,
		Permit2:          permit2,
		WETH9:            profile.WrappedNativeToken,
		V2Factory:        profile.V2Factory,
		V3Factory:        profile.V3Factory,
		PairInitCodeHash: profile.V2PairInitCodeHash,
		PoolInitCodeHash: profile.V3PoolInitCodeHash,
	}, nil
}

// Pack ABI-encodes the arguments as constructor calldata, ready to be
// appended to the Router creation bytecode.
func (a RouterConstructorArgs) Pack() ([]byte, error) {
	packed, err := routerABI.Constructor.Inputs.Pack(routerParameters{
		FeeRecipient:     a.FeeRecipient,
		FastTradeFeeBps:  big.NewInt(a.FastTradeFeeBps),
		SniperFeeBps:     big.NewInt(a.SniperFeeBps),
		LimitFeeBps:      big.NewInt(a.LimitFeeBps),
		FeeBaseBps:       big.NewInt(a.FeeBaseBps),
		Permit2:          a.Permit2,
		Weth9:            a.WETH9,
		V2Factory:        a.V2Factory,
		V3Factory:        a.V3Factory,
		PairInitCodeHash: a.PairInitCodeHash,
		PoolInitCodeHash: a.PoolInitCodeHash,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack router constructor args", err)
	}
	return packed, nil
}

// Unpack decodes constructor calldata produced by Pack.
func Unpack(data []byte) (RouterConstructorArgs, error) {
	values, err := routerABI.Constructor.Inputs.Unpack(data)
	if err != nil {
		return RouterConstructorArgs{}, clierr.Wrap(clierr.CodeConfig, "decode router constructor args", err)
	}
	if len(values) != 1 {
		return RouterConstructorArgs{}, clierr.New(clierr.CodeConfig, fmt.Sprintf("decode router constructor args: expected 1 value, got %d", len(values)))
	}
	p := *abi.ConvertType(values[0], new(routerParameters)).(*routerParameters)
	for _, n := range []*big.Int{p.FastTradeFeeBps, p.SniperFeeBps, p.LimitFeeBps, p.FeeBaseBps} {
		if n == nil || !n.IsInt64() {
			return RouterConstructorArgs{}, clierr.New(clierr.CodeConfig, "decode router constructor args: fee value out of range")
		}
	}
	return RouterConstructorArgs{
		FeeRecipient:     p.FeeRecipient,
		FastTradeFeeBps:  p.FastTradeFeeBps.Int64(),
		SniperFeeBps:     p.SniperFeeBps.Int64(),
		LimitFeeBps:      p.LimitFeeBps.Int64(),
		FeeBaseBps:       p.FeeBaseBps.Int64(),
		Permit2:          p.Permit2,
		WETH9:            p.Weth9,
		V2Factory:        p.V2Factory,
		V3Factory:        p.V3Factory,
		PairInitCodeHash: p.PairInitCodeHash,
		PoolInitCodeHash: p.PoolInitCodeHash,
	}, nil
}
