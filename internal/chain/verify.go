package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/pooladdr"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
	"github.com/lmittmann/w3"
)

var (
	funcGetPair = w3.MustNewFunc("getPair(address,address)", "address")
	funcGetPool = w3.MustNewFunc("getPool(address,address,uint24)", "address")
)

// VerifyTarget names what to check on one network. Permit2 and Router are
// optional.
type VerifyTarget struct {
	Profile registry.NetworkProfile
	Permit2 common.Address
	Router  common.Address
}

type Check struct {
	Name   string `json:"name"`
	Target string `json:"target,omitempty"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type VerifyReport struct {
	NetworkID  int64   `json:"network_id"`
	RPCChainID int64   `json:"rpc_chain_id"`
	OK         bool    `json:"ok"`
	Checks     []Check `json:"checks"`
}

func (r *VerifyReport) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.OK {
		r.OK = false
	}
}

func (r VerifyReport) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c.Name)
		}
	}
	return out
}

// Verify cross-checks a network profile against live chain state: the
// endpoint serves the profile's chain, every referenced contract has code,
// and, when a reference token is configured, pair and pool addresses
// derived from the init-code hashes match what the factories report.
// A report with failed checks is returned together with a verification
// error; RPC failures abort with a network error.
func Verify(ctx context.Context, backend Backend, target VerifyTarget) (VerifyReport, error) {
	p := target.Profile
	report := VerifyReport{NetworkID: p.NetworkID, OK: true}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return report, clierr.Wrap(clierr.CodeNetwork, "read chain id", err)
	}
	report.RPCChainID = chainID.Int64()
	report.add(Check{
		Name:   "chain_id",
		Target: p.CAIP2(),
		OK:     chainID.Cmp(big.NewInt(p.NetworkID)) == 0,
		Detail: fmt.Sprintf("rpc reports chain id %s", chainID.String()),
	})
	if !report.OK {
		// Every further check would read another network's state.
		return report, failedReport(report)
	}

	code := []struct {
		name string
		addr common.Address
	}{
		{"wrapped_native_token", p.WrappedNativeToken},
		{"v2_factory", p.V2Factory},
		{"v3_factory", p.V3Factory},
		{"permit2", target.Permit2},
		{"router", target.Router},
	}
	for _, c := range code {
		if c.addr == (common.Address{}) {
			continue
		}
		body, err := backend.CodeAt(ctx, c.addr, nil)
		if err != nil {
			return report, clierr.Wrap(clierr.CodeNetwork, "read code at "+c.addr.Hex(), err)
		}
		check := Check{Name: c.name + "_code", Target: c.addr.Hex(), OK: len(body) > 0}
		if !check.OK {
			check.Detail = "no contract code at address"
		}
		report.add(check)
	}

	if p.ReferenceToken != (common.Address{}) {
		pairCheck, err := checkV2Pair(ctx, backend, p)
		if err != nil {
			return report, err
		}
		report.add(pairCheck)
		poolCheck, err := checkV3Pool(ctx, backend, p)
		if err != nil {
			return report, err
		}
		report.add(poolCheck)
	}

	if !report.OK {
		return report, failedReport(report)
	}
	return report, nil
}

func checkV2Pair(ctx context.Context, backend Backend, p registry.NetworkProfile) (Check, error) {
	derived := pooladdr.V2Pair(p.V2Factory, p.V2PairInitCodeHash, p.WrappedNativeToken, p.ReferenceToken)
	input, err := funcGetPair.EncodeArgs(p.WrappedNativeToken, p.ReferenceToken)
	if err != nil {
		return Check{}, clierr.Wrap(clierr.CodeInternal, "encode getPair", err)
	}
	var onchain common.Address
	if err := callAddress(ctx, backend, p.V2Factory, input, func(out []byte) error {
		return funcGetPair.DecodeReturns(out, &onchain)
	}); err != nil {
		return Check{}, err
	}
	return compareDerived("v2_pair_init_code_hash", derived, onchain), nil
}

func checkV3Pool(ctx context.Context, backend Backend, p registry.NetworkProfile) (Check, error) {
	fee := pooladdr.FeeMedium
	derived := pooladdr.V3Pool(p.V3Factory, p.V3PoolInitCodeHash, p.WrappedNativeToken, p.ReferenceToken, fee)
	input, err := funcGetPool.EncodeArgs(p.WrappedNativeToken, p.ReferenceToken, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return Check{}, clierr.Wrap(clierr.CodeInternal, "encode getPool", err)
	}
	var onchain common.Address
	if err := callAddress(ctx, backend, p.V3Factory, input, func(out []byte) error {
		return funcGetPool.DecodeReturns(out, &onchain)
	}); err != nil {
		return Check{}, err
	}
	return compareDerived("v3_pool_init_code_hash", derived, onchain), nil
}

func callAddress(ctx context.Context, backend Backend, to common.Address, input []byte, decode func([]byte) error) error {
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeNetwork, "call "+to.Hex(), err)
	}
	if err := decode(out); err != nil {
		return clierr.Wrap(clierr.CodeVerification, "decode response from "+to.Hex(), err)
	}
	return nil
}

func compareDerived(name string, derived, onchain common.Address) Check {
	check := Check{Name: name, Target: derived.Hex(), OK: derived == onchain}
	switch {
	case onchain == (common.Address{}):
		check.OK = false
		check.Detail = "factory has no pool for the reference pair; cannot confirm hash"
	case !check.OK:
		check.Detail = fmt.Sprintf("derived %s but factory reports %s", derived.Hex(), onchain.Hex())
	}
	return check
}

func failedReport(report VerifyReport) error {
	return clierr.New(clierr.CodeVerification, fmt.Sprintf("verification failed for network %d: %s", report.NetworkID, strings.Join(report.Failed(), ", ")))
}
