package app

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/routerdeploy/internal/chain"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/fees"
	"github.com/ggonzalez94/routerdeploy/internal/model"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newNetworksCommand() *cobra.Command {
	root := &cobra.Command{Use: "networks", Short: "Supported network profiles"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered network profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := s.registry.List()
			items := make([]model.NetworkSummary, 0, len(profiles))
			for _, p := range profiles {
				items = append(items, s.networkSummary(p))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, false)
		},
	}
	root.AddCommand(list)

	var networkArg string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show one network profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.resolveNetwork(networkArg)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.networkSummary(p), nil, false)
		},
	}
	show.Flags().StringVar(&networkArg, "network", "", "Network id, name, or CAIP-2 id")
	_ = show.MarkFlagRequired("network")
	root.AddCommand(show)
	return root
}

func (s *runtimeState) newVerifyCommand() *cobra.Command {
	var networkArg, rpcURLArg, permit2Arg, routerArg, runArg string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a network profile and deployed contracts against live chain state",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.resolveNetwork(networkArg)
			if err != nil {
				return err
			}
			permit2, err := registry.ParseOptionalAddress("--permit2", permit2Arg)
			if err != nil {
				return err
			}
			router, err := registry.ParseOptionalAddress("--router", routerArg)
			if err != nil {
				return err
			}
			if strings.TrimSpace(runArg) != "" {
				if err := s.ensureStore(); err != nil {
					return err
				}
				rec, err := s.store.Get(strings.TrimSpace(runArg))
				if err != nil {
					return err
				}
				if rec.NetworkID != p.NetworkID {
					return clierr.New(clierr.CodeUsage, "deployment run belongs to another network")
				}
				if permit2 == (common.Address{}) && rec.Permit2 != "" {
					permit2 = common.HexToAddress(rec.Permit2)
				}
				if router == (common.Address{}) && rec.Router != "" {
					router = common.HexToAddress(rec.Router)
				}
			}
			rpcURL, err := s.rpcURLFor(p, rpcURLArg)
			if err != nil {
				return err
			}

			ctx, cancel := s.commandContext()
			defer cancel()
			backend, release, err := s.runner.dial(ctx, rpcURL)
			if err != nil {
				return err
			}
			defer release()

			report, err := chain.Verify(ctx, backend, chain.VerifyTarget{Profile: p, Permit2: permit2, Router: router})
			if err != nil {
				if len(report.Checks) > 0 {
					s.lastDetails = report
				}
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report, nil, false)
		},
	}
	cmd.Flags().StringVar(&networkArg, "network", "", "Network id, name, or CAIP-2 id")
	cmd.Flags().StringVar(&rpcURLArg, "rpc-url", "", "RPC URL override")
	cmd.Flags().StringVar(&permit2Arg, "permit2", "", "Permit2 address to check for code")
	cmd.Flags().StringVar(&routerArg, "router", "", "Router address to check for code")
	cmd.Flags().StringVar(&runArg, "run", "", "Take Permit2 and Router addresses from a recorded deployment run")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func (s *runtimeState) resolveNetwork(input string) (registry.NetworkProfile, error) {
	if strings.TrimSpace(input) == "" {
		return registry.NetworkProfile{}, clierr.New(clierr.CodeUsage, "--network is required")
	}
	p, err := s.registry.Lookup(input)
	if err != nil {
		return registry.NetworkProfile{}, err
	}
	s.lastNetworkID = p.NetworkID
	return p, nil
}

func (s *runtimeState) rpcURLFor(p registry.NetworkProfile, override string) (string, error) {
	url, err := registry.ResolveRPCURL(p.NetworkID, override, s.settings.RPCURLs[p.NetworkID])
	if err != nil {
		return "", clierr.Wrap(clierr.CodeConfig, "resolve rpc url", err)
	}
	return url, nil
}

func (s *runtimeState) networkSummary(p registry.NetworkProfile) model.NetworkSummary {
	_, hasFees := s.settings.Fees[p.NetworkID]
	rpc, _ := registry.DefaultRPCURL(p.NetworkID)
	if configured := strings.TrimSpace(s.settings.RPCURLs[p.NetworkID]); configured != "" {
		rpc = configured
	}
	return model.NetworkSummary{
		NetworkID:          p.NetworkID,
		CAIP2:              p.CAIP2(),
		Name:               p.Name,
		Slug:               p.Slug,
		WrappedNativeToken: p.WrappedNativeToken.Hex(),
		V2Factory:          p.V2Factory.Hex(),
		V3Factory:          p.V3Factory.Hex(),
		V2PairInitCodeHash: p.V2PairInitCodeHash.Hex(),
		V3PoolInitCodeHash: p.V3PoolInitCodeHash.Hex(),
		RewardsDistributor: addrOrEmpty(p.RewardsDistributor),
		ExternalToken:      addrOrEmpty(p.ExternalToken),
		CanonicalPermit2:   addrOrEmpty(p.CanonicalPermit2),
		ReferenceToken:     addrOrEmpty(p.ReferenceToken),
		DefaultRPC:         rpc,
		FeesConfigured:     hasFees,
	}
}

func feeSummary(fee fees.FeeConfig) model.FeeSummary {
	summary := model.FeeSummary{Recipient: fee.Recipient.Hex(), BaseBps: fee.BaseBps}
	for _, tag := range fee.SortedTags() {
		summary.Rates = append(summary.Rates, model.FeeRate{
			TradeType: string(tag),
			Bps:       fee.RatesBps[tag],
			Percent:   fee.Percent(tag).String(),
		})
	}
	return summary
}

func addrOrEmpty(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
