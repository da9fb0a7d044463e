package app

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ggonzalez94/routerdeploy/internal/chain"
	"github.com/ggonzalez94/routerdeploy/internal/deploy"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/model"
	"github.com/ggonzalez94/routerdeploy/internal/policy"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
	"github.com/ggonzalez94/routerdeploy/internal/routerargs"
	"github.com/ggonzalez94/routerdeploy/internal/schema"
	"github.com/ggonzalez94/routerdeploy/internal/store"
	"github.com/spf13/cobra"
)

type permit2Choice struct {
	Address common.Address
	Source  string
	RunID   string
}

// choosePermit2 applies --permit2, then --resume, then --canonical-permit2.
// With none set Permit2 is deployed fresh.
func (s *runtimeState) choosePermit2(p registry.NetworkProfile, flagValue string, resume, canonical bool) (permit2Choice, []string, error) {
	var warnings []string
	set := 0
	for _, on := range []bool{strings.TrimSpace(flagValue) != "", resume, canonical} {
		if on {
			set++
		}
	}
	if set > 1 {
		warnings = append(warnings, "several permit2 sources given; using --permit2, then --resume, then --canonical-permit2")
	}

	if strings.TrimSpace(flagValue) != "" {
		addr, err := registry.ParseAddress("--permit2", flagValue)
		if err != nil {
			return permit2Choice{}, warnings, err
		}
		return permit2Choice{Address: addr, Source: model.Permit2SourceFlag}, warnings, nil
	}
	if resume {
		if err := s.ensureStore(); err != nil {
			return permit2Choice{}, warnings, err
		}
		addr, runID, ok, err := s.store.LatestPermit2(p.NetworkID)
		if err != nil {
			return permit2Choice{}, warnings, clierr.Wrap(clierr.CodeInternal, "read address book", err)
		}
		if !ok {
			return permit2Choice{}, warnings, clierr.New(clierr.CodeUsage, fmt.Sprintf("--resume: no recorded permit2 on network %d", p.NetworkID))
		}
		return permit2Choice{Address: addr, Source: model.Permit2SourceResume, RunID: runID}, warnings, nil
	}
	if canonical {
		if p.CanonicalPermit2 == (common.Address{}) {
			return permit2Choice{}, warnings, clierr.Config(fmt.Sprintf("networks[%d].canonical_permit2", p.NetworkID), "network has no canonical permit2")
		}
		return permit2Choice{Address: p.CanonicalPermit2, Source: model.Permit2SourceCanonical}, warnings, nil
	}
	return permit2Choice{Source: model.Permit2SourceDeploy}, warnings, nil
}

func (s *runtimeState) newPlanCommand() *cobra.Command {
	var networkArg, permit2Arg string
	var resume, canonical bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve and validate a deployment without sending transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := s.resolveNetwork(networkArg)
			if err != nil {
				return err
			}
			fee, err := s.settings.FeesFor(p.NetworkID)
			if err != nil {
				return err
			}
			if err := routerargs.Precheck(p, fee); err != nil {
				return err
			}
			choice, warnings, err := s.choosePermit2(p, permit2Arg, resume, canonical)
			s.lastWarnings = warnings
			if err != nil {
				return err
			}

			plan := model.DeploymentPlan{
				NetworkID:      p.NetworkID,
				Network:        p.Slug,
				Fees:           feeSummary(fee),
				Permit2Source:  choice.Source,
				Permit2:        addrOrEmpty(choice.Address),
				ResumedFromRun: choice.RunID,
			}
			if choice.Source == model.Permit2SourceDeploy {
				plan.Steps = []string{"deploy " + deploy.ContractPermit2, "deploy " + deploy.ContractRouter}
			} else {
				plan.Steps = []string{"reuse " + deploy.ContractPermit2 + " " + choice.Address.Hex(), "deploy " + deploy.ContractRouter}
				args, err := routerargs.Build(p, fee, choice.Address)
				if err != nil {
					return err
				}
				packed, err := args.Pack()
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "encode constructor arguments", err)
				}
				plan.ConstructorArgs = args
				plan.EncodedArgs = hexutil.Encode(packed)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plan, warnings, false)
		},
	}
	cmd.Flags().StringVar(&networkArg, "network", "", "Network id, name, or CAIP-2 id")
	cmd.Flags().StringVar(&permit2Arg, "permit2", "", "Reuse an existing Permit2 at this address")
	cmd.Flags().BoolVar(&resume, "resume", false, "Reuse the Permit2 recorded by the latest run on the network")
	cmd.Flags().BoolVar(&canonical, "canonical-permit2", false, "Reuse the network's canonical Permit2")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func (s *runtimeState) newDeployCommand() *cobra.Command {
	var networkArg, permit2Arg, rpcURLArg, artifactsArg string
	var keySource, privateKey, maxFeeGwei, maxPriorityFeeGwei string
	var resume, canonical, yes bool
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy Permit2 (unless reused) and the UniversalRouter",
		Annotations: map[string]string{
			schema.AnnotationSendsTransactions: "true",
			schema.AnnotationConfirmFlag:       "yes",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return clierr.New(clierr.CodeUsage, "deploy sends transactions and requires --yes")
			}
			p, err := s.resolveNetwork(networkArg)
			if err != nil {
				return err
			}
			if err := s.checkNetworkAllowed(p); err != nil {
				return err
			}
			fee, err := s.settings.FeesFor(p.NetworkID)
			if err != nil {
				return err
			}
			if err := routerargs.Precheck(p, fee); err != nil {
				return err
			}
			choice, warnings, err := s.choosePermit2(p, permit2Arg, resume, canonical)
			s.lastWarnings = warnings
			if err != nil {
				return err
			}
			rpcURL, err := s.rpcURLFor(p, rpcURLArg)
			if err != nil {
				return err
			}
			opts, err := s.executionOptions(maxFeeGwei, maxPriorityFeeGwei)
			if err != nil {
				return err
			}
			artifactsDir := s.settings.ArtifactsDir
			if strings.TrimSpace(artifactsArg) != "" {
				artifactsDir = strings.TrimSpace(artifactsArg)
			}
			if err := s.ensureStore(); err != nil {
				return err
			}

			ctx, cancel := s.commandContext()
			defer cancel()
			factory, deployer, release, err := s.runner.connect(ctx, connectRequest{
				Profile:      p,
				RPCURL:       rpcURL,
				KeySource:    keySource,
				PrivateKey:   privateKey,
				ArtifactsDir: artifactsDir,
				Options:      opts,
			}, s.logger)
			if err != nil {
				return err
			}
			defer release()

			record := store.NewRecord(store.NewRunID(), p.NetworkID, p.Slug)
			record.Deployer = deployer.Hex()
			if err := s.store.Save(record); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "persist deployment run", err)
			}
			var saveErr error
			orch := deploy.New(factory,
				deploy.WithLogger(s.logger.With("run_id", record.RunID)),
				deploy.WithObserver(func(res deploy.Result) {
					record.Apply(res)
					if err := s.store.Save(record); err != nil && saveErr == nil {
						saveErr = err
						s.logger.Warn("address book update failed", "run_id", record.RunID, "err", err)
					}
				}),
			)
			res, runErr := orch.Run(ctx, deploy.Plan{Profile: p, Fees: fee, ExistingPermit2: choice.Address})
			if saveErr != nil {
				warnings = append(warnings, "address book update failed: "+saveErr.Error())
				s.lastWarnings = warnings
			}
			outcome := deploymentOutcome(record.RunID, p, deployer, res)
			if runErr != nil {
				s.lastDetails = outcome
				if res.Partial() {
					s.lastPartial = true
					msg := fmt.Sprintf("router not deployed; permit2 is live at %s, rerun with --resume", res.Permit2.Hex())
					return clierr.Wrap(clierr.CodePartialDeployment, msg, runErr)
				}
				return runErr
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), outcome, warnings, false)
		},
	}
	cmd.Flags().StringVar(&networkArg, "network", "", "Network id, name, or CAIP-2 id")
	cmd.Flags().StringVar(&permit2Arg, "permit2", "", "Reuse an existing Permit2 at this address")
	cmd.Flags().BoolVar(&resume, "resume", false, "Reuse the Permit2 recorded by the latest run on the network")
	cmd.Flags().BoolVar(&canonical, "canonical-permit2", false, "Reuse the network's canonical Permit2")
	cmd.Flags().StringVar(&rpcURLArg, "rpc-url", "", "RPC URL override")
	cmd.Flags().StringVar(&artifactsArg, "artifacts", "", "Directory holding compiled contract artifacts")
	cmd.Flags().StringVar(&keySource, "key-source", "auto", "Signer key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "Hex private key (prefer env or keystore)")
	cmd.Flags().StringVar(&maxFeeGwei, "max-fee-gwei", "", "EIP-1559 max fee cap in gwei")
	cmd.Flags().StringVar(&maxPriorityFeeGwei, "max-priority-fee-gwei", "", "EIP-1559 priority fee cap in gwei")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm sending deployment transactions")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

// checkNetworkAllowed resolves allowed_networks against the registry and
// enforces it for p.
func (s *runtimeState) checkNetworkAllowed(p registry.NetworkProfile) error {
	allowed := make([]int64, 0, len(s.settings.AllowedNetworks))
	for _, ref := range s.settings.AllowedNetworks {
		resolved, err := s.registry.Lookup(ref)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "resolve allowed_networks entry "+ref, err)
		}
		allowed = append(allowed, resolved.NetworkID)
	}
	return policy.CheckNetworkAllowed(allowed, p.NetworkID)
}

func (s *runtimeState) executionOptions(maxFeeGwei, maxPriorityFeeGwei string) (chain.Options, error) {
	opts := s.settings.Execution
	if strings.TrimSpace(maxFeeGwei) != "" {
		opts.MaxFeeGwei = strings.TrimSpace(maxFeeGwei)
	}
	if strings.TrimSpace(maxPriorityFeeGwei) != "" {
		opts.MaxPriorityFeeGwei = strings.TrimSpace(maxPriorityFeeGwei)
	}
	for flag, v := range map[string]string{"--max-fee-gwei": opts.MaxFeeGwei, "--max-priority-fee-gwei": opts.MaxPriorityFeeGwei} {
		if v == "" {
			continue
		}
		if _, err := chain.ParseGwei(v); err != nil {
			return chain.Options{}, clierr.Wrap(clierr.CodeUsage, "invalid "+flag, err)
		}
	}
	return opts, nil
}

func deploymentOutcome(runID string, p registry.NetworkProfile, deployer common.Address, res deploy.Result) model.DeploymentOutcome {
	history := make([]string, 0, len(res.History))
	for _, st := range res.History {
		history = append(history, string(st))
	}
	return model.DeploymentOutcome{
		RunID:         runID,
		NetworkID:     p.NetworkID,
		Network:       p.Slug,
		State:         string(res.State),
		Deployer:      deployer.Hex(),
		Permit2:       addrOrEmpty(res.Permit2),
		Permit2Reused: res.Permit2Reused,
		Router:        addrOrEmpty(res.Router),
		History:       history,
	}
}

func (s *runtimeState) newDeploymentsCommand() *cobra.Command {
	root := &cobra.Command{Use: "deployments", Short: "Recorded deployment runs"}

	var networkArg string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent deployment runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var networkID int64
			if strings.TrimSpace(networkArg) != "" {
				p, err := s.resolveNetwork(networkArg)
				if err != nil {
					return err
				}
				networkID = p.NetworkID
			}
			if err := s.ensureStore(); err != nil {
				return err
			}
			items, err := s.store.List(networkID, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list deployments", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, false)
		},
	}
	list.Flags().StringVar(&networkArg, "network", "", "Only runs on this network")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum runs to return")
	root.AddCommand(list)

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one deployment run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.ensureStore(); err != nil {
				return err
			}
			rec, err := s.store.Get(strings.TrimSpace(args[0]))
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeInternal, "read deployment", err)
			}
			s.lastNetworkID = rec.NetworkID
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rec, nil, rec.Status == store.StatusFailed && rec.Permit2 != "" && rec.Router == "")
		},
	}
	root.AddCommand(show)
	return root
}
