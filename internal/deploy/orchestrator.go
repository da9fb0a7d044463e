package deploy

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/routerargs"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers a callback invoked with a snapshot of the result
// after every state transition.
func WithObserver(fn func(Result)) Option {
	return func(o *Orchestrator) {
		o.observe = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator sequences the Permit2 and Router deployments. It keeps no
// per-run state, so one instance may serve concurrent runs on different
// networks.
type Orchestrator struct {
	factory ContractFactory
	observe func(Result)
	logger  *slog.Logger
}

func New(factory ContractFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory: factory,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one deployment. It never retries: the first failure ends the
// run in StateFailed and is returned as a *StageError.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (Result, error) {
	r := &run{
		o:      o,
		result: Result{NetworkID: plan.Profile.NetworkID},
		logger: o.logger.With(slog.Int64("network_id", plan.Profile.NetworkID)),
	}
	r.enter(StateNotStarted)

	if o.factory == nil {
		return r.fail(StateNotStarted, clierr.New(clierr.CodeInternal, "missing contract factory"))
	}
	fee := plan.Fees.Clone()
	if err := routerargs.Precheck(plan.Profile, fee); err != nil {
		return r.fail(StateNotStarted, err)
	}

	if plan.ExistingPermit2 != (common.Address{}) {
		r.result.Permit2 = plan.ExistingPermit2
		r.result.Permit2Reused = true
		r.enter(StatePermit2Deployed)
	} else {
		r.enter(StatePermit2Pending)
		if err := ctx.Err(); err != nil {
			return r.fail(StatePermit2Pending, cancelled(err))
		}
		addr, err := o.factory.Deploy(ctx, ContractPermit2, nil)
		if err != nil {
			return r.fail(StatePermit2Pending, err)
		}
		if addr == (common.Address{}) {
			return r.fail(StatePermit2Pending, clierr.New(clierr.CodeInternal, "factory returned zero address for Permit2"))
		}
		r.result.Permit2 = addr
		r.enter(StatePermit2Deployed)
	}

	r.enter(StateRouterPending)
	if err := ctx.Err(); err != nil {
		return r.fail(StateRouterPending, cancelled(err))
	}
	args, err := routerargs.Build(plan.Profile, fee, r.result.Permit2)
	if err != nil {
		return r.fail(StateRouterPending, err)
	}
	r.result.Args = &args
	packed, err := args.Pack()
	if err != nil {
		return r.fail(StateRouterPending, err)
	}
	addr, err := o.factory.Deploy(ctx, ContractRouter, packed)
	if err != nil {
		return r.fail(StateRouterPending, err)
	}
	if addr == (common.Address{}) {
		return r.fail(StateRouterPending, clierr.New(clierr.CodeInternal, "factory returned zero address for UniversalRouter"))
	}
	r.result.Router = addr
	r.enter(StateRouterDeployed)
	return r.result.clone(), nil
}

type run struct {
	o      *Orchestrator
	result Result
	logger *slog.Logger
}

func (r *run) enter(state State) {
	r.result.State = state
	r.result.History = append(r.result.History, state)
	r.logger.Info("deployment state",
		slog.String("stage", string(state)),
		slog.String("permit2", addrAttr(r.result.Permit2)),
		slog.String("router", addrAttr(r.result.Router)),
	)
	r.notify()
}

func (r *run) fail(stage State, cause error) (Result, error) {
	r.result.FailedStage = stage
	r.result.Error = cause.Error()
	r.result.State = StateFailed
	r.result.History = append(r.result.History, StateFailed)
	r.logger.Error("deployment failed",
		slog.String("stage", string(stage)),
		slog.String("permit2", addrAttr(r.result.Permit2)),
		slog.String("error", cause.Error()),
	)
	r.notify()
	return r.result.clone(), &StageError{Stage: stage, Cause: cause}
}

func (r *run) notify() {
	if r.o.observe != nil {
		r.o.observe(r.result.clone())
	}
}

func cancelled(err error) error {
	return clierr.Wrap(clierr.CodeTimeout, "deployment interrupted", err)
}

func addrAttr(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
