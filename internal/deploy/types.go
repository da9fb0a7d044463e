package deploy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/routerdeploy/internal/fees"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
	"github.com/ggonzalez94/routerdeploy/internal/routerargs"
)

// State is a step of a deployment run.
type State string

const (
	StateNotStarted      State = "not_started"
	StatePermit2Pending  State = "permit2_pending"
	StatePermit2Deployed State = "permit2_deployed"
	StateRouterPending   State = "router_pending"
	StateRouterDeployed  State = "router_deployed"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateRouterDeployed || s == StateFailed
}

// Contract artifact names passed to the ContractFactory.
const (
	ContractPermit2 = "Permit2"
	ContractRouter  = "UniversalRouter"
)

// ContractFactory deploys a named contract and returns its address once the
// creation transaction is included. constructorArgs is ABI-encoded calldata
// and is empty for contracts without constructor parameters.
type ContractFactory interface {
	Deploy(ctx context.Context, contract string, constructorArgs []byte) (common.Address, error)
}

// Plan is the explicit configuration of one deployment run.
type Plan struct {
	Profile registry.NetworkProfile
	Fees    fees.FeeConfig
	// ExistingPermit2, when non-zero, is reused instead of deploying Permit2.
	ExistingPermit2 common.Address
}

// Result is the observable outcome of a run. Permit2 stays set after a
// failure once it is known, so the caller can reuse it.
type Result struct {
	NetworkID     int64                             `json:"network_id"`
	State         State                             `json:"state"`
	FailedStage   State                             `json:"failed_stage,omitempty"`
	Permit2       common.Address                    `json:"permit2"`
	Permit2Reused bool                              `json:"permit2_reused"`
	Router        common.Address                    `json:"router"`
	Args          *routerargs.RouterConstructorArgs `json:"constructor_args,omitempty"`
	History       []State                           `json:"history"`
	Error         string                            `json:"error,omitempty"`
}

// Completed reports whether both contracts were confirmed.
func (r Result) Completed() bool {
	return r.State == StateRouterDeployed
}

// Partial reports a run that ended with Permit2 known but no Router.
func (r Result) Partial() bool {
	return r.State == StateFailed && r.Permit2 != (common.Address{}) && r.Router == (common.Address{})
}

func (r Result) clone() Result {
	out := r
	out.History = append([]State(nil), r.History...)
	if r.Args != nil {
		args := *r.Args
		out.Args = &args
	}
	return out
}

// StageError annotates a lower-layer failure with the stage it happened in.
type StageError struct {
	Stage State
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deployment failed at %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }
