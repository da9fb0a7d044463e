package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/routerdeploy/internal/deploy"
	"github.com/ggonzalez94/routerdeploy/internal/routerargs"
	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one deployment run in the address book.
type Record struct {
	RunID         string                            `json:"run_id"`
	NetworkID     int64                             `json:"network_id"`
	Network       string                            `json:"network"`
	Status        Status                            `json:"status"`
	Stage         deploy.State                      `json:"stage"`
	FailedStage   deploy.State                      `json:"failed_stage,omitempty"`
	Deployer      string                            `json:"deployer,omitempty"`
	Permit2       string                            `json:"permit2,omitempty"`
	Permit2Reused bool                              `json:"permit2_reused"`
	Router        string                            `json:"router,omitempty"`
	Args          *routerargs.RouterConstructorArgs `json:"constructor_args,omitempty"`
	Error         string                            `json:"error,omitempty"`
	CreatedAt     string                            `json:"created_at"`
	UpdatedAt     string                            `json:"updated_at"`
}

func NewRunID() string {
	return uuid.NewString()
}

func NewRecord(runID string, networkID int64, network string) Record {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return Record{
		RunID:     runID,
		NetworkID: networkID,
		Network:   network,
		Status:    StatusRunning,
		Stage:     deploy.StateNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply copies an orchestrator snapshot into the record. Addresses are only
// recorded once the factory confirmed them.
func (r *Record) Apply(res deploy.Result) {
	r.Stage = res.State
	r.FailedStage = res.FailedStage
	r.Permit2Reused = res.Permit2Reused
	r.Permit2 = hexOrEmpty(res.Permit2)
	r.Router = hexOrEmpty(res.Router)
	r.Error = res.Error
	if res.Args != nil {
		args := *res.Args
		r.Args = &args
	}
	switch res.State {
	case deploy.StateRouterDeployed:
		r.Status = StatusCompleted
	case deploy.StateFailed:
		r.Status = StatusFailed
	default:
		r.Status = StatusRunning
	}
	r.Touch()
}

func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
}

func hexOrEmpty(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
