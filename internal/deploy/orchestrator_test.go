package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/fees"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
	"github.com/ggonzalez94/routerdeploy/internal/routerargs"
)

type deployCall struct {
	contract string
	args     []byte
}

// fakeFactory returns deterministic addresses derived from the call and can
// be told to fail for a given contract.
type fakeFactory struct {
	mu      sync.Mutex
	calls   []deployCall
	fixed   map[string]common.Address
	failFor map[string]error
}

func (f *fakeFactory) Deploy(_ context.Context, contract string, constructorArgs []byte) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deployCall{contract: contract, args: append([]byte(nil), constructorArgs...)})
	if err, ok := f.failFor[contract]; ok {
		return common.Address{}, err
	}
	if addr, ok := f.fixed[contract]; ok {
		return addr, nil
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(contract), constructorArgs)), nil
}

func (f *fakeFactory) count(contract string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.contract == contract {
			n++
		}
	}
	return n
}

func testPlan(t *testing.T, networkID int64) Plan {
	t.Helper()
	profile, err := registry.Builtin().Resolve(networkID)
	if err != nil {
		t.Fatalf("resolve %d: %v", networkID, err)
	}
	return Plan{
		Profile: profile,
		Fees: fees.FeeConfig{
			Recipient: common.HexToAddress("0x464c7Bb0d5DA8189fD140f153535932d291F7f97"),
			RatesBps:  map[fees.TradeType]int64{fees.TradeFast: 2, fees.TradeSniper: 5, fees.TradeLimit: 5},
			BaseBps:   10_000,
		},
	}
}

func TestRunDeploysPermit2ThenRouter(t *testing.T) {
	permit2 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	factory := &fakeFactory{fixed: map[string]common.Address{ContractPermit2: permit2}}
	var observed []State
	o := New(factory, WithObserver(func(r Result) { observed = append(observed, r.State) }))

	res, err := o.Run(context.Background(), testPlan(t, registry.NetworkBase))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Completed() || res.Permit2 != permit2 || res.Permit2Reused {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Router == (common.Address{}) {
		t.Fatal("expected router address")
	}
	want := []State{StateNotStarted, StatePermit2Pending, StatePermit2Deployed, StateRouterPending, StateRouterDeployed}
	if fmt.Sprint(res.History) != fmt.Sprint(want) || fmt.Sprint(observed) != fmt.Sprint(want) {
		t.Fatalf("unexpected history: %v observed %v", res.History, observed)
	}

	if len(factory.calls) != 2 || factory.calls[0].contract != ContractPermit2 || len(factory.calls[0].args) != 0 {
		t.Fatalf("unexpected factory calls: %+v", factory.calls)
	}
	decoded, err := routerargs.Unpack(factory.calls[1].args)
	if err != nil {
		t.Fatalf("decode router args: %v", err)
	}
	if decoded.Permit2 != permit2 || *res.Args != decoded {
		t.Fatalf("router was not wired to the deployed permit2: %+v", decoded)
	}
}

func TestRunReusesExistingPermit2(t *testing.T) {
	factory := &fakeFactory{}
	plan := testPlan(t, registry.NetworkMainnet)
	plan.ExistingPermit2 = registry.CanonicalPermit2

	res, err := New(factory).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if factory.count(ContractPermit2) != 0 {
		t.Fatal("expected no Permit2 deployment when an address is supplied")
	}
	if !res.Permit2Reused || res.Permit2 != registry.CanonicalPermit2 || res.Args.Permit2 != registry.CanonicalPermit2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, s := range res.History {
		if s == StatePermit2Pending {
			t.Fatal("did not expect permit2_pending when reusing")
		}
	}
}

func TestRunPartialFailureKeepsPermit2(t *testing.T) {
	permit2 := common.HexToAddress("0xAAAaAaaaaAAAaaaaaaAaaaAAAaaAaAaaAaaaaAAA")
	netErr := clierr.Wrap(clierr.CodeNetwork, "broadcast transaction", errors.New("connection reset"))
	factory := &fakeFactory{
		fixed:   map[string]common.Address{ContractPermit2: permit2},
		failFor: map[string]error{ContractRouter: netErr},
	}

	res, err := New(factory).Run(context.Background(), testPlan(t, registry.NetworkBase))
	if err == nil {
		t.Fatal("expected router failure")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StateRouterPending {
		t.Fatalf("expected stage error at router_pending, got %v", err)
	}
	if !clierr.HasCode(err, clierr.CodeNetwork) || !errors.Is(err, netErr) {
		t.Fatalf("expected network error cause to be preserved, got %v", err)
	}
	if res.State != StateFailed || res.FailedStage != StateRouterPending {
		t.Fatalf("unexpected state: %s/%s", res.State, res.FailedStage)
	}
	if res.Permit2 != permit2 || !res.Partial() || res.Completed() {
		t.Fatalf("expected permit2 to be reported after partial failure: %+v", res)
	}
	if res.Router != (common.Address{}) {
		t.Fatal("router must not be reported as deployed")
	}
}

func TestRunPermit2FailureStopsBeforeRouter(t *testing.T) {
	factory := &fakeFactory{failFor: map[string]error{
		ContractPermit2: clierr.New(clierr.CodeDeploymentReverted, "deployment transaction reverted"),
	}}
	res, err := New(factory).Run(context.Background(), testPlan(t, registry.NetworkSepolia))
	if !clierr.HasCode(err, clierr.CodeDeploymentReverted) {
		t.Fatalf("expected reverted error, got %v", err)
	}
	if res.FailedStage != StatePermit2Pending || res.Partial() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if factory.count(ContractRouter) != 0 {
		t.Fatal("router must not be deployed after permit2 failure")
	}
}

func TestRunConfigErrorMakesNoFactoryCalls(t *testing.T) {
	factory := &fakeFactory{}
	plan := testPlan(t, registry.NetworkBase)
	plan.Fees.RatesBps[fees.TradeFast] = plan.Fees.BaseBps

	res, err := New(factory).Run(context.Background(), plan)
	if !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if res.FailedStage != StateNotStarted {
		t.Fatalf("expected failure before any deployment, got %s", res.FailedStage)
	}
	if len(factory.calls) != 0 {
		t.Fatalf("expected zero factory calls, got %d", len(factory.calls))
	}
}

func TestRunCancelledAfterPermit2(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	factory := &fakeFactory{}
	o := New(factory, WithObserver(func(r Result) {
		if r.State == StatePermit2Deployed {
			cancel()
		}
	}))

	res, err := o.Run(ctx, testPlan(t, registry.NetworkBase))
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if res.FailedStage != StateRouterPending || res.Permit2 == (common.Address{}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if factory.count(ContractRouter) != 0 {
		t.Fatal("router must not be deployed after cancellation")
	}

	// Re-running with the known Permit2 finishes without a second Permit2.
	plan := testPlan(t, registry.NetworkBase)
	plan.ExistingPermit2 = res.Permit2
	again, err := New(factory).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if factory.count(ContractPermit2) != 1 || !again.Completed() {
		t.Fatalf("expected exactly one permit2 deployment overall, got %d", factory.count(ContractPermit2))
	}
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	factory := &fakeFactory{}
	o := New(factory)
	networks := []int64{registry.NetworkMainnet, registry.NetworkBase, registry.NetworkSepolia}

	plans := make([]Plan, len(networks))
	for i, networkID := range networks {
		plans[i] = testPlan(t, networkID)
	}

	var wg sync.WaitGroup
	results := make([]Result, len(networks))
	errs := make([]error, len(networks))
	for i := range plans {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Run(context.Background(), plans[i])
		}(i)
	}
	wg.Wait()

	builtin := registry.Builtin()
	for i, networkID := range networks {
		if errs[i] != nil {
			t.Fatalf("network %d failed: %v", networkID, errs[i])
		}
		profile, _ := builtin.Resolve(networkID)
		args := results[i].Args
		if results[i].NetworkID != networkID || args.WETH9 != profile.WrappedNativeToken || args.V2Factory != profile.V2Factory || args.PairInitCodeHash != profile.V2PairInitCodeHash {
			t.Fatalf("network %d built with foreign constants: %+v", networkID, args)
		}
	}
}
