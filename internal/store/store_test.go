package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/routerdeploy/internal/deploy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "deployments.db"), filepath.Join(dir, "deployments.lock"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreSaveGetList(t *testing.T) {
	s := openTestStore(t)

	rec := NewRecord(NewRunID(), 8453, "base")
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	router := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	rec.Apply(deploy.Result{
		NetworkID: 8453,
		State:     deploy.StateRouterDeployed,
		Permit2:   common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"),
		Router:    router,
	})
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}

	got, err := s.Get(rec.RunID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusCompleted || got.Router != router.Hex() {
		t.Fatalf("unexpected record: %+v", got)
	}

	other := NewRecord(NewRunID(), 1, "ethereum")
	if err := s.Save(other); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	base, err := s.List(8453, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(base) != 1 || base[0].RunID != rec.RunID {
		t.Fatalf("expected only the base run, got %+v", base)
	}
	all, err := s.List(0, 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected two runs, got %d err=%v", len(all), err)
	}
}

func TestStoreGetMissingRun(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("missing"); err == nil {
		t.Fatal("expected missing run error")
	}
}

func TestLatestPermit2FromPartialRun(t *testing.T) {
	s := openTestStore(t)

	if _, _, ok, err := s.LatestPermit2(8453); err != nil || ok {
		t.Fatalf("expected no permit2 yet, ok=%v err=%v", ok, err)
	}

	permit2 := common.HexToAddress("0xAAAaAaaaaAAAaaaaaaAaaaAAAaaAaAaaAaaaaAAA")
	rec := NewRecord(NewRunID(), 8453, "base")
	rec.Apply(deploy.Result{
		NetworkID:   8453,
		State:       deploy.StateFailed,
		FailedStage: deploy.StateRouterPending,
		Permit2:     permit2,
		Error:       "broadcast transaction: connection reset",
	})
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", rec.Status)
	}

	time.Sleep(time.Millisecond)
	later := NewRecord(NewRunID(), 8453, "base")
	later.Apply(deploy.Result{NetworkID: 8453, State: deploy.StateFailed, FailedStage: deploy.StateNotStarted})
	if err := s.Save(later); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, runID, ok, err := s.LatestPermit2(8453)
	if err != nil || !ok {
		t.Fatalf("expected permit2, ok=%v err=%v", ok, err)
	}
	if got != permit2 || runID != rec.RunID {
		t.Fatalf("unexpected permit2 %s from run %s", got.Hex(), runID)
	}
	if _, _, ok, _ := s.LatestPermit2(1); ok {
		t.Fatal("permit2 must not leak across networks")
	}
}
