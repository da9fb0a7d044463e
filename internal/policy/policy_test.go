package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "deploy"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"networks  LIST"}, "networks list"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"plan"}, "deploy"); !clierr.HasCode(err, clierr.CodeBlocked) {
		t.Fatalf("expected command to be blocked, got %v", err)
	}
}

func TestCheckNetworkAllowed(t *testing.T) {
	if err := CheckNetworkAllowed(nil, 1); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckNetworkAllowed([]int64{8453, 31337}, 31337); err != nil {
		t.Fatalf("expected network to be allowed: %v", err)
	}
	if err := CheckNetworkAllowed([]int64{8453}, 1); !clierr.HasCode(err, clierr.CodeBlocked) {
		t.Fatalf("expected mainnet to be blocked, got %v", err)
	}
}
