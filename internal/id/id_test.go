package id

import "testing"

func TestParseNetworkRefVariants(t *testing.T) {
	ref, err := ParseNetworkRef("base")
	if err != nil {
		t.Fatalf("ParseNetworkRef(base) failed: %v", err)
	}
	if ref.ChainID != 8453 {
		t.Fatalf("unexpected chain id: %d", ref.ChainID)
	}

	ref, err = ParseNetworkRef("eip155:11155111")
	if err != nil {
		t.Fatalf("ParseNetworkRef(eip155:11155111) failed: %v", err)
	}
	if ref.ChainID != 11155111 {
		t.Fatalf("unexpected chain id: %d", ref.ChainID)
	}

	ref, err = ParseNetworkRef("999999")
	if err != nil {
		t.Fatalf("ParseNetworkRef(999999) failed: %v", err)
	}
	if ref.ChainID != 999999 {
		t.Fatalf("unexpected chain id: %d", ref.ChainID)
	}

	ref, err = ParseNetworkRef("Base-Sepolia")
	if err != nil {
		t.Fatalf("ParseNetworkRef(Base-Sepolia) failed: %v", err)
	}
	if ref.Slug != "base-sepolia" || ref.ChainID != 0 {
		t.Fatalf("expected slug reference, got %+v", ref)
	}
}

func TestParseNetworkRefRejectsInvalidInput(t *testing.T) {
	for _, input := range []string{"", "   ", "0", "-5", "eip155:abc", "not a network"} {
		if _, err := ParseNetworkRef(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestCAIP2(t *testing.T) {
	if got := CAIP2(8453); got != "eip155:8453" {
		t.Fatalf("unexpected caip2: %s", got)
	}
}
