package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/id"
)

// NetworkProfile holds the immutable on-chain constants the Router is
// parameterized with on one network. Optional addresses are zero when absent.
type NetworkProfile struct {
	NetworkID          int64          `json:"network_id"`
	Name               string         `json:"name"`
	Slug               string         `json:"slug"`
	WrappedNativeToken common.Address `json:"wrapped_native_token"`
	V2Factory          common.Address `json:"v2_factory"`
	V3Factory          common.Address `json:"v3_factory"`
	V2PairInitCodeHash common.Hash    `json:"v2_pair_init_code_hash"`
	V3PoolInitCodeHash common.Hash    `json:"v3_pool_init_code_hash"`
	RewardsDistributor common.Address `json:"rewards_distributor,omitempty"`
	ExternalToken      common.Address `json:"external_token,omitempty"`
	CanonicalPermit2   common.Address `json:"canonical_permit2,omitempty"`
	ReferenceToken     common.Address `json:"reference_token,omitempty"`
}

// CAIP2 returns the eip155 chain reference of the profile.
func (p NetworkProfile) CAIP2() string {
	return fmt.Sprintf("eip155:%d", p.NetworkID)
}

// CheckRequired verifies every field the Router constructor depends on is set.
func (p NetworkProfile) CheckRequired() error {
	if p.NetworkID <= 0 {
		return clierr.Config("network_id", "must be a positive chain id")
	}
	prefix := fmt.Sprintf("networks[%d].", p.NetworkID)
	addrs := []struct {
		field string
		value common.Address
	}{
		{"wrapped_native_token", p.WrappedNativeToken},
		{"v2_factory", p.V2Factory},
		{"v3_factory", p.V3Factory},
	}
	for _, a := range addrs {
		if a.value == (common.Address{}) {
			return clierr.Config(prefix+a.field, "address is required")
		}
	}
	if p.V2PairInitCodeHash == (common.Hash{}) {
		return clierr.Config(prefix+"v2_pair_init_code_hash", "hash is required")
	}
	if p.V3PoolInitCodeHash == (common.Hash{}) {
		return clierr.Config(prefix+"v3_pool_init_code_hash", "hash is required")
	}
	return nil
}

// Registry maps network ids to profiles. Registration is append-only and
// closes once Seal is called.
type Registry struct {
	mu       sync.RWMutex
	profiles map[int64]NetworkProfile
	sealed   bool
}

func New() *Registry {
	return &Registry{profiles: map[int64]NetworkProfile{}}
}

func (r *Registry) Register(p NetworkProfile) error {
	if err := p.CheckRequired(); err != nil {
		return err
	}
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	if p.Slug == "" {
		p.Slug = fmt.Sprintf("chain-%d", p.NetworkID)
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = p.Slug
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return clierr.New(clierr.CodeInternal, fmt.Sprintf("register network %d: registry is sealed", p.NetworkID))
	}
	if _, exists := r.profiles[p.NetworkID]; exists {
		return clierr.Config(fmt.Sprintf("networks[%d]", p.NetworkID), "network id is already registered")
	}
	for _, existing := range r.profiles {
		if existing.Slug == p.Slug {
			return clierr.Config(fmt.Sprintf("networks[%d].slug", p.NetworkID), fmt.Sprintf("slug %q is already used by network %d", p.Slug, existing.NetworkID))
		}
	}
	r.profiles[p.NetworkID] = p
	return nil
}

// Seal stops further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Resolve returns a copy of the profile registered for networkID.
func (r *Registry) Resolve(networkID int64) (NetworkProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[networkID]
	if !ok {
		return NetworkProfile{}, clierr.UnknownNetwork(networkID)
	}
	return p, nil
}

// Lookup resolves a user-supplied network reference: a numeric id, an
// eip155 CAIP-2 id, a well-known alias, or a registered slug.
func (r *Registry) Lookup(input string) (NetworkProfile, error) {
	ref, err := id.ParseNetworkRef(input)
	if err != nil {
		return NetworkProfile{}, err
	}
	if ref.ChainID != 0 {
		return r.Resolve(ref.ChainID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if p.Slug == ref.Slug {
			return p, nil
		}
	}
	return NetworkProfile{}, clierr.New(clierr.CodeUnknownNetwork, fmt.Sprintf("unknown network: no profile registered for %q", input))
}

func (r *Registry) List() []NetworkProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NetworkProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetworkID < out[j].NetworkID })
	return out
}
