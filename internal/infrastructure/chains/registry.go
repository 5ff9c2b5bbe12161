package chains

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
	"github.com/fundbridge/fundbridge/internal/infrastructure/config"
)

// Registry is the static catalog of supported chains. Built once from
// configuration at process start; lookups never mutate it.
type Registry struct {
	byID     map[uint64]entities.Chain
	byDomain map[uint32]entities.Chain
}

// NewRegistry validates the configured chains and indexes them by chain id and
// CCTP domain. Duplicate ids or domains are configuration errors.
func NewRegistry(configs map[string]config.ChainConfig) (*Registry, error) {
	r := &Registry{
		byID:     make(map[uint64]entities.Chain, len(configs)),
		byDomain: make(map[uint32]entities.Chain, len(configs)),
	}

	for key, cc := range configs {
		chain, err := chainFromConfig(cc)
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", key, err)
		}
		if existing, ok := r.byID[chain.ID]; ok {
			return nil, fmt.Errorf("chain %q: chain id %d already registered for %q", key, chain.ID, existing.Name)
		}
		if existing, ok := r.byDomain[chain.Domain]; ok {
			return nil, fmt.Errorf("chain %q: domain %d already registered for %q", key, chain.Domain, existing.Name)
		}
		r.byID[chain.ID] = chain
		r.byDomain[chain.Domain] = chain
	}

	if len(r.byID) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}
	return r, nil
}

// ChainByID looks up a chain by its native chain id. Callers must treat a miss
// as a hard error, never substitute a default.
func (r *Registry) ChainByID(id uint64) (entities.Chain, bool) {
	chain, ok := r.byID[id]
	return chain, ok
}

// ChainByDomain looks up a chain by its CCTP domain
func (r *Registry) ChainByDomain(domain uint32) (entities.Chain, bool) {
	chain, ok := r.byDomain[domain]
	return chain, ok
}

// Chains returns all registered chains ordered by chain id
func (r *Registry) Chains() []entities.Chain {
	out := make([]entities.Chain, 0, len(r.byID))
	for _, chain := range r.byID {
		out = append(out, chain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func chainFromConfig(cc config.ChainConfig) (entities.Chain, error) {
	for _, addr := range []struct {
		name  string
		value string
	}{
		{"token_messenger", cc.TokenMessenger},
		{"message_transmitter", cc.MessageTransmitter},
		{"stable_token", cc.StableToken},
	} {
		if !common.IsHexAddress(addr.value) {
			return entities.Chain{}, fmt.Errorf("%s %q is not a valid address", addr.name, addr.value)
		}
	}

	chain := entities.Chain{
		ID:                   cc.ChainID,
		Name:                 cc.Name,
		Domain:               cc.Domain,
		RPCEndpoint:          cc.RPC,
		ExplorerURL:          cc.Explorer,
		TokenMessenger:       common.HexToAddress(cc.TokenMessenger),
		MessageTransmitter:   common.HexToAddress(cc.MessageTransmitter),
		StableToken:          common.HexToAddress(cc.StableToken),
		SupportsFastTransfer: cc.FastTransfer,
	}
	if err := chain.Validate(); err != nil {
		return entities.Chain{}, err
	}
	return chain, nil
}
