// Package directory holds the per-chain deployment addresses the classifiers
// use to decide which pools belong to which protocol.
package directory

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

// Directory answers deployment lookups. Unknown chains, protocols and
// addresses yield empty results, never errors.
type Directory interface {
	NativeAsset(chainID types.ChainID) (common.Address, bool)
	SwapFactories(chainID types.ChainID, protocol types.Protocol) []types.Factory
	LendingPools(chainID types.ChainID, protocol types.Protocol) []types.AddressGroup
	FactoryByAddress(chainID types.ChainID, protocol types.Protocol, address common.Address) (types.Factory, bool)
}

// Chain is the static deployment table of one network
type Chain struct {
	NativeAsset   common.Address
	SwapFactories map[types.Protocol][]types.Factory
	LendingPools  map[types.Protocol][]types.AddressGroup
}

// Static is a Directory backed by in-memory tables
type Static struct {
	mu     sync.RWMutex
	chains map[types.ChainID]*Chain
}

// New creates a directory from the given chain tables
func New(chains map[types.ChainID]Chain) *Static {
	s := &Static{chains: make(map[types.ChainID]*Chain, len(chains))}
	for id, c := range chains {
		cp := Chain{
			NativeAsset:   c.NativeAsset,
			SwapFactories: make(map[types.Protocol][]types.Factory, len(c.SwapFactories)),
			LendingPools:  make(map[types.Protocol][]types.AddressGroup, len(c.LendingPools)),
		}
		for p, f := range c.SwapFactories {
			cp.SwapFactories[p] = append([]types.Factory(nil), f...)
		}
		for p, g := range c.LendingPools {
			cp.LendingPools[p] = append([]types.AddressGroup(nil), g...)
		}
		s.chains[id] = &cp
	}
	return s
}

// Default returns the directory of known mainnet deployments
func Default() *Static {
	return New(knownChains)
}

// AddFactory registers an additional swap factory, e.g. a fork supplied by config
func (s *Static) AddFactory(chainID types.ChainID, protocol types.Protocol, factory types.Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chains[chainID]
	if !ok {
		c = &Chain{
			SwapFactories: make(map[types.Protocol][]types.Factory),
			LendingPools:  make(map[types.Protocol][]types.AddressGroup),
		}
		s.chains[chainID] = c
	}
	for _, f := range c.SwapFactories[protocol] {
		if f.Address == factory.Address {
			return
		}
	}
	c.SwapFactories[protocol] = append(c.SwapFactories[protocol], factory)
}

func (s *Static) NativeAsset(chainID types.ChainID) (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chains[chainID]
	if !ok || c.NativeAsset == (common.Address{}) {
		return common.Address{}, false
	}
	return c.NativeAsset, true
}

func (s *Static) SwapFactories(chainID types.ChainID, protocol types.Protocol) []types.Factory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chains[chainID]
	if !ok {
		return nil
	}
	return append([]types.Factory(nil), c.SwapFactories[protocol]...)
}

func (s *Static) LendingPools(chainID types.ChainID, protocol types.Protocol) []types.AddressGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chains[chainID]
	if !ok {
		return nil
	}
	return append([]types.AddressGroup(nil), c.LendingPools[protocol]...)
}

// FactoryByAddress reports the factory with the given address, if it is a
// known deployment of protocol on chainID
func (s *Static) FactoryByAddress(chainID types.ChainID, protocol types.Protocol, address common.Address) (types.Factory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chains[chainID]
	if !ok || address == (common.Address{}) {
		return types.Factory{}, false
	}
	for _, f := range c.SwapFactories[protocol] {
		if f.Address == address {
			return f, true
		}
	}
	return types.Factory{}, false
}

// Chains lists the chain IDs with a deployment table
func (s *Static) Chains() []types.ChainID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]types.ChainID, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	return ids
}
