// Package registry keeps the catalog of destination chains and their
// cost and timing parameters.
package registry

import (
	"fmt"
	"math/big"
	"sync"

	"gobridgecore/events"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Journal persists descriptors after they are committed in memory
type Journal interface {
	SaveChain(chain *types.ChainDescriptor) error
}

type Registry struct {
	mu     sync.RWMutex
	chains map[uint64]*types.ChainDescriptor
	order  []uint64 // registration order

	journal Journal
	events  events.Emitter
	logger  log.Logger
}

func New(emitter events.Emitter, journal Journal) *Registry {
	return &Registry{
		chains:  make(map[uint64]*types.ChainDescriptor),
		journal: journal,
		events:  events.OrNop(emitter),
		logger:  log.New("module", "registry"),
	}
}

// AddChain registers a new chain as enabled
func (r *Registry) AddChain(caller types.Caller, desc types.ChainDescriptor) error {
	if err := caller.Require(types.RoleAdmin); err != nil {
		return err
	}
	if desc.BridgeEndpoint == (common.Address{}) {
		return fmt.Errorf("%w: chain %d has no bridge endpoint", types.ErrInvalidInput, desc.ChainID)
	}
	if desc.Category != "" && !desc.Category.Valid() {
		return fmt.Errorf("%w: unknown chain category %q", types.ErrInvalidInput, desc.Category)
	}
	if err := types.CheckTiming(desc.ChainID, desc.VerificationBlocks, desc.AvgBlockTime); err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.chains[desc.ChainID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: chain %d", types.ErrConflict, desc.ChainID)
	}

	chain := desc.Copy()
	chain.Enabled = true
	if chain.NativeTokenPriceUSD == nil {
		chain.NativeTokenPriceUSD = new(big.Int)
	}
	r.chains[chain.ChainID] = chain
	r.order = append(r.order, chain.ChainID)
	saved := chain.Copy()
	r.mu.Unlock()

	r.logger.Info("Chain added", "chainId", saved.ChainID, "name", saved.Name, "category", saved.Category, "blob", saved.BlobEnabled)
	r.persist(saved)
	r.events.Emit(events.New(events.ChainAdded, 0, saved.ChainID, map[string]string{
		"name":     saved.Name,
		"endpoint": saved.BridgeEndpoint.Hex(),
	}))
	return nil
}

// UpdateChain changes the mutable fields of a registered chain
func (r *Registry) UpdateChain(caller types.Caller, chainID uint64, upd types.ChainUpdate) error {
	if err := caller.Require(types.RoleAdmin); err != nil {
		return err
	}
	if upd.BridgeEndpoint == (common.Address{}) {
		return fmt.Errorf("%w: chain %d has no bridge endpoint", types.ErrInvalidInput, chainID)
	}
	if err := types.CheckTiming(chainID, upd.VerificationBlocks, upd.AvgBlockTime); err != nil {
		return err
	}

	r.mu.Lock()
	chain, ok := r.chains[chainID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: chain %d", types.ErrNotFound, chainID)
	}
	chain.BridgeEndpoint = upd.BridgeEndpoint
	chain.VerificationBlocks = upd.VerificationBlocks
	if upd.NativeTokenPriceUSD != nil {
		chain.NativeTokenPriceUSD = new(big.Int).Set(upd.NativeTokenPriceUSD)
	}
	chain.AvgBlockTime = upd.AvgBlockTime
	chain.Enabled = upd.Enabled
	chain.BlobEnabled = upd.BlobEnabled
	saved := chain.Copy()
	r.mu.Unlock()

	r.logger.Info("Chain updated", "chainId", chainID, "enabled", saved.Enabled, "blob", saved.BlobEnabled)
	r.persist(saved)
	r.events.Emit(events.New(events.ChainUpdated, 0, chainID, map[string]string{
		"enabled":  fmt.Sprintf("%t", saved.Enabled),
		"endpoint": saved.BridgeEndpoint.Hex(),
	}))
	return nil
}

// Restore loads descriptors read back from the journal, registration order is kept
func (r *Registry) Restore(chains []*types.ChainDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range chains {
		if _, ok := r.chains[c.ChainID]; !ok {
			r.order = append(r.order, c.ChainID)
		}
		r.chains[c.ChainID] = c.Copy()
	}
}

func (r *Registry) persist(chain *types.ChainDescriptor) {
	if r.journal == nil {
		return
	}
	if err := r.journal.SaveChain(chain); err != nil {
		r.logger.Error("Cannot persist chain", "chainId", chain.ChainID, "err", err)
	}
}

func (r *Registry) IsSupported(chainID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, ok := r.chains[chainID]
	return ok && chain.Enabled
}

// Chain returns a copy of the descriptor, enabled or not
func (r *Registry) Chain(chainID uint64) (*types.ChainDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, ok := r.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", types.ErrNotFound, chainID)
	}
	return chain.Copy(), nil
}

// ListSupported returns enabled chains in registration order
func (r *Registry) ListSupported() []*types.ChainDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*types.ChainDescriptor, 0, len(r.order))
	for _, id := range r.order {
		if c := r.chains[id]; c.Enabled {
			res = append(res, c.Copy())
		}
	}
	return res
}

func (r *Registry) ListSupportedIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]uint64, 0, len(r.order))
	for _, id := range r.order {
		if r.chains[id].Enabled {
			res = append(res, id)
		}
	}
	return res
}

// ListAll includes disabled chains
func (r *Registry) ListAll() []*types.ChainDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*types.ChainDescriptor, 0, len(r.order))
	for _, id := range r.order {
		res = append(res, r.chains[id].Copy())
	}
	return res
}
