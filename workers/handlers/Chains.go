package handlers

import (
	"net/http"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
)

// ListChains returns the enabled chains, or every registered chain with ?all=true
func (a *API) ListChains(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		responseJSON(w, a.registry.ListAll(), http.StatusOK)
		return
	}
	responseJSON(w, a.registry.ListSupported(), http.StatusOK)
}

func (a *API) GetChain(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUint(w, r, "id")
	if !ok {
		return
	}
	chain, err := a.registry.Chain(id)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, chain, http.StatusOK)
}

func (a *API) AddChain(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	var req ChainRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	endpoint, ok := address(w, "bridgeEndpoint", req.BridgeEndpoint)
	if !ok {
		return
	}
	var rollup common.Address
	if req.RollupContract != "" {
		if rollup, ok = address(w, "rollupContract", req.RollupContract); !ok {
			return
		}
	}

	err := a.registry.AddChain(caller, types.ChainDescriptor{
		ChainID:             req.ChainID,
		Name:                req.Name,
		Category:            req.Category,
		BridgeEndpoint:      endpoint,
		RollupContract:      rollup,
		VerificationBlocks:  req.VerificationBlocks,
		GasToken:            req.GasToken,
		NativeTokenPriceUSD: toBig(req.NativeTokenPriceUSD),
		AvgBlockTime:        req.AvgBlockTime,
		BlobEnabled:         req.BlobEnabled,
		MaxMessageSize:      req.MaxMessageSize,
	})
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	chain, err := a.registry.Chain(req.ChainID)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, chain, http.StatusCreated)
}

func (a *API) UpdateChain(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, ok := urlUint(w, r, "id")
	if !ok {
		return
	}
	var req ChainUpdateRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	endpoint, ok := address(w, "bridgeEndpoint", req.BridgeEndpoint)
	if !ok {
		return
	}

	err := a.registry.UpdateChain(caller, id, types.ChainUpdate{
		BridgeEndpoint:      endpoint,
		VerificationBlocks:  req.VerificationBlocks,
		NativeTokenPriceUSD: toBig(req.NativeTokenPriceUSD),
		AvgBlockTime:        req.AvgBlockTime,
		Enabled:             req.Enabled,
		BlobEnabled:         req.BlobEnabled,
	})
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	chain, err := a.registry.Chain(id)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, chain, http.StatusOK)
}

// ChainStats reports message counts and the approximate number of distinct senders per chain
func (a *API) ChainStats(w http.ResponseWriter, r *http.Request) {
	resp := ChainStatsResponse{
		Total:  a.messenger.TotalMessages(),
		Chains: []ChainStats{},
	}
	for _, c := range a.registry.ListAll() {
		resp.Chains = append(resp.Chains, ChainStats{
			ChainID:       c.ChainID,
			Name:          c.Name,
			Enabled:       c.Enabled,
			Messages:      a.messenger.MessageCount(c.ChainID),
			UniqueSenders: a.messenger.UniqueSenders(c.ChainID),
		})
	}
	responseJSON(w, resp, http.StatusOK)
}
