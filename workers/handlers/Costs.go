package handlers

import (
	"net/http"
	"strconv"

	"gobridgecore/types"
)

// Estimate prices a payload of ?size bytes on ?chain, with blob gas when ?blob=true
func (a *API) Estimate(w http.ResponseWriter, r *http.Request) {
	chain, ok := queryUint(w, r, "chain", 0)
	if !ok {
		return
	}
	size, ok := queryUint(w, r, "size", 0)
	if !ok {
		return
	}
	useBlob := false
	if s := r.URL.Query().Get("blob"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			responseFail(w, "blob", "blob must be true or false", http.StatusBadRequest)
			return
		}
		useBlob = v
	}

	est, err := a.optimizer.Estimate(chain, size, useBlob)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, est, http.StatusOK)
}

// Decide reports the encoding the messenger would pick for a payload of ?size bytes
func (a *API) Decide(w http.ResponseWriter, r *http.Request) {
	chain, ok := queryUint(w, r, "chain", 0)
	if !ok {
		return
	}
	size, ok := queryUint(w, r, "size", 0)
	if !ok {
		return
	}
	dt := types.DataTypeBinary
	if s := r.URL.Query().Get("dataType"); s != "" {
		if dt, ok = dataType(w, "dataType", s); !ok {
			return
		}
	}
	if _, err := a.registry.Chain(chain); err != nil {
		a.responseError(w, r, err)
		return
	}

	responseJSON(w, &DecisionResponse{
		ChainID:      chain,
		Size:         size,
		DataType:     dt,
		UseBlob:      a.optimizer.DecideEncodingFor(chain, size, dt),
		CalldataCost: a.optimizer.CalldataCost(chain, size),
		BlobCost:     a.optimizer.BlobCost(chain, size),
	}, http.StatusOK)
}

func (a *API) optimizerState() *OptimizerResponse {
	return &OptimizerResponse{
		SizeThreshold:    a.optimizer.SizeThreshold(),
		EfficiencyFactor: a.optimizer.EfficiencyFactor(),
	}
}

func (a *API) GetOptimizer(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, a.optimizerState(), http.StatusOK)
}

// UpdateOptimizer changes the size threshold and efficiency factor, absent fields are kept
func (a *API) UpdateOptimizer(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	var req OptimizerRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if req.EfficiencyFactor != nil && *req.EfficiencyFactor > 100 {
		responseFail(w, "efficiencyFactor", "efficiency factor above 100", http.StatusBadRequest)
		return
	}

	if req.SizeThreshold != nil {
		if err := a.optimizer.SetSizeThreshold(caller, *req.SizeThreshold); err != nil {
			a.responseError(w, r, err)
			return
		}
	}
	if req.EfficiencyFactor != nil {
		if err := a.optimizer.SetEfficiencyFactor(caller, *req.EfficiencyFactor); err != nil {
			a.responseError(w, r, err)
			return
		}
	}
	responseJSON(w, a.optimizerState(), http.StatusOK)
}

func (a *API) GetGasPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUint(w, r, "id")
	if !ok {
		return
	}
	if _, err := a.registry.Chain(id); err != nil {
		a.responseError(w, r, err)
		return
	}
	gas, blob := a.optimizer.GasPrices(id)
	responseJSON(w, &GasPriceResponse{ChainID: id, GasPrice: gas, BlobGasPrice: blob}, http.StatusOK)
}

// SetGasPrice overrides the prices of one chain, an absent price keeps the current one
func (a *API) SetGasPrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, ok := urlUint(w, r, "id")
	if !ok {
		return
	}
	var req GasPriceRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	if err := a.optimizer.SetGasPrice(caller, id, toBig(req.GasPrice), toBig(req.BlobGasPrice)); err != nil {
		a.responseError(w, r, err)
		return
	}
	a.GetGasPrice(w, r)
}
