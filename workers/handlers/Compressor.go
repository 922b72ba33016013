package handlers

import (
	"net/http"
	"strconv"

	"gobridgecore/compressor"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi"
)

// Compress feeds the statistics used for size estimates, so it needs an API key
func (a *API) Compress(w http.ResponseWriter, r *http.Request) {
	if _, ok := authenticated(w, r); !ok {
		return
	}
	var req CompressRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	dt := compressor.Classify(req.Data)
	if req.DataType != "" {
		var ok bool
		if dt, ok = dataType(w, "dataType", req.DataType); !ok {
			return
		}
	}

	enc, err := a.compressor.Compress(req.Data, dt)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, &CompressResponse{
		DataType:       dt,
		Data:           enc,
		OriginalSize:   len(req.Data),
		CompressedSize: len(enc),
	}, http.StatusOK)
}

func (a *API) Decompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	data, err := a.compressor.Decompress(req.Data)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, &CompressResponse{
		DataType:       compressor.Classify(data),
		Data:           data,
		OriginalSize:   len(data),
		CompressedSize: len(req.Data),
	}, http.StatusOK)
}

// GetCompressor returns the parameters, statistics and dictionary of one data type
func (a *API) GetCompressor(w http.ResponseWriter, r *http.Request) {
	dt, ok := dataType(w, "type", chi.URLParam(r, "type"))
	if !ok {
		return
	}
	dict, err := a.compressor.Dictionary(dt)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	params, _ := a.compressor.Params(dt)
	stats, _ := a.compressor.Stats(dt)
	resp := &CompressorResponse{
		DataType:   dt,
		Params:     params,
		Stats:      stats,
		Dictionary: make([]hexutil.Bytes, len(dict)),
	}
	for i, p := range dict {
		resp.Dictionary[i] = p
	}
	responseJSON(w, resp, http.StatusOK)
}

func (a *API) SetCompressorParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	dt, ok := dataType(w, "type", chi.URLParam(r, "type"))
	if !ok {
		return
	}
	var req compressor.Params
	if !a.decodeBody(w, r, &req) {
		return
	}

	if err := a.compressor.SetParams(caller, dt, req); err != nil {
		a.responseError(w, r, err)
		return
	}
	a.GetCompressor(w, r)
}

func (a *API) SetDictionaryEntry(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	dt, ok := dataType(w, "type", chi.URLParam(r, "type"))
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		responseFail(w, "index", "index must be an integer", http.StatusBadRequest)
		return
	}
	var req DictionaryEntryRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	if err := a.compressor.SetDictionaryEntry(caller, dt, index, req.Pattern); err != nil {
		a.responseError(w, r, err)
		return
	}
	a.GetCompressor(w, r)
}
