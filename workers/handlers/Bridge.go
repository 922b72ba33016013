package handlers

import (
	"net/http"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
)

func (a *API) BridgeOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	var req OrderRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	user, ok := address(w, "user", req.User)
	if !ok {
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		responseFail(w, "side", err.Error(), http.StatusBadRequest)
		return
	}

	res, err := a.messenger.BridgeOrder(caller, &types.OrderBridgingRequest{
		OrderID:     req.OrderID,
		TreasuryID:  req.TreasuryID,
		User:        user,
		Side:        side,
		Amount:      toBig(req.Amount),
		Price:       toBig(req.Price),
		Expiration:  req.Expiration,
		DestChainID: req.DestChainID,
		Signature:   req.Signature,
	})
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, res, http.StatusCreated)
}

func (a *API) SettleTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	var req TradeRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	buyer, ok := address(w, "buyer", req.Buyer)
	if !ok {
		return
	}
	seller, ok := address(w, "seller", req.Seller)
	if !ok {
		return
	}

	res, err := a.messenger.SettleTrade(caller, &types.TradeSettlementRequest{
		TradeID:     req.TradeID,
		Buyer:       buyer,
		Seller:      seller,
		Amount:      toBig(req.Amount),
		Price:       toBig(req.Price),
		DestChainID: req.DestChainID,
	})
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, res, http.StatusCreated)
}

func (a *API) binding(w http.ResponseWriter, r *http.Request, lookup func(common.Hash) (uint64, bool)) {
	key, err := hashParam(r, "id")
	if err != nil {
		responseFail(w, "id", err.Error(), http.StatusBadRequest)
		return
	}
	id, ok := lookup(key)
	if !ok {
		responseFail(w, "id", "not bridged", http.StatusNotFound)
		return
	}
	msg, err := a.messenger.Message(id)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, &BindingResponse{MessageID: id, Message: viewOf(msg)}, http.StatusOK)
}

// GetOrder returns the message an order was bridged with
func (a *API) GetOrder(w http.ResponseWriter, r *http.Request) {
	a.binding(w, r, a.messenger.MessageForOrder)
}

// GetTrade returns the message a trade was settled with
func (a *API) GetTrade(w http.ResponseWriter, r *http.Request) {
	a.binding(w, r, a.messenger.MessageForTrade)
}

func (a *API) UserHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := address(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}
	resp := HistoryResponse{
		User:   user,
		Orders: a.messenger.OrderHistory(user),
		Trades: a.messenger.TradeHistory(user),
	}
	if resp.Orders == nil {
		resp.Orders = []common.Hash{}
	}
	if resp.Trades == nil {
		resp.Trades = []common.Hash{}
	}
	responseJSON(w, resp, http.StatusOK)
}
