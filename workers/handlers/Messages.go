package handlers

import (
	"fmt"
	"math/big"
	"net/http"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
)

func (a *API) CreateMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	var req MessageRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	recipient, ok := address(w, "recipient", req.Recipient)
	if !ok {
		return
	}

	id, err := a.messenger.CreateMessage(caller, req.DestChain, recipient, req.Payload, toBig(req.Amount))
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, &MessageIDResponse{Status: "ok", IDs: []uint64{id}}, http.StatusCreated)
}

func (a *API) CreateBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	var req BatchRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	recipients := make([]common.Address, len(req.Recipients))
	for i, s := range req.Recipients {
		if recipients[i], ok = address(w, fmt.Sprintf("recipients[%d]", i), s); !ok {
			return
		}
	}
	payloads := make([][]byte, len(req.Payloads))
	for i, p := range req.Payloads {
		payloads[i] = p
	}
	amounts := make([]*big.Int, len(req.Amounts))
	for i, v := range req.Amounts {
		amounts[i] = toBig(v)
	}

	ids, err := a.messenger.CreateBatch(caller, req.DestChain, recipients, payloads, amounts)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, &MessageIDResponse{Status: "ok", IDs: ids}, http.StatusCreated)
}

func (a *API) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUint(w, r, "id")
	if !ok {
		return
	}
	msg, err := a.messenger.Message(id)
	if err != nil {
		a.responseError(w, r, err)
		return
	}
	responseJSON(w, viewOf(msg), http.StatusOK)
}

// ListMessages filters by sender, destination chain and status, at least one filter is required
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *types.MessageStatus
	if s := q.Get("status"); s != "" {
		st, ok := types.ParseMessageStatus(s)
		if !ok {
			responseFail(w, "status", fmt.Sprintf("unknown status %q", s), http.StatusBadRequest)
			return
		}
		status = &st
	}
	chain, ok := queryUint(w, r, "chain", 0)
	if !ok {
		return
	}

	var msgs []*types.CrossChainMessage
	switch {
	case q.Get("sender") != "":
		sender, ok := address(w, "sender", q.Get("sender"))
		if !ok {
			return
		}
		msgs = a.messenger.MessagesBySender(sender)
	case chain != 0:
		msgs = a.messenger.MessagesByChain(chain)
	case status != nil && *status == types.StatusPending:
		msgs = a.messenger.PendingMessages()
	default:
		responseFail(w, "", "one of sender, chain or status=pending is required", http.StatusBadRequest)
		return
	}

	out := msgs[:0]
	for _, m := range msgs {
		if chain != 0 && m.DestChain != chain {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, m)
	}
	responseJSON(w, viewsOf(out), http.StatusOK)
}

// UpdateStatus is called by relayers with the outcome on the destination chain
func (a *API) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, ok := urlUint(w, r, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	if err := a.messenger.UpdateMessageStatusWithRef(caller, id, req.Status, req.Reason, req.ConfirmationTxRef); err != nil {
		a.responseError(w, r, err)
		return
	}
	a.GetMessage(w, r)
}

func (a *API) RetryMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, ok := urlUint(w, r, "id")
	if !ok {
		return
	}

	if err := a.messenger.RetryMessage(caller, id); err != nil {
		a.responseError(w, r, err)
		return
	}
	a.GetMessage(w, r)
}
