package handlers

import (
	"net/http"
)

func (a *API) State(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIStateResponse{
		Status:      "ok",
		SourceChain: a.SourceChain,
		Chains:      a.registry.ListSupportedIDs(),
		Messages:    a.messenger.TotalMessages(),
		Pending:     len(a.messenger.PendingMessages()),
	}, http.StatusOK)
}
