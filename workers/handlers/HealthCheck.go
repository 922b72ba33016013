package handlers

import (
	"net/http"
)

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Ping(); err != nil {
			a.logger.Error("Health check failed", "err", err)
			responseJSON(w, &APIResponse{
				Status:  "error",
				Message: "storage unavailable",
			}, http.StatusServiceUnavailable)
			return
		}
	}
	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}
