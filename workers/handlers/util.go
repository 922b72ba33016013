package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
)

// request bodies above this size are rejected before decoding
const maxBodySize = 4 << 20

type callerKey struct{}

// WithCaller attaches the authenticated caller to the request context
func WithCaller(ctx context.Context, caller types.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller attached by the auth middleware, ok is false for anonymous requests
func CallerFrom(ctx context.Context) (types.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(types.Caller)
	return caller, ok
}

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responseFail(w http.ResponseWriter, field, message string, code int) {
	responseJSON(w, &APIResponse{
		Status:  "error",
		Field:   field,
		Message: message,
	}, code)
}

func statusFor(err error, authenticated bool) int {
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		if !authenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict), errors.Is(err, types.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, types.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrExpired):
		return http.StatusGone
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrSignatureInvalid):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// responseError maps an error kind to its HTTP status
func (a *API) responseError(w http.ResponseWriter, r *http.Request, err error) {
	_, authenticated := CallerFrom(r.Context())
	code := statusFor(err, authenticated)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		a.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	responseFail(w, "", msg, code)
}

// decodeBody reads a JSON request body into v and answers 400 on failure
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		a.logger.Warn("Error reading request body", "err", err)
		responseFail(w, "", "Error reading request body", http.StatusBadRequest)
		return false
	}
	if len(body) > maxBodySize {
		responseFail(w, "", "Request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		a.logger.Debug("Error unmarshalling request body", "err", err)
		responseFail(w, "", "Cannot unmarshal input JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// authenticated answers 401 for requests that carry no API key
func authenticated(w http.ResponseWriter, r *http.Request) (types.Caller, bool) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		responseFail(w, "", "API key required", http.StatusUnauthorized)
	}
	return caller, ok
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func urlUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := parseUint(chi.URLParam(r, name))
	if err != nil {
		responseFail(w, name, fmt.Sprintf("%s must be an unsigned integer", name), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// queryUint returns def when the parameter is absent
func queryUint(w http.ResponseWriter, r *http.Request, name string, def uint64) (uint64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	v, err := parseUint(s)
	if err != nil {
		responseFail(w, name, fmt.Sprintf("%s must be an unsigned integer", name), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func hashParam(r *http.Request, name string) (common.Hash, error) {
	var h common.Hash
	if err := h.UnmarshalText([]byte(chi.URLParam(r, name))); err != nil {
		return common.Hash{}, fmt.Errorf("%s must be a 0x prefixed 32 byte hash", name)
	}
	return h, nil
}

func address(w http.ResponseWriter, field, s string) (common.Address, bool) {
	addr, err := types.ParseAddress(s)
	if err != nil {
		responseFail(w, field, "No address or invalid address provided", http.StatusBadRequest)
		return common.Address{}, false
	}
	return addr, true
}

func dataType(w http.ResponseWriter, field, s string) (types.DataType, bool) {
	dt, ok := types.ParseDataType(s)
	if !ok {
		responseFail(w, field, fmt.Sprintf("unknown data type %q", s), http.StatusBadRequest)
	}
	return dt, ok
}
