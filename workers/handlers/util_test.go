package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gobridgecore/types"

	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err           error
		authenticated bool
		code          int
	}{
		{types.ErrUnauthorized, false, http.StatusUnauthorized},
		{types.ErrUnauthorized, true, http.StatusForbidden},
		{types.ErrNotFound, true, http.StatusNotFound},
		{types.ErrConflict, true, http.StatusConflict},
		{types.ErrInvalidState, true, http.StatusConflict},
		{types.ErrUnsupported, true, http.StatusUnprocessableEntity},
		{types.ErrExpired, true, http.StatusGone},
		{types.ErrInvalidInput, true, http.StatusBadRequest},
		{types.ErrArrayLengthMismatch, true, http.StatusBadRequest},
		{types.ErrSignatureInvalid, true, http.StatusUnauthorized},
		{errors.New("redis down"), true, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("batch entry 3: %w", tt.err)
		require.Equal(t, tt.code, statusFor(wrapped, tt.authenticated), tt.err.Error())
	}
}
