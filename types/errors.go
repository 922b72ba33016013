package types

import (
	"errors"
	"fmt"
)

// callers branch on these with errors.Is, every other error is wrapped around one of them
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrUnsupported      = errors.New("unsupported")
	ErrExpired          = errors.New("expired")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSignatureInvalid = errors.New("invalid signature")
	ErrInvalidState     = errors.New("invalid state")

	ErrArrayLengthMismatch = fmt.Errorf("%w: array length mismatch", ErrInvalidInput)
)
