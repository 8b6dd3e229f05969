package wire

import (
	"errors"
	"fmt"

	"cofe/internal/backend"
)

type SendArgs struct {
	PeerID  string              `json:"peerId"`
	Message backend.ChatMessage `json:"message"`
}

type ConfigArgs struct {
	Config backend.Config `json:"config"`
}

// ErrorFromCode maps a reply error back onto the backend taxonomy.
func ErrorFromCode(e *Error) error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case CodeValidation:
		return fmt.Errorf("%w: %s", backend.ErrValidation, e.Message)
	case CodeNotFound:
		return fmt.Errorf("%w: %s", backend.ErrNotFound, e.Message)
	default:
		return e
	}
}

// CodeFromError is the inverse of ErrorFromCode.
func CodeFromError(err error) *Error {
	if err == nil {
		return nil
	}
	code := CodeInternal
	switch {
	case errors.Is(err, backend.ErrValidation):
		code = CodeValidation
	case errors.Is(err, backend.ErrNotFound):
		code = CodeNotFound
	}
	return &Error{Code: code, Message: err.Error()}
}
