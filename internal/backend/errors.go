package backend

import "errors"

var (
	// ErrConnectivity marks failures to reach the backend at all.
	ErrConnectivity = errors.New("backend unreachable")
	// ErrValidation marks a command the backend rejected on its input.
	ErrValidation = errors.New("rejected by backend")
	// ErrNotFound marks a missing persisted value, e.g. no saved config yet.
	ErrNotFound = errors.New("not found")
)
