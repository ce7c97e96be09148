package contract

import "errors"

// Error kinds returned by registry operations. Operations wrap these with
// fmt.Errorf("...: %w", ...) so callers can branch on the kind with errors.Is
// while still getting a descriptive message.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidInput      = errors.New("invalid input")
)
