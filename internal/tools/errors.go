package tools

import (
	"errors"
	"fmt"

	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/lifecycle"
	"github.com/nikhilbhutani/botfleet/internal/prompt"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/swarm"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal"
)

const internalMessage = "Something went wrong while running this tool. Please try again."

// Error is what a tool reports to its caller. Message is safe to show;
// Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: internalMessage, Err: err}
}

// classify maps errors from the domain packages onto an Error. Anything
// unrecognized is internal and its text is not exposed.
func classify(err error) *Error {
	var (
		te  *Error
		fe  *auth.ForbiddenError
		are *lifecycle.AlreadyResolvedError
		dup *webhook.DuplicateError
		uv  *prompt.UnknownVariableError
	)
	switch {
	case errors.As(err, &te):
		return te
	case errors.As(err, &fe):
		return &Error{Kind: KindAuthorization, Message: fe.Message, Err: err}
	case errors.As(err, &are):
		return &Error{Kind: KindConflict, Message: are.Error(), Err: err}
	case errors.As(err, &dup):
		return &Error{Kind: KindConflict, Message: dup.Error(), Err: err}
	case errors.As(err, &uv):
		return &Error{Kind: KindValidation, Message: uv.Error(), Err: err}
	case errors.Is(err, webhook.ErrInvalidURL), errors.Is(err, webhook.ErrInvalidEvents):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	case errors.Is(err, webhook.ErrIdempotencyUnavailable):
		return &Error{Kind: KindValidation, Message: "idempotencyKey is not supported on this deployment.", Err: err}
	case errors.Is(err, swarm.ErrExists):
		return &Error{Kind: KindConflict, Message: "A swarm with that name already exists.", Err: err}
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "Not found.", Err: err}
	case errors.Is(err, store.ErrConflict):
		return &Error{Kind: KindConflict, Message: "The change conflicts with the current state. Refresh and try again.", Err: err}
	default:
		return internal(err)
	}
}
