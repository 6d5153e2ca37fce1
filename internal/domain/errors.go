package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidParams     = errors.New("invalid params")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownAction     = errors.New("unknown action")
	ErrTerminalStatus    = errors.New("transfer already in terminal status")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBadRequest        = errors.New("bad request")
	ErrUpstream          = errors.New("upstream failure")
	ErrVersionConflict   = errors.New("optimistic lock conflict")
	ErrDuplicateEvent    = errors.New("duplicate event")
	ErrInvalidRequest    = errors.New("invalid request")

	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)
