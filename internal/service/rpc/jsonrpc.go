package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const Version = "2.0"

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) httpStatus() int {
	if e.Code == CodeInternalError {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func success(id json.RawMessage, result any) Response {
	return Response{JSONRPC: Version, ID: nullID(id), Result: result}
}

func failure(id json.RawMessage, e *Error) Response {
	return Response{JSONRPC: Version, ID: nullID(id), Error: e}
}

// ParseFailure answers a body that is not valid JSON-RPC at all.
func ParseFailure(err error) Response {
	return failure(nil, &Error{Code: CodeParseError, Message: "parse error: " + err.Error()})
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// toError maps the domain error taxonomy onto the fixed RPC code space.
// ok is false for errors that should be logged as unexpected.
func toError(err error) (e *Error, ok bool) {
	switch {
	case errors.Is(err, domain.ErrUnknownAction):
		return &Error{Code: CodeMethodNotFound, Message: err.Error()}, true
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidParams):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}, true
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidRequest):
		return &Error{Code: CodeInvalidRequest, Message: err.Error()}, true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrVersionConflict):
		return &Error{Code: CodeInternalError, Message: "request timed out, retry", Data: map[string]bool{"retryable": true}}, true
	}
	return &Error{Code: CodeInternalError, Message: "internal error"}, false
}

// BatchStatus is the HTTP status of the worst result in the batch.
func BatchStatus(responses []Response) int {
	status := http.StatusOK
	for _, r := range responses {
		if r.Error == nil {
			continue
		}
		if s := r.Error.httpStatus(); s > status {
			status = s
		}
	}
	return status
}
