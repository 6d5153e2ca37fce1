// Package rpc implements the JSON-RPC action endpoint: an ordered batch of
// calls, each resolved to a handler and applied through the transfer service.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/service/transfer"
)

const (
	DefaultBatchLimit  = 50
	DefaultCallTimeout = 10 * time.Second
)

type Dispatcher struct {
	transfers   *transfer.Service
	handlers    Handlers
	batchLimit  int
	callTimeout time.Duration
	now         func() time.Time
}

func NewDispatcher(transfers *transfer.Service, handlers Handlers, batchLimit int, callTimeout time.Duration) *Dispatcher {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Dispatcher{
		transfers:   transfers,
		handlers:    handlers,
		batchLimit:  batchLimit,
		callTimeout: callTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle runs the calls in order. A failing call never affects its siblings.
func (d *Dispatcher) Handle(ctx context.Context, reqs []Request) []Response {
	if len(reqs) == 0 {
		return []Response{failure(nil, &Error{Code: CodeInvalidRequest, Message: "empty batch"})}
	}
	if len(reqs) > d.batchLimit {
		return []Response{failure(nil, &Error{
			Code:    CodeInvalidRequest,
			Message: fmt.Sprintf("batch of %d calls exceeds the limit of %d", len(reqs), d.batchLimit),
		})}
	}

	out := make([]Response, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, d.call(ctx, req))
	}
	return out
}

func (d *Dispatcher) call(ctx context.Context, req Request) Response {
	log := logging.FromContext(ctx).With("rpc_method", req.Method)

	if req.JSONRPC != Version {
		return failure(req.ID, &Error{Code: CodeInvalidRequest, Message: `jsonrpc must be "2.0"`})
	}

	h, ok := d.handlers[domain.Action(req.Method)]
	if !ok {
		return failure(req.ID, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)})
	}

	var p Params
	if len(bytes.TrimSpace(req.Params)) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failure(req.ID, &Error{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()})
		}
	}
	if p.TransactionID == "" {
		return failure(req.ID, &Error{Code: CodeInvalidParams, Message: "transaction_id is required"})
	}
	if err := h.Validate(&p); err != nil {
		e, _ := toError(err)
		return failure(req.ID, e)
	}

	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, log.With("transfer_id", p.TransactionID))

	now := d.now()
	res, err := d.transfers.Apply(ctx, p.TransactionID, h.Action(), func(t *domain.Transfer, target domain.Status) (domain.Status, error) {
		return h.Apply(t, &p, target, now)
	})
	if err != nil {
		e, expected := toError(err)
		if expected {
			log.Warn("rpc call rejected", "transfer_id", p.TransactionID, "error", err)
		} else {
			log.Error("rpc call failed", "transfer_id", p.TransactionID, "error", err)
		}
		return failure(req.ID, e)
	}

	return success(req.ID, res.Transfer.View())
}
