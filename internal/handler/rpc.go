package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/service/rpc"
)

const maxRPCBody = 4 << 20

type rpcDispatcher interface {
	Handle(ctx context.Context, reqs []rpc.Request) []rpc.Response
}

type RPCHandler struct {
	dispatcher rpcDispatcher
}

func NewRPCHandler(dispatcher rpcDispatcher) *RPCHandler {
	return &RPCHandler{dispatcher: dispatcher}
}

// Handle accepts a single JSON-RPC call or an array of calls. Batches are
// answered with an array even when they hold one call.
func (h *RPCHandler) Handle(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBody))
	if err != nil {
		log.Error("failed to read rpc body", "error", err)
		RespondJSON(w, http.StatusBadRequest, rpc.ParseFailure(err))
		return
	}

	body = bytes.TrimSpace(body)
	batch := len(body) > 0 && body[0] == '['

	var reqs []rpc.Request
	if batch {
		err = json.Unmarshal(body, &reqs)
	} else {
		var req rpc.Request
		err = json.Unmarshal(body, &req)
		reqs = []rpc.Request{req}
	}
	if err != nil {
		log.Warn("failed to parse rpc body", "error", err)
		RespondJSON(w, http.StatusBadRequest, rpc.ParseFailure(err))
		return
	}

	responses := h.dispatcher.Handle(r.Context(), reqs)
	status := rpc.BatchStatus(responses)
	if batch || len(responses) != 1 {
		RespondJSON(w, status, responses)
		return
	}
	RespondJSON(w, status, responses[0])
}
