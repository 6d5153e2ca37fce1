package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/service/custody"
)

const maxWebhookBody = 1 << 20

type webhookReceiver interface {
	Receive(ctx context.Context, body []byte, signature string) error
}

type WebhookHandler struct {
	intake webhookReceiver
}

func NewWebhookHandler(intake webhookReceiver) *WebhookHandler {
	return &WebhookHandler{intake: intake}
}

// ReceiveCustodyWebhook acks every delivery except one without a signature
// header. Verification failures and duplicates are absorbed by the intake.
func (h *WebhookHandler) ReceiveCustodyWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	err = h.intake.Receive(r.Context(), body, r.Header.Get(custody.SignatureHeader))
	if errors.Is(err, domain.ErrBadRequest) {
		log.Warn("custody webhook rejected", "error", err)
		RespondAppError(w, ErrMissingSignature, nil)
		return
	}
	if err != nil {
		log.Error("custody webhook intake failed", "error", err)
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}
