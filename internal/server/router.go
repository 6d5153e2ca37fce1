// Package server assembles the HTTP surface of the gateway.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/josh-kwaku/anchor-gateway/internal/handler"
	"github.com/josh-kwaku/anchor-gateway/internal/middleware"
	"github.com/josh-kwaku/anchor-gateway/internal/repository"
)

type Handlers struct {
	RPC     *handler.RPCHandler
	Webhook *handler.WebhookHandler
	Health  *handler.HealthHandler
}

type RouterConfig struct {
	JWTSecret      string
	IdempotencyTTL time.Duration
	RequestTimeout time.Duration
}

func NewRouter(h Handlers, idempotency *repository.IdempotencyRepository, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Tracing)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)

	r.Get("/health", h.Health.Liveness)
	r.Get("/health/ready", h.Health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Post("/webhooks/custody", h.Webhook.ReceiveCustodyWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.Idempotency(idempotency, cfg.IdempotencyTTL))
		r.Post("/rpc", h.RPC.Handle)
	})

	return r
}
