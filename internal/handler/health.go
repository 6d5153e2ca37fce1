package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/anchor-gateway/internal/service/observer"
)

type streamReporter interface {
	Status() []observer.StreamStatus
}

type HealthHandler struct {
	db      *sql.DB
	streams streamReporter
}

func NewHealthHandler(db *sql.DB, streams streamReporter) *HealthHandler {
	return &HealthHandler{db: db, streams: streams}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	streams := []observer.StreamStatus{}
	if h.streams != nil {
		streams = append(streams, h.streams.Status()...)
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbStatus,
		},
		"ledger_streams": streams,
	})
}
