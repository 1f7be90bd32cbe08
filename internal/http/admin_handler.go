package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/club-reminders/internal/application"
)

type dueProcessor interface {
	ProcessDue(ctx context.Context) (application.SweepResult, error)
}

type retentionCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
}

// AdminHandler triggers sweeps and cleanups on demand.
type AdminHandler struct {
	sweeper   dueProcessor
	janitor   retentionCleaner
	retention time.Duration
	responder responder
	logger    *slog.Logger
}

// NewAdminHandler wires the handler. retention is used when a cleanup
// request does not name one.
func NewAdminHandler(sweeper dueProcessor, janitor retentionCleaner, retention time.Duration, logger *slog.Logger) *AdminHandler {
	base := defaultLogger(logger)
	return &AdminHandler{
		sweeper:   sweeper,
		janitor:   janitor,
		retention: retention,
		responder: newResponder(base),
		logger:    base,
	}
}

type sweepResponse struct {
	Delivered    int `json:"delivered"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

type cleanupResponse struct {
	Deleted int `json:"deleted"`
}

// Sweep handles POST /admin/sweeps.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.sweeper == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	res, err := h.sweeper.ProcessDue(r.Context())
	if err != nil {
		handlerLogger(r.Context(), h.logger, "AdminHandler", "Sweep").ErrorContext(r.Context(), "manual sweep failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sweepResponse{
		Delivered:    res.Delivered,
		Failed:       res.Failed,
		DeadLettered: res.DeadLettered,
	})
}

// Cleanup handles POST /admin/cleanups.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.janitor == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	retention := h.retention
	if raw := strings.TrimSpace(r.URL.Query().Get("retention")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRetention)
			return
		}
		retention = d
	}

	deleted, err := h.janitor.Cleanup(r.Context(), retention)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "AdminHandler", "Cleanup", "retention", retention).ErrorContext(r.Context(), "manual cleanup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, cleanupResponse{Deleted: deleted})
}
