// Package httptransport is the operator-facing HTTP surface of the
// coordinator: connection inspection, renewal, termination, discovery and
// token revocation.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustmesh/internal/discovery"
	"trustmesh/internal/models"
	"trustmesh/pkg/domain"
	dErrors "trustmesh/pkg/domain-errors"
	"trustmesh/pkg/platform/httputil"
)

// Service is the slice of the coordinator the admin API drives.
type Service interface {
	ActiveConnections() []models.ConnectionStatus
	Connection(id domain.ConnectionID) (models.ConnectionStatus, error)
	ValidateSession(ctx context.Context, id domain.ConnectionID, requiredScopes []string) (models.SessionValidation, error)
	RenewSession(ctx context.Context, id domain.ConnectionID) (models.SessionInfo, error)
	TerminateConnection(ctx context.Context, id domain.ConnectionID) error
	DiscoverAndRegisterDevice(ctx context.Context) (discovery.Report, error)
	RevokeToken(ctx context.Context, raw string) (int, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the /v1 routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/connections", h.handleListConnections)
	r.Get("/connections/{id}", h.handleGetConnection)
	r.Get("/connections/{id}/session", h.handleValidateSession)
	r.Post("/connections/{id}/renew", h.handleRenewSession)
	r.Delete("/connections/{id}", h.handleTerminate)
	r.Post("/discovery", h.handleDiscovery)
	r.Post("/tokens/revoke", h.handleRevokeToken)
}

func (h *Handler) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	statuses := h.svc.ActiveConnections()
	out := make([]connectionResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, toConnectionResponse(s))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (h *Handler) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	status, err := h.svc.Connection(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConnectionResponse(status))
}

func (h *Handler) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ValidateSession(r.Context(), id, r.URL.Query()["scope"])
	if err != nil {
		h.logger.WarnContext(r.Context(), "session validation failed", "connection_id", id.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, validationResponse{
		Valid:        result.Valid,
		NeedsRenewal: result.NeedsRenewal,
		ExpiresAt:    result.ExpiresAt,
		Reason:       result.Reason,
	})
}

func (h *Handler) handleRenewSession(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	info, err := h.svc.RenewSession(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(info))
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	err := h.svc.TerminateConnection(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case dErrors.HasCode(err, dErrors.CodeResourceCleanupFailure):
		h.logger.ErrorContext(r.Context(), "connection removed with cleanup failure", "connection_id", id.String(), "error", err)
		httputil.WriteJSON(w, http.StatusOK, terminateResponse{Removed: true, CleanupError: err.Error()})
	default:
		httputil.WriteError(w, err)
	}
}

func (h *Handler) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.DiscoverAndRegisterDevice(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDiscoveryResponse(report))
}

func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req revokeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "token is required"))
		return
	}
	n, err := h.svc.RevokeToken(r.Context(), req.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, revokeTokenResponse{TerminatedConnections: n})
}

func connectionID(w http.ResponseWriter, r *http.Request) (domain.ConnectionID, bool) {
	id, err := domain.ParseConnectionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid connection id"))
		return domain.ConnectionID{}, false
	}
	return id, true
}
