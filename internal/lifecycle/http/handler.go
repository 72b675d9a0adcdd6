package lifecyclehttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/portcullis-nac/portcullis/internal/lifecycle"
	"github.com/portcullis-nac/portcullis/internal/platform/httpx"
	"github.com/portcullis-nac/portcullis/internal/policy"
	"github.com/portcullis-nac/portcullis/internal/provision"
)

// Lifecycle is the subset of lifecycle.Monitor used by the handler.
type Lifecycle interface {
	Extend(ctx context.Context, id int64, until time.Time) (policy.Credential, error)
	Credential(ctx context.Context, id int64) (policy.Credential, error)
	NadHealth(ctx context.Context) ([]policy.NadHealth, error)
}

// Handler exposes credential administration and NAD health.
type Handler struct {
	logger  *slog.Logger
	service Lifecycle
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service Lifecycle) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers lifecycle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/credentials/{id}", func(r chi.Router) {
		r.Post("/extend", h.extend)
		r.Get("/profile", h.profile)
	})
	r.Get("/nad-health", h.nadHealth)
}

type extendRequest struct {
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

func (h *Handler) extend(w http.ResponseWriter, r *http.Request) {
	id, err := credentialID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req extendRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cred, err := h.service.Extend(r.Context(), id, req.ExpiresAt)
	if err != nil {
		h.respond(w, "extend credential", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cred)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	id, err := credentialID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cred, err := h.service.Credential(r.Context(), id)
	if err != nil {
		h.respond(w, "load credential", err)
		return
	}
	if cred.Status != policy.CredentialActive {
		httpx.RespondError(w, fmt.Errorf("%w: credential is %s", httpx.ErrConflict, cred.Status))
		return
	}
	profile, err := provision.NewProfile(r.URL.Query().Get("ssid"), cred.Identifier, cred.Passphrase)
	if err != nil {
		httpx.RespondError(w, errors.Join(httpx.ErrValidation, err))
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) nadHealth(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.NadHealth(r.Context())
	if err != nil {
		h.respond(w, "list nad health", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"devices": records})
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, policy.ErrNotFound):
		httpx.RespondError(w, errors.Join(httpx.ErrNotFound, err))
	case errors.Is(err, lifecycle.ErrCredentialRevoked):
		httpx.RespondError(w, errors.Join(httpx.ErrConflict, err))
	case errors.Is(err, lifecycle.ErrInvalidExpiry):
		httpx.RespondError(w, errors.Join(httpx.ErrValidation, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func credentialID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid credential id", httpx.ErrValidation)
	}
	return id, nil
}
