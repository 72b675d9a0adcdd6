package policyhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/portcullis-nac/portcullis/internal/platform/httpx"
	"github.com/portcullis-nac/portcullis/internal/policy"
)

// Store is the subset of policy.Repository used by the handler.
type Store interface {
	CreateUDNAssignment(ctx context.Context, a policy.UdnAssignment) (policy.UdnAssignment, error)
}

// Handler exposes policy store writes.
type Handler struct {
	logger *slog.Logger
	store  Store
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, store Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers policy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/udn", h.createUDN)
}

type createUDNRequest struct {
	UDNID          int    `json:"udn_id" validate:"required"`
	UserID         int64  `json:"user_id" validate:"required,gt=0"`
	MAC            string `json:"mac"`
	IPSKIdentifier string `json:"ipsk_identifier" validate:"max=128"`
	Passphrase     string `json:"passphrase" validate:"omitempty,min=8,max=63"`
	Active         *bool  `json:"is_active"`
}

func (h *Handler) createUDN(w http.ResponseWriter, r *http.Request) {
	var req createUDNRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	a := policy.UdnAssignment{
		UDNID:          req.UDNID,
		UserID:         req.UserID,
		MAC:            req.MAC,
		IPSKIdentifier: req.IPSKIdentifier,
		Passphrase:     req.Passphrase,
		IsActive:       req.Active == nil || *req.Active,
	}
	created, err := h.store.CreateUDNAssignment(r.Context(), a)
	switch {
	case errors.Is(err, policy.ErrUDNInUse):
		httpx.RespondError(w, errors.Join(httpx.ErrDuplicate, err))
		return
	case errors.Is(err, policy.ErrUDNOutOfRange), errors.Is(err, policy.ErrInvalidMAC):
		httpx.RespondError(w, errors.Join(httpx.ErrValidation, err))
		return
	case err != nil:
		h.logger.Error("create udn assignment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	created.Passphrase = ""
	httpx.JSON(w, http.StatusCreated, created)
}
