package compilerhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/portcullis-nac/portcullis/internal/compiler"
	"github.com/portcullis-nac/portcullis/internal/platform/httpx"
)

// Compiler is the subset of compiler.Service used by the handler.
type Compiler interface {
	Compile(ctx context.Context, req compiler.Request) (compiler.Result, error)
}

// Handler exposes the administrative compile trigger.
type Handler struct {
	logger    *slog.Logger
	service   Compiler
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs a Handler. Compiles are limited to 6 per minute per
// client address.
func NewHandler(logger *slog.Logger, service Compiler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		rateLimit: httprate.Limit(6, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}

// MountRoutes registers compile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rateLimit).Post("/compile", h.compile)
}

type compileRequest struct {
	Force  bool `json:"force"`
	Reload bool `json:"reload"`
}

func (h *Handler) compile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := httpx.DecodeJSON(r, &req, true); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Compile(r.Context(), compiler.Request{Force: req.Force, Reload: req.Reload})
	switch {
	case errors.Is(err, compiler.ErrCompileInProgress):
		httpx.RespondError(w, errors.Join(httpx.ErrConflict, err))
		return
	case err != nil:
		h.logger.Error("compile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
