package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-erp/atelier/internal/platform/httpx"
	"github.com/atelier-erp/atelier/internal/shared"
)

// ServicePort is what the handler needs from Service.
type ServicePort interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, id int64, upd ProductUpdate) (Product, error)
	ArchiveProduct(ctx context.Context, id int64) error
	RestoreProduct(ctx context.Context, id int64) error
	GetLocation(ctx context.Context, id int64) (Location, error)
	ArchiveLocation(ctx context.Context, id int64) error
	RestoreLocation(ctx context.Context, id int64) error
}

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes. writeGuards wrap every mutating route.
func (h *Handler) MountRoutes(r chi.Router, writeGuards ...func(http.Handler) http.Handler) {
	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/", h.getProduct)
		w := r.With(writeGuards...)
		w.Patch("/", h.updateProduct)
		w.Post("/archive", h.transitionProduct(h.service.ArchiveProduct))
		w.Post("/restore", h.transitionProduct(h.service.RestoreProduct))
	})
	r.With(writeGuards...).Route("/locations/{id}", func(r chi.Router) {
		r.Post("/archive", h.transitionLocation(h.service.ArchiveLocation))
		r.Post("/restore", h.transitionLocation(h.service.RestoreLocation))
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var upd ProductUpdate
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, upd)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) transitionProduct(move func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := move(r.Context(), id); err != nil {
			h.fail(w, err)
			return
		}
		product, err := h.service.GetProduct(r.Context(), id)
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, product)
	}
}

func (h *Handler) transitionLocation(move func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := move(r.Context(), id); err != nil {
			h.fail(w, err)
			return
		}
		location, err := h.service.GetLocation(r.Context(), id)
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, location)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if httpx.IsServerError(err) {
		h.logger.Error("catalog request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", shared.ErrInvalidArgument, chi.URLParam(r, "id"))
	}
	return id, nil
}
