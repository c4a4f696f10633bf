package sales

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/platform/httpx"
	"github.com/atelier-erp/atelier/internal/pricing"
	"github.com/atelier-erp/atelier/internal/shared"
)

// IdempotencyHeader carries the client's key for safe sale retries.
const IdempotencyHeader = "Idempotency-Key"

// ServicePort is what the handler needs from Service.
type ServicePort interface {
	ResolveCartItem(ctx context.Context, productID, quantity int64, wholesale bool) (CartLine, error)
	CalculatePricing(ctx context.Context, input PricingPreviewInput) (Breakdown, error)
	RecordSale(ctx context.Context, input RecordSaleInput) (SaleDetail, error)
	UpdateSale(ctx context.Context, pathID int64, input UpdateSaleInput) (SaleDetail, error)
	DeleteSale(ctx context.Context, id int64) error
	GetSale(ctx context.Context, id int64) (SaleDetail, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error)
}

// Handler wires HTTP endpoints for sale recording.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes. deleteGuards wrap only the delete endpoint.
func (h *Handler) MountRoutes(r chi.Router, deleteGuards ...func(http.Handler) http.Handler) {
	r.Route("/record-sale", func(r chi.Router) {
		r.Post("/calculate-pricing", h.calculatePricing)
		r.Get("/products/{productId}/cart-item", h.cartItem)
		r.Post("/record", h.recordSale)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.listSales)
		r.Get("/{id}", h.getSale)
		r.Put("/{id}", h.updateSale)
		r.With(deleteGuards...).Delete("/{id}", h.deleteSale)
	})
}

type discountFields struct {
	DiscountPercentage *decimal.Decimal `json:"discountPercentage"`
	FinalPrice         *decimal.Decimal `json:"finalPrice"`
}

func (d discountFields) parse() (pricing.Discount, error) {
	return pricing.ParseDiscount(d.DiscountPercentage, d.FinalPrice)
}

type pricingRequest struct {
	Items         []ItemInput      `json:"items" validate:"dive"`
	IsWholesale   bool             `json:"isWholesale"`
	PackagingCost *decimal.Decimal `json:"packagingCost"`
	discountFields
}

type recordRequest struct {
	Date          *time.Time       `json:"date"`
	LocationID    int64            `json:"locationId" validate:"required,gt=0"`
	CustomerID    *int64           `json:"customerId" validate:"omitempty,gt=0"`
	PaymentMethod PaymentMethod    `json:"paymentMethod" validate:"required,oneof=CASH CARD TRANSFER OTHER"`
	Items         []ItemInput      `json:"items" validate:"required,min=1,dive"`
	IsWholesale   bool             `json:"isWholesale"`
	PackagingCost *decimal.Decimal `json:"packagingCost"`
	discountFields
}

type updateRequest struct {
	ID            int64         `json:"id" validate:"required,gt=0"`
	CustomerID    *int64        `json:"customerId" validate:"omitempty,gt=0"`
	LocationID    int64         `json:"locationId" validate:"required,gt=0"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required,oneof=CASH CARD TRANSFER OTHER"`
	discountFields
}

func (h *Handler) calculatePricing(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	discount, err := req.parse()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.CalculatePricing(r.Context(), PricingPreviewInput{
		Items:         req.Items,
		IsWholesale:   req.IsWholesale,
		PackagingCost: orZero(req.PackagingCost),
		Discount:      discount,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) cartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "productId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	quantity := int64(1)
	if raw := q.Get("quantity"); raw != "" {
		quantity, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid quantity %q", shared.ErrInvalidArgument, raw))
			return
		}
	}
	wholesale := false
	if raw := q.Get("isWholesale"); raw != "" {
		wholesale, err = strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid isWholesale %q", shared.ErrInvalidArgument, raw))
			return
		}
	}
	line, err := h.service.ResolveCartItem(r.Context(), productID, quantity, wholesale)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	discount, err := req.parse()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := RecordSaleInput{
		LocationID:     req.LocationID,
		CustomerID:     req.CustomerID,
		PaymentMethod:  req.PaymentMethod,
		Items:          req.Items,
		IsWholesale:    req.IsWholesale,
		PackagingCost:  orZero(req.PackagingCost),
		Discount:       discount,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
	if req.Date != nil {
		input.Date = req.Date.UTC()
	}
	detail, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, detail)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	var err error
	if filter.From, err = timeParam(q.Get("from")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = timeParam(q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if raw := q.Get("locationId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid locationId %q", shared.ErrInvalidArgument, raw))
			return
		}
		filter.LocationID = &id
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))

	items, page, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": page})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	discount, err := req.parse()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.UpdateSale(r.Context(), id, UpdateSaleInput{
		ID:            req.ID,
		CustomerID:    req.CustomerID,
		LocationID:    req.LocationID,
		PaymentMethod: req.PaymentMethod,
		Discount:      discount,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteSale(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if httpx.IsServerError(err) {
		h.logger.Error("sales request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", shared.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

// timeParam accepts RFC 3339 timestamps or plain dates.
func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid date %q", shared.ErrInvalidArgument, raw)
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
