package cart

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type addLineRequest struct {
	BatchID int64  `json:"batch_id" validate:"required,gt=0"`
	IMEI    string `json:"imei" validate:"omitempty,max=32"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type chargesRequest struct {
	Discount        string `json:"discount"`
	TransportCharge string `json:"transport_charge"`
	LoadingCharge   string `json:"loading_charge"`
}

func (c chargesRequest) charges() pricing.Charges {
	return pricing.Charges{
		Discount:  pricing.ParseAmount(c.Discount),
		Transport: pricing.ParseAmount(c.TransportCharge),
		Loading:   pricing.ParseAmount(c.LoadingCharge),
	}
}

type checkoutRequest struct {
	chargesRequest
	PaymentMethod string `json:"payment_method" validate:"required,max=32"`
	Customer      *int64 `json:"customer" validate:"omitempty,gt=0"`
}

// Routes registers the cart endpoints on r.
func (h *Handler) Routes(r chi.Router, checkout ...func(http.Handler) http.Handler) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/lines", h.AddLine)
	r.Patch("/{id}/lines/{batchId}", h.SetQuantity)
	r.Delete("/{id}/lines/{batchId}", h.RemoveLine)
	r.Post("/{id}/quote", h.Quote)
	r.With(checkout...).Post("/{id}/checkout", h.Checkout)
}

// Create starts a new cart for the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Create(r.Context(), session(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, c)
}

// Get returns the cart and its totals without charges.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	q, err := h.Svc.Quote(r.Context(), session(r), chi.URLParam(r, "id"), pricing.Charges{})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// AddLine adds one unit of a batch to the cart.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload addLineRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.AddItem(r.Context(), session(r), chi.URLParam(r, "id"), payload.BatchID, payload.IMEI)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// SetQuantity replaces the quantity of a line; zero removes it.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	batchID, err := common.ParseID(chi.URLParam(r, "batchId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid batch id", nil)
		return
	}
	var payload setQuantityRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.SetQuantity(r.Context(), session(r), chi.URLParam(r, "id"), batchID, *payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// RemoveLine deletes a line; serialized lines are addressed with ?imei=.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	batchID, err := common.ParseID(chi.URLParam(r, "batchId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid batch id", nil)
		return
	}
	c, err := h.Svc.RemoveItem(r.Context(), session(r), chi.URLParam(r, "id"), batchID, r.URL.Query().Get("imei"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// Quote returns totals for the cart with order-level charges applied.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload chargesRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	q, err := h.Svc.Quote(r.Context(), session(r), chi.URLParam(r, "id"), payload.charges())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// Checkout submits the cart as a sale.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload checkoutRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	receipt, err := h.Svc.Checkout(r.Context(), session(r), chi.URLParam(r, "id"), CheckoutInput{
		Charges:        payload.charges(),
		PaymentMethod:  strings.TrimSpace(payload.PaymentMethod),
		Customer:       payload.Customer,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, receipt)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, c *Cart) {
	common.Data(w, status, Quote{Cart: c, Totals: c.Totals(pricing.Charges{}).Round(2)})
}

func session(r *http.Request) common.Session {
	s, _ := common.SessionFrom(r.Context())
	return s
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) || backend.WriteError(w, err) {
		return
	}
	var capErr *CapacityError
	switch {
	case errors.As(err, &capErr):
		common.JSONError(w, http.StatusConflict, "CAPACITY_EXCEEDED", capErr.Error(), map[string]any{
			"batch_id":  capErr.BatchID,
			"requested": capErr.Requested,
			"ceiling":   capErr.Ceiling,
		})
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "CAPACITY_EXCEEDED", err.Error(), map[string]any{"ceiling": 0})
	case errors.Is(err, ErrDuplicateIMEI):
		common.JSONError(w, http.StatusConflict, "DUPLICATE", err.Error(), nil)
	case errors.Is(err, ErrIMEIUnavailable):
		common.JSONError(w, http.StatusConflict, "IMEI_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, ErrIMEIRequired), errors.Is(err, ErrIMEINotTracked),
		errors.Is(err, ErrQuantityFixed), errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being modified by another request", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process cart", nil)
	}
}
