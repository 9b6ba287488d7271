package distribution

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes distribution validation and batch writes over HTTP.
type Handler struct {
	Svc *Service
}

type validateRequest struct {
	PurchasedQuantity int      `json:"purchased_quantity" validate:"gte=0"`
	IMEITracked       bool     `json:"is_imei_tracked"`
	IMEIList          []string `json:"imei_list"`
	Distributions     []Row    `json:"distributions"`
}

// Routes registers the stock batch endpoints. write wraps the create and
// update routes.
func (h *Handler) Routes(r chi.Router, write ...func(http.Handler) http.Handler) {
	r.Post("/distribution/validate", h.Validate)
	r.With(write...).Post("/", h.Create)
	r.With(write...).Put("/{id}", h.Update)
}

// Validate reconciles a distribution without writing anything.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "distribution service not configured", nil)
		return
	}
	var payload validateRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Svc.Validate(r.Context(), Input{
		PurchasedQuantity: payload.PurchasedQuantity,
		IMEITracked:       payload.IMEITracked,
		MasterIMEIs:       payload.IMEIList,
		Rows:              payload.Distributions,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// Create reconciles and creates a stock batch.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "distribution service not configured", nil)
		return
	}
	var payload BatchRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := payload.Check(); err != nil {
		writeError(w, err)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	batch, res, err := h.Svc.CreateBatch(r.Context(), sess, payload, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, map[string]any{"batch": batch, "distribution": res})
}

// Update reconciles against the stored batch and replaces it.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "distribution service not configured", nil)
		return
	}
	id, err := common.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid stock batch id", nil)
		return
	}
	var payload BatchRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := payload.Check(); err != nil {
		writeError(w, err)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	batch, res, err := h.Svc.UpdateBatch(r.Context(), sess, id, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"batch": batch, "distribution": res})
}

func writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) || backend.WriteError(w, err) {
		return
	}
	violation := Category(err)
	if violation == ViolationNone {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process distribution", nil)
		return
	}

	details := map[string]any{"violation": string(violation)}
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		details["row"] = rowErr.Row
	}
	var missing *MissingIMEIsError
	if errors.As(err, &missing) {
		details["missing"] = missing.Missing
	}

	status := http.StatusUnprocessableEntity
	code := "DISTRIBUTION_" + strings.ToUpper(string(violation))
	if violation == ViolationDuplicate {
		status = http.StatusConflict
		code = "DUPLICATE"
	}
	common.JSONError(w, status, code, err.Error(), details)
}
