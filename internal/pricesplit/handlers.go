package pricesplit

import (
	"errors"
	"net/http"

	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler serves the price-split product listing.
type Handler struct {
	Svc          *Service
	DefaultLimit int
	MaxLimit     int
}

// List handles GET /products/price-split.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "price split service not configured", nil)
		return
	}
	q := r.URL.Query()

	condition, err := ParseCondition(q.Get("condition"))
	if err != nil {
		common.WriteAppError(w, common.ValidationError("invalid condition", map[string]string{"condition": err.Error()}))
		return
	}
	var selected int64
	if raw := q.Get("shop"); raw != "" {
		if selected, err = common.ParseID(raw); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid shop", nil)
			return
		}
	}
	sess, _ := common.SessionFrom(r.Context())
	scope, err := ResolveScope(q.Get("view"), selected, sess.ShopID)
	if err != nil {
		common.WriteAppError(w, common.ValidationError("invalid view", map[string]string{"view": err.Error()}))
		return
	}
	if err := AuthorizeScope(scope, sess.ShopID); err != nil {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "view is limited to your shop", nil)
		return
	}

	rows, err := h.Svc.Rows(r.Context(), sess.Token, Query{Scope: scope, Condition: condition, Search: q.Get("q")})
	if err != nil {
		switch {
		case backend.WriteError(w, err):
		case errors.Is(err, ErrNoToken):
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
		case r.Context().Err() != nil:
			common.JSONError(w, http.StatusServiceUnavailable, "CANCELLED", "request cancelled", nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load price split", nil)
		}
		return
	}

	page, perPage := common.ParsePagination(r, h.defaultLimit(), h.MaxLimit)
	start, end := common.Window(len(rows), page, perPage)
	common.List(w, rows[start:end], common.Pagination{Page: page, PerPage: perPage, TotalItems: len(rows)})
}

func (h *Handler) defaultLimit() int {
	if h.DefaultLimit > 0 {
		return h.DefaultLimit
	}
	return 20
}
