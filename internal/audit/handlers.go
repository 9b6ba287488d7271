package audit

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes HTTP endpoints for working with audit logs.
type Handler struct {
	Store Store
}

// List returns a paginated list of audit logs, optionally filtered by
// resource_type and resource_id.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50, 200)
	q := r.URL.Query()

	rows, total, err := h.Store.ListAuditLogs(r.Context(), ListParams{
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	if rows == nil {
		rows = []Entry{}
	}
	common.List(w, rows, common.Pagination{Page: page, PerPage: perPage, TotalItems: total})
}
