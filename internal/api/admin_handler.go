package api

import (
	"net/http"

	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/go-chi/chi/v5"
)

// adminHandler serves token grants and subscription changes.
type adminHandler struct {
	ledger *ledger.Gate
}

func newAdminHandler(gate *ledger.Gate) *adminHandler {
	return &adminHandler{ledger: gate}
}

// Grant handles POST /api/v1/admin/accounts/{id}/grant.
func (h *adminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      int64  `json:"amount" validate:"required,min=1"`
		Description string `json:"description" validate:"max=200"`
	}
	if !decodeValid(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "id")
	desc := req.Description
	if desc == "" {
		desc = "admin grant"
	}

	acct, err := h.ledger.Grant(r.Context(), userID, req.Amount, desc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "grant", "token_account", userID, "amount", req.Amount)
	writeJSON(w, http.StatusOK, acct)
}

// Subscription handles PUT /api/v1/admin/accounts/{id}/subscription.
func (h *adminHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active" validate:"required"`
		Grant  int64 `json:"grant" validate:"min=0"`
	}
	if !decodeValid(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "id")

	acct, err := h.ledger.SetSubscription(r.Context(), userID, *req.Active, req.Grant)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "set_subscription", "token_account", userID, "active", *req.Active, "grant", req.Grant)
	writeJSON(w, http.StatusOK, acct)
}
