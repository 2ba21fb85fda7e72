package api

import (
	"net/http"

	"github.com/eduvoice/eduvoice/internal/auth"
	"github.com/eduvoice/eduvoice/internal/voucher"
)

// voucherHandler serves voucher redemption and the admin voucher catalogue.
type voucherHandler struct {
	vouchers *voucher.Service
}

func newVoucherHandler(v *voucher.Service) *voucherHandler {
	return &voucherHandler{vouchers: v}
}

// Redeem handles POST /api/v1/vouchers/redeem.
func (h *voucherHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code" validate:"required,max=64"`
	}
	if !decodeValid(w, r, &req) {
		return
	}
	u := auth.UserFromContext(r.Context())

	red, err := h.vouchers.Redeem(r.Context(), u.ID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "redeem", "voucher", red.Voucher.ID, "code", red.Voucher.Code, "tokens_granted", red.TokensGranted)
	writeJSON(w, http.StatusOK, red)
}

// Create handles POST /api/v1/admin/vouchers.
func (h *voucherHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req voucher.CreateInput
	if !decodeValid(w, r, &req) {
		return
	}

	v, err := h.vouchers.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "create", "voucher", v.ID, "code", v.Code, "discount_percent", v.DiscountPercent)
	writeJSON(w, http.StatusCreated, v)
}

// List handles GET /api/v1/admin/vouchers.
func (h *voucherHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.vouchers.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*voucher.Voucher{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vouchers": list})
}
