package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/eduvoice/eduvoice/internal/account"
	"github.com/eduvoice/eduvoice/internal/auth"
	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/eduvoice/eduvoice/internal/metering"
)

// TransactionLister reads the token transaction log.
type TransactionLister interface {
	ListTransactions(ctx context.Context, q metering.Query) ([]*metering.Transaction, string, error)
	GetSummary(ctx context.Context, q metering.Query) (*metering.Summary, error)
}

// meHandler serves the learner's own profile, balance and history.
type meHandler struct {
	accounts *account.Service
	ledger   *ledger.Gate
	txns     TransactionLister
}

func newMeHandler(accounts *account.Service, gate *ledger.Gate, txns TransactionLister) *meHandler {
	return &meHandler{accounts: accounts, ledger: gate, txns: txns}
}

type meResponse struct {
	*account.User
	Balance            int64 `json:"balance"`
	SubscriptionActive bool  `json:"subscription_active"`
}

// Me handles GET /api/v1/me.
func (h *meHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	profile, err := h.accounts.Get(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	acct, err := h.ledger.Balance(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:               profile,
		Balance:            acct.Balance,
		SubscriptionActive: acct.SubscriptionActive,
	})
}

// SetProviderKey handles PUT /api/v1/me/provider-key. An empty key removes
// the stored one.
func (h *meHandler) SetProviderKey(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	var req struct {
		Key string `json:"key" validate:"max=512"`
	}
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.accounts.SetProviderKey(r.Context(), u.ID, req.Key); err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "set_provider_key", "user", u.ID, "cleared", req.Key == "")
	w.WriteHeader(http.StatusNoContent)
}

// parseTimeParam parses a date query param in YYYY-MM-DD or RFC3339 format.
func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	// Try RFC3339 first.
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	// Fall back to date-only.
	return time.Parse("2006-01-02", s)
}

type transactionsResponse struct {
	Transactions []*metering.Transaction `json:"transactions"`
	NextCursor   string                  `json:"next_cursor,omitempty"`
	Summary      *metering.Summary       `json:"summary"`
}

// Transactions handles GET /api/v1/me/transactions.
func (h *meHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	params := r.URL.Query()

	q := metering.Query{
		UserID: u.ID,
		Kind:   params.Get("kind"),
		Cursor: params.Get("cursor"),
	}
	var err error
	if q.From, err = parseTimeParam(params.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid from: "+err.Error())
		return
	}
	if q.To, err = parseTimeParam(params.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid to: "+err.Error())
		return
	}
	if limitStr := params.Get("limit"); limitStr != "" {
		l, lErr := strconv.Atoi(limitStr)
		if lErr != nil || l < 1 || l > 200 {
			writeError(w, http.StatusBadRequest, "invalid_params", "limit must be between 1 and 200")
			return
		}
		q.Limit = l
	}

	txns, next, err := h.txns.ListTransactions(r.Context(), q)
	if errors.Is(err, metering.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid cursor")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	summary, err := h.txns.GetSummary(r.Context(), metering.Query{UserID: u.ID, Kind: q.Kind, From: q.From, To: q.To})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if txns == nil {
		txns = []*metering.Transaction{}
	}

	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: txns, NextCursor: next, Summary: summary})
}
