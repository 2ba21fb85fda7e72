package api

import (
	"net/http"

	"github.com/eduvoice/eduvoice/internal/account"
	"github.com/eduvoice/eduvoice/internal/auth"
)

// authHandler groups sign-up and session HTTP handlers.
type authHandler struct {
	accounts *account.Service
	failures AuthFailureRecorder
}

// AuthFailureRecorder counts rejected logins and tokens.
type AuthFailureRecorder interface {
	IncAuthFailure(authType string)
}

func newAuthHandler(accounts *account.Service, failures AuthFailureRecorder) *authHandler {
	return &authHandler{accounts: accounts, failures: failures}
}

type sessionResponse struct {
	Token string        `json:"token"`
	User  *account.User `json:"user"`
}

// Signup handles POST /api/v1/auth/signup.
func (h *authHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupInput
	if !decodeValid(w, r, &req) {
		return
	}

	u, token, err := h.accounts.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "signup", "user", u.ID)
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: u})
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req account.LoginInput
	if !decodeValid(w, r, &req) {
		return
	}

	u, token, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		if h.failures != nil {
			h.failures.IncAuthFailure("login")
		}
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: u})
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_ = h.accounts.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}
