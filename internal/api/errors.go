package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/eduvoice/eduvoice/internal/account"
	"github.com/eduvoice/eduvoice/internal/exam"
	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/eduvoice/eduvoice/internal/result"
	"github.com/eduvoice/eduvoice/internal/tutor"
	"github.com/eduvoice/eduvoice/internal/voucher"
	"github.com/go-playground/validator/v10"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeErrorDetail(w, statusCode, errorDetail{Code: code, Message: message})
}

func writeErrorDetail(w http.ResponseWriter, statusCode int, d errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: d})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// decodeValid reads and validates a request body. On failure it writes the
// error response and returns false.
func decodeValid(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := readJSON(r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = validationMessage(fe)
		}
		writeErrorDetail(w, http.StatusUnprocessableEntity, errorDetail{
			Code:    "validation_error",
			Message: "request failed validation",
			Fields:  fields,
		})
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// writeServiceError maps a domain error onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *ledger.InsufficientTokensError
	switch {
	case errors.As(err, &insufficient):
		writeErrorDetail(w, http.StatusPaymentRequired, errorDetail{
			Code:    "insufficient_tokens",
			Message: "not enough tokens for this operation",
			Details: map[string]any{"balance": insufficient.Balance, "required": insufficient.Required},
		})
	case errors.Is(err, ledger.ErrInsufficientTokens):
		writeError(w, http.StatusPaymentRequired, "insufficient_tokens", "not enough tokens for this operation")
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account_not_found", "token account not found")
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidCost):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())

	case errors.Is(err, tutor.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, result.ErrNoValidOutput):
		writeError(w, http.StatusBadGateway, "no_valid_output", "the AI provider returned no usable result")
	case errors.Is(err, tutor.ErrProviderFailed):
		writeError(w, http.StatusBadGateway, "provider_error", "the AI provider request failed")

	case errors.Is(err, exam.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "exam session not found")
	case errors.Is(err, exam.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, exam.ErrNotStarted), errors.Is(err, exam.ErrNotInProgress), errors.Is(err, exam.ErrNotRetryable):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, exam.ErrTimerNotElapsed):
		writeError(w, http.StatusConflict, "timer_not_elapsed", err.Error())
	case errors.Is(err, exam.ErrDeadlineExceeded):
		writeError(w, http.StatusConflict, "deadline_exceeded", err.Error())
	case errors.Is(err, exam.ErrNoQuestions), errors.Is(err, exam.ErrInvalidQuestion), errors.Is(err, exam.ErrInvalidReason):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())

	case errors.Is(err, voucher.ErrNotFound):
		writeError(w, http.StatusNotFound, "voucher_not_found", "voucher not found")
	case errors.Is(err, voucher.ErrExpired):
		writeError(w, http.StatusGone, "voucher_expired", "voucher has expired")
	case errors.Is(err, voucher.ErrExhausted):
		writeError(w, http.StatusGone, "voucher_exhausted", "voucher has no uses left")
	case errors.Is(err, voucher.ErrAlreadyRedeemed):
		writeError(w, http.StatusConflict, "already_redeemed", "voucher already redeemed")
	case errors.Is(err, voucher.ErrCodeTaken):
		writeError(w, http.StatusConflict, "code_taken", "voucher code already exists")
	case errors.Is(err, voucher.ErrInvalid):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())

	case errors.Is(err, account.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "email is already registered")
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
	case errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "account not found")

	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "canceled", "request canceled")
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
