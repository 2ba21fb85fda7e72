package api

import (
	"net/http"
	"time"

	"github.com/eduvoice/eduvoice/internal/account"
	"github.com/eduvoice/eduvoice/internal/auth"
	"github.com/eduvoice/eduvoice/internal/exam"
	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/eduvoice/eduvoice/internal/metrics"
	"github.com/eduvoice/eduvoice/internal/ratelimit"
	"github.com/eduvoice/eduvoice/internal/tutor"
	"github.com/eduvoice/eduvoice/internal/voucher"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Accounts     *account.Service
	Ledger       *ledger.Gate
	Transactions TransactionLister
	Tutor        *tutor.Service
	Exams        *exam.Service
	Vouchers     *voucher.Service
	Limiter      *ratelimit.Limiter
	Metrics      *metrics.Metrics // optional
	AdminKey     string
	CORSOrigins  []string
	ExamDuration time.Duration
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	var (
		observer HTTPObserver
		failures AuthFailureRecorder
		onReject []func()
	)
	if deps.Metrics != nil {
		observer = deps.Metrics
		failures = deps.Metrics
		onReject = append(onReject, deps.Metrics.IncRateLimitRejection)
	}

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger(observer))
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.CORSOrigins))

	// Handlers.
	authH := newAuthHandler(deps.Accounts, failures)
	me := newMeHandler(deps.Accounts, deps.Ledger, deps.Transactions)
	tutorH := newTutorHandler(deps.Tutor)
	exams := newExamHandler(deps.Exams, deps.Tutor, deps.ExamDuration)
	vouchers := newVoucherHandler(deps.Vouchers)
	admin := newAdminHandler(deps.Ledger)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Well-known manifest.
	r.Get("/.well-known/eduvoice.json", WellKnownHandler)

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
		r.Get("/api/v1/metrics/summary", deps.Metrics.Handler())
	}

	// Public auth routes.
	r.Post("/api/v1/auth/signup", authH.Signup)
	r.Post("/api/v1/auth/login", authH.Login)
	r.Post("/api/v1/auth/logout", authH.Logout)

	// Admin routes (require admin key).
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(auth.AdminAuthMiddleware(deps.AdminKey))

		ar.Post("/vouchers", vouchers.Create)
		ar.Get("/vouchers", vouchers.List)
		ar.Post("/accounts/{id}/grant", admin.Grant)
		ar.Put("/accounts/{id}/subscription", admin.Subscription)
	})

	// Learner routes (require a session token).
	r.Group(func(lr chi.Router) {
		lr.Use(auth.MemberAuthMiddleware(deps.Accounts))

		lr.Get("/api/v1/me", me.Me)
		lr.Put("/api/v1/me/provider-key", me.SetProviderKey)
		lr.Get("/api/v1/me/transactions", me.Transactions)
		lr.Post("/api/v1/vouchers/redeem", vouchers.Redeem)

		lr.Get("/api/v1/exams", exams.List)
		lr.Get("/api/v1/exams/{id}", exams.Get)
		lr.Post("/api/v1/exams/{id}/start", exams.Start)
		lr.Put("/api/v1/exams/{id}/answers/{index}", exams.Answer)

		// Routes that may call the AI provider are rate limited.
		lr.Group(func(ai chi.Router) {
			ai.Use(ratelimit.Middleware(deps.Limiter, onReject...))

			ai.Post("/api/v1/lectures", tutorH.Lecture)
			ai.Post("/api/v1/quizzes", tutorH.Quiz)
			ai.Post("/api/v1/interviews/feedback", tutorH.InterviewFeedback)
			ai.Post("/api/v1/exams", exams.Create)
			ai.Post("/api/v1/exams/{id}/finish", exams.Finish)
			ai.Post("/api/v1/exams/{id}/retry", exams.Retry)
		})
	})

	return r
}
