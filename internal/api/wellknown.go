package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/eduvoice.json.
const wellKnownManifest = `{
  "name": "EduVoice",
  "description": "AI tutoring API: lectures, quizzes, timed exams and interview feedback",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization",
    "signup": "/api/v1/auth/signup",
    "login": "/api/v1/auth/login"
  },
  "endpoints": {
    "me": "/api/v1/me",
    "transactions": "/api/v1/me/transactions",
    "lectures": "/api/v1/lectures",
    "quizzes": "/api/v1/quizzes",
    "interview_feedback": "/api/v1/interviews/feedback",
    "exams": "/api/v1/exams",
    "voucher_redeem": "/api/v1/vouchers/redeem"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static EduVoice well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
