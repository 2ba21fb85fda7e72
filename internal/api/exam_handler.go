package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eduvoice/eduvoice/internal/auth"
	"github.com/eduvoice/eduvoice/internal/exam"
	"github.com/eduvoice/eduvoice/internal/result"
	"github.com/eduvoice/eduvoice/internal/tutor"
	"github.com/go-chi/chi/v5"
)

// examHandler serves timed exam sessions.
type examHandler struct {
	exams           *exam.Service
	tutor           *tutor.Service
	defaultDuration time.Duration
	now             func() time.Time
}

func newExamHandler(exams *exam.Service, t *tutor.Service, defaultDuration time.Duration) *examHandler {
	return &examHandler{exams: exams, tutor: t, defaultDuration: defaultDuration, now: time.Now}
}

// examView is the client representation of a session. Durations are whole
// seconds; remaining_seconds is computed on the server clock.
type examView struct {
	ID               string                 `json:"id"`
	Topic            string                 `json:"topic"`
	Questions        []string               `json:"questions"`
	Answers          map[int]string         `json:"answers"`
	Status           exam.Status            `json:"status"`
	DurationSeconds  int64                  `json:"duration_seconds"`
	RemainingSeconds *int64                 `json:"remaining_seconds,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	Deadline         *time.Time             `json:"deadline,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	Score            *int                   `json:"score,omitempty"`
	Evaluation       *result.QuizEvaluation `json:"evaluation,omitempty"`
	FinishReason     exam.FinishReason      `json:"finish_reason,omitempty"`
	LastError        string                 `json:"last_error,omitempty"`
}

func (h *examHandler) view(s *exam.Session) examView {
	v := examView{
		ID:              s.ID,
		Topic:           s.Topic,
		Questions:       s.Questions,
		Answers:         s.Answers,
		Status:          s.Status,
		DurationSeconds: int64(s.Duration / time.Second),
		CreatedAt:       s.CreatedAt,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
		Score:           s.Score,
		Evaluation:      s.Evaluation,
		FinishReason:    s.FinishReason,
		LastError:       s.LastError,
	}
	if v.Answers == nil {
		v.Answers = map[int]string{}
	}
	if d := s.Deadline(); !d.IsZero() {
		v.Deadline = &d
		if s.Status == exam.StatusInProgress {
			left := int64(d.Sub(h.now()) / time.Second)
			if left < 0 {
				left = 0
			}
			v.RemainingSeconds = &left
		}
	}
	return v
}

type createExamRequest struct {
	Topic           string `json:"topic" validate:"required,max=200"`
	Count           int    `json:"count" validate:"required,min=1"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty" validate:"omitempty,min=0,max=86400"`
}

// Create handles POST /api/v1/exams. It generates the quiz (charged as a
// quiz) and opens a session for it. duration_seconds 0 means untimed.
func (h *examHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u := auth.UserFromContext(r.Context())

	duration := h.defaultDuration
	if req.DurationSeconds != nil {
		duration = time.Duration(*req.DurationSeconds) * time.Second
	}

	quiz, err := h.tutor.GenerateQuiz(r.Context(), u.ID, req.Topic, req.Count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := h.exams.Create(r.Context(), u.ID, req.Topic, quiz.Questions, duration)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "create", "exam", sess.ID, "questions", len(sess.Questions))
	writeJSON(w, http.StatusCreated, h.view(sess))
}

// List handles GET /api/v1/exams.
func (h *examHandler) List(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 || l > 100 {
			writeError(w, http.StatusBadRequest, "invalid_params", "limit must be between 1 and 100")
			return
		}
		limit = l
	}

	sessions, err := h.exams.List(r.Context(), u.ID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]examView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, h.view(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exams": views})
}

// Get handles GET /api/v1/exams/{id}.
func (h *examHandler) Get(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	sess, err := h.exams.Get(r.Context(), u.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(sess))
}

// Start handles POST /api/v1/exams/{id}/start. Reloading a started exam
// returns it unchanged.
func (h *examHandler) Start(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	sess, err := h.exams.Start(r.Context(), u.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(sess))
}

type answerRequest struct {
	Text string `json:"text" validate:"max=10000"`
}

// Answer handles PUT /api/v1/exams/{id}/answers/{index}.
func (h *examHandler) Answer(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "index must be an integer")
		return
	}
	var req answerRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u := auth.UserFromContext(r.Context())

	sess, err := h.exams.Answer(r.Context(), u.ID, chi.URLParam(r, "id"), index, req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(sess))
}

type finishRequest struct {
	Reason exam.FinishReason `json:"reason" validate:"required,oneof=submitted timer_expired"`
}

// Finish handles POST /api/v1/exams/{id}/finish. Finishing an already
// finished exam returns the stored result.
func (h *examHandler) Finish(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u := auth.UserFromContext(r.Context())

	sess, err := h.exams.Finish(r.Context(), u.ID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(sess))
}

// Retry handles POST /api/v1/exams/{id}/retry.
func (h *examHandler) Retry(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	sess, err := h.exams.Retry(r.Context(), u.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(sess))
}
