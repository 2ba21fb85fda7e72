package api

import (
	"net/http"

	"github.com/eduvoice/eduvoice/internal/auth"
	"github.com/eduvoice/eduvoice/internal/tutor"
)

// tutorHandler serves the paid one-shot AI operations.
type tutorHandler struct {
	tutor *tutor.Service
}

func newTutorHandler(t *tutor.Service) *tutorHandler {
	return &tutorHandler{tutor: t}
}

type lectureRequest struct {
	Topic string `json:"topic" validate:"required,max=200"`
	Level string `json:"level" validate:"max=50"`
}

// Lecture handles POST /api/v1/lectures.
func (h *tutorHandler) Lecture(w http.ResponseWriter, r *http.Request) {
	var req lectureRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u := auth.UserFromContext(r.Context())

	lec, err := h.tutor.GenerateLecture(r.Context(), u.ID, req.Topic, req.Level)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lec)
}

type quizRequest struct {
	Topic string `json:"topic" validate:"required,max=200"`
	Count int    `json:"count" validate:"required,min=1"`
}

// Quiz handles POST /api/v1/quizzes.
func (h *tutorHandler) Quiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u := auth.UserFromContext(r.Context())

	quiz, err := h.tutor.GenerateQuiz(r.Context(), u.ID, req.Topic, req.Count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

type interviewRequest struct {
	Role       string       `json:"role" validate:"required,max=200"`
	Transcript []tutor.Turn `json:"transcript" validate:"required,min=1,max=500,dive"`
}

// InterviewFeedback handles POST /api/v1/interviews/feedback.
func (h *tutorHandler) InterviewFeedback(w http.ResponseWriter, r *http.Request) {
	var req interviewRequest
	if !decodeValid(w, r, &req) {
		return
	}
	u := auth.UserFromContext(r.Context())

	fb, err := h.tutor.EvaluateInterview(r.Context(), u.ID, req.Role, req.Transcript)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
