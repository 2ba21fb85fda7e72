package exam

import (
	"time"

	"github.com/eduvoice/eduvoice/internal/result"
)

// Status is the state of an exam session. Transitions only move forward:
//
//	not_started -> in_progress -> evaluating -> completed
//	                              evaluating -> error_evaluating -> evaluating (retry)
type Status string

const (
	StatusNotStarted      Status = "not_started"
	StatusInProgress      Status = "in_progress"
	StatusEvaluating      Status = "evaluating"
	StatusCompleted       Status = "completed"
	StatusErrorEvaluating Status = "error_evaluating"
)

// FinishReason says what ended the exam.
type FinishReason string

const (
	ReasonSubmitted    FinishReason = "submitted"
	ReasonTimerExpired FinishReason = "timer_expired"
)

// Session is one sitting of a generated quiz.
type Session struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Topic        string                 `json:"topic"`
	Questions    []string               `json:"questions"`
	Answers      map[int]string         `json:"answers"`
	Status       Status                 `json:"status"`
	Duration     time.Duration          `json:"duration"` // zero means untimed
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	Score        *int                   `json:"score,omitempty"`
	Evaluation   *result.QuizEvaluation `json:"evaluation,omitempty"`
	FinishReason FinishReason           `json:"finish_reason,omitempty"`
	LastError    string                 `json:"last_error,omitempty"`
	Version      int64                  `json:"version"`
}

// Timed reports whether the session has a countdown.
func (s *Session) Timed() bool { return s.Duration > 0 }

// Deadline is StartedAt + Duration. It is zero for untimed or unstarted
// sessions.
func (s *Session) Deadline() time.Time {
	if !s.Timed() || s.StartedAt == nil {
		return time.Time{}
	}
	return s.StartedAt.Add(s.Duration)
}

// Elapsed is the server-side time since the session started.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	return now.Sub(*s.StartedAt)
}

// Finished reports whether the session has left in_progress for good.
func (s *Session) Finished() bool {
	return s.Status == StatusEvaluating || s.Status == StatusCompleted || s.Status == StatusErrorEvaluating
}

// Start records the start time on first load. Later calls change nothing.
func (s *Session) Start(now time.Time) bool {
	if s.Status != StatusNotStarted {
		return false
	}
	t := now.UTC()
	s.StartedAt = &t
	s.Status = StatusInProgress
	return true
}

// SetAnswer stores the answer for question index. Once the session has left
// in_progress it is a no-op.
func (s *Session) SetAnswer(index int, text string, now time.Time, grace time.Duration) (bool, error) {
	switch s.Status {
	case StatusNotStarted:
		return false, ErrNotStarted
	case StatusInProgress:
	default:
		return false, nil
	}
	if index < 0 || index >= len(s.Questions) {
		return false, ErrInvalidQuestion
	}
	if s.Timed() && s.Elapsed(now) > s.Duration+grace {
		return false, ErrDeadlineExceeded
	}
	if s.Answers == nil {
		s.Answers = make(map[int]string)
	}
	if cur, ok := s.Answers[index]; ok && cur == text {
		return false, nil
	}
	s.Answers[index] = text
	return true, nil
}

// BeginEvaluation moves in_progress to evaluating. A submission or a timer
// expiry that arrives after the session has finished is a no-op. Client
// claims are checked against the server clock: a timer_expired claim needs
// at least Duration - grace elapsed, and a submission later than
// Duration + grace is refused.
func (s *Session) BeginEvaluation(reason FinishReason, now time.Time, grace time.Duration) (bool, error) {
	switch s.Status {
	case StatusNotStarted:
		return false, ErrNotStarted
	case StatusInProgress:
	default:
		return false, nil
	}

	elapsed := s.Elapsed(now)
	switch reason {
	case ReasonSubmitted:
		if s.Timed() && elapsed > s.Duration+grace {
			return false, ErrDeadlineExceeded
		}
	case ReasonTimerExpired:
		if !s.Timed() {
			return false, ErrInvalidReason
		}
		if elapsed < s.Duration-grace {
			return false, ErrTimerNotElapsed
		}
	default:
		return false, ErrInvalidReason
	}

	s.Status = StatusEvaluating
	s.FinishReason = reason
	return true, nil
}

// Complete stores the evaluation and freezes the session.
func (s *Session) Complete(eval *result.QuizEvaluation, now time.Time) error {
	if s.Status != StatusEvaluating {
		return ErrNotInProgress
	}
	t := now.UTC()
	score := eval.Score
	s.Status = StatusCompleted
	s.Evaluation = eval
	s.Score = &score
	s.CompletedAt = &t
	s.LastError = ""
	return nil
}

// Fail marks the evaluation as failed; Retry may pick it up again.
func (s *Session) Fail(cause error) error {
	if s.Status != StatusEvaluating {
		return ErrNotInProgress
	}
	s.Status = StatusErrorEvaluating
	s.LastError = cause.Error()
	return nil
}

// BeginRetry moves error_evaluating back to evaluating.
func (s *Session) BeginRetry() error {
	if s.Status != StatusErrorEvaluating {
		return ErrNotRetryable
	}
	s.Status = StatusEvaluating
	return nil
}

// clone returns a deep copy.
func (s *Session) clone() *Session {
	c := *s
	c.Questions = append([]string(nil), s.Questions...)
	if s.Answers != nil {
		c.Answers = make(map[int]string, len(s.Answers))
		for k, v := range s.Answers {
			c.Answers[k] = v
		}
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	if s.Evaluation != nil {
		e := *s.Evaluation
		e.Feedback = append([]result.QuestionFeedback(nil), s.Evaluation.Feedback...)
		c.Evaluation = &e
	}
	return &c
}
