package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eduvoice/eduvoice/internal/result"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Evaluator scores a set of answers.
type Evaluator interface {
	EvaluateQuiz(ctx context.Context, userID string, questions []string, answers map[int]string) (*result.QuizEvaluation, error)
}

// MetricsRecorder is an optional interface for recording exam transitions.
type MetricsRecorder interface {
	IncExamTransition(to string)
}

// casRetries bounds reload-and-reapply loops after a version conflict.
const casRetries = 5

// persistTimeout bounds the write of an evaluation outcome, which runs even
// after the request context is done.
const persistTimeout = 10 * time.Second

// Service runs the exam state machine on top of a Store. The server clock is
// the only clock that counts.
type Service struct {
	store     Store
	evaluator Evaluator
	grace     time.Duration
	now       func() time.Time
	metrics   MetricsRecorder
	tracer    trace.Tracer
}

// NewService creates a service. grace is the tolerance applied to client
// timer claims and late submissions.
func NewService(store Store, evaluator Evaluator, grace time.Duration) *Service {
	return &Service{
		store:     store,
		evaluator: evaluator,
		grace:     grace,
		now:       time.Now,
		tracer:    otel.Tracer("github.com/eduvoice/eduvoice/internal/exam"),
	}
}

// SetMetrics sets the optional metrics recorder.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// SetClock replaces the clock, for tests and simulations.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create stores a new session for a generated quiz.
func (s *Service) Create(ctx context.Context, userID, topic string, questions []string, duration time.Duration) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if duration < 0 {
		duration = 0
	}
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Topic:     strings.TrimSpace(topic),
		Questions: append([]string(nil), questions...),
		Answers:   map[int]string{},
		Status:    StatusNotStarted,
		Duration:  duration.Truncate(time.Second),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// List returns the user's most recent sessions.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*Session, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// mutate loads the session, applies fn and writes it back when fn reports a
// change, reloading and reapplying on version conflicts.
func (s *Service) mutate(ctx context.Context, userID, id string, fn func(*Session) (bool, error)) (*Session, bool, error) {
	for i := 0; i < casRetries; i++ {
		sess, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, false, err
		}
		changed, err := fn(sess)
		if err != nil {
			return sess, false, err
		}
		if !changed {
			return sess, false, nil
		}
		err = s.store.Update(ctx, sess)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		s.transition(sess.Status)
		return sess, true, nil
	}
	return nil, false, ErrConflict
}

// Start moves the session to in_progress and records the start time. Calling
// it again (a page reload) returns the session unchanged.
func (s *Service) Start(ctx context.Context, userID, id string) (*Session, error) {
	sess, _, err := s.mutate(ctx, userID, id, func(sess *Session) (bool, error) {
		return sess.Start(s.now()), nil
	})
	return sess, err
}

// Answer records an answer. Once the exam has finished the call is a no-op
// and the stored session is returned.
func (s *Service) Answer(ctx context.Context, userID, id string, index int, text string) (*Session, error) {
	sess, _, err := s.mutate(ctx, userID, id, func(sess *Session) (bool, error) {
		return sess.SetAnswer(index, text, s.now(), s.grace)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Finish ends the exam and scores it. Of several concurrent callers exactly
// one wins the in_progress -> evaluating transition; the others, and any
// later call, get the stored session back without re-scoring.
func (s *Service) Finish(ctx context.Context, userID, id string, reason FinishReason) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "exam.Finish", trace.WithAttributes(
		attribute.String("exam.id", id),
		attribute.String("exam.reason", string(reason)),
	))
	defer span.End()

	sess, won, err := s.mutate(ctx, userID, id, func(sess *Session) (bool, error) {
		return sess.BeginEvaluation(reason, s.now(), s.grace)
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return sess, nil
	}
	return s.evaluate(ctx, sess)
}

// Retry re-runs a failed evaluation.
func (s *Service) Retry(ctx context.Context, userID, id string) (*Session, error) {
	sess, _, err := s.mutate(ctx, userID, id, func(sess *Session) (bool, error) {
		if err := sess.BeginRetry(); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, sess)
}

// evaluate scores a session this caller moved to evaluating and persists the
// outcome. Evaluation errors are returned unchanged after the session is
// marked error_evaluating. The outcome is written even when ctx was cancelled
// during scoring, so the session never stays stuck in evaluating.
func (s *Service) evaluate(ctx context.Context, sess *Session) (*Session, error) {
	eval, evalErr := s.evaluator.EvaluateQuiz(ctx, sess.UserID, sess.Questions, sess.Answers)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	final, _, err := s.mutate(persistCtx, sess.UserID, sess.ID, func(cur *Session) (bool, error) {
		if cur.Status != StatusEvaluating {
			return false, ErrNotInProgress
		}
		if evalErr != nil {
			return true, cur.Fail(evalErr)
		}
		return true, cur.Complete(eval, s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("saving exam evaluation: %w", err)
	}
	if evalErr != nil {
		slog.Warn("exam evaluation failed", "exam_id", sess.ID, "user_id", sess.UserID, "error", evalErr)
		return nil, evalErr
	}
	return final, nil
}

func (s *Service) transition(to Status) {
	if s.metrics != nil {
		s.metrics.IncExamTransition(string(to))
	}
}
