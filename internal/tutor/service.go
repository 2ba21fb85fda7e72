package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/eduvoice/eduvoice/internal/provider"
	"github.com/eduvoice/eduvoice/internal/result"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation names, used for transaction descriptions, spans and metrics.
const (
	OpLecture        = "lecture"
	OpQuiz           = "quiz"
	OpQuizEvaluation = "quiz_evaluation"
	OpInterview      = "interview_feedback"
)

var (
	// ErrInvalidInput is returned before any charge when a request is unusable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderFailed wraps every failure of the provider call itself, as
	// opposed to an unusable answer (result.ErrNoValidOutput).
	ErrProviderFailed = errors.New("provider call failed")
)

// Charger deducts the cost of an operation, or skips for subscribers.
type Charger interface {
	ChargeOrSkip(ctx context.Context, userID string, cost int64, description string) (ledger.Charge, error)
}

// KeySource returns a user's personal provider key, or "" when none is set.
type KeySource interface {
	ProviderKey(ctx context.Context, userID string) (string, error)
}

// MetricsRecorder is an optional interface for recording operation outcomes.
type MetricsRecorder interface {
	IncTutorOperation(operation, result string)
}

// Costs is the token price of each operation.
type Costs struct {
	Lecture        int64
	Quiz           int64
	QuizEvaluation int64
	Interview      int64
}

// Options configures a Service.
type Options struct {
	Costs        Costs
	PlatformKey  string
	MaxQuestions int
}

// Turn is one utterance in an interview transcript.
type Turn struct {
	Speaker string `json:"speaker" validate:"required"`
	Text    string `json:"text" validate:"required"`
}

// Service runs paid AI operations: charge, call the provider with the
// caller's key then the platform key, and finalize the typed result.
type Service struct {
	gate       Charger
	sequencer  *provider.Sequencer
	invoker    provider.Invoker
	aggregator *result.Aggregator
	keys       KeySource
	opts       Options
	metrics    MetricsRecorder
	tracer     trace.Tracer
}

// NewService wires an orchestration service. keys may be nil, in which case
// only the platform key is used.
func NewService(gate Charger, seq *provider.Sequencer, invoker provider.Invoker, agg *result.Aggregator, keys KeySource, opts Options) *Service {
	if opts.MaxQuestions <= 0 {
		opts.MaxQuestions = 20
	}
	return &Service{
		gate:       gate,
		sequencer:  seq,
		invoker:    invoker,
		aggregator: agg,
		keys:       keys,
		opts:       opts,
		tracer:     otel.Tracer("github.com/eduvoice/eduvoice/internal/tutor"),
	}
}

// SetMetrics sets the optional metrics recorder.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// GenerateLecture writes a lecture on topic. level is an optional audience
// hint such as "introductory".
func (s *Service) GenerateLecture(ctx context.Context, userID, topic, level string) (*result.Lecture, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	return run(ctx, s, OpLecture, userID, s.opts.Costs.Lecture, lecturePrompt(topic, strings.TrimSpace(level)),
		s.aggregator.Lecture)
}

// GenerateQuiz writes up to count questions on topic.
func (s *Service) GenerateQuiz(ctx context.Context, userID, topic string, count int) (*result.Quiz, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if count < 1 || count > s.opts.MaxQuestions {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, s.opts.MaxQuestions)
	}
	return run(ctx, s, OpQuiz, userID, s.opts.Costs.Quiz, quizPrompt(topic, count),
		func(ctx context.Context, res provider.Result) (*result.Quiz, error) {
			return s.aggregator.Quiz(ctx, res, count)
		})
}

// EvaluateQuiz scores answers against questions. It satisfies exam.Evaluator.
func (s *Service) EvaluateQuiz(ctx context.Context, userID string, questions []string, answers map[int]string) (*result.QuizEvaluation, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions to evaluate", ErrInvalidInput)
	}
	return run(ctx, s, OpQuizEvaluation, userID, s.opts.Costs.QuizEvaluation, evaluationPrompt(questions, answers),
		func(ctx context.Context, res provider.Result) (*result.QuizEvaluation, error) {
			return s.aggregator.QuizEvaluation(ctx, res, len(questions))
		})
}

// EvaluateInterview grades a mock interview transcript for role.
func (s *Service) EvaluateInterview(ctx context.Context, userID, role string, transcript []Turn) (*result.InterviewFeedback, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	if len(transcript) == 0 {
		return nil, fmt.Errorf("%w: transcript is empty", ErrInvalidInput)
	}
	return run(ctx, s, OpInterview, userID, s.opts.Costs.Interview, interviewPrompt(role, transcript),
		s.aggregator.InterviewFeedback)
}

// run charges, sequences the provider call and finalizes. Once charged, a
// failed call is not refunded.
func run[T any](ctx context.Context, s *Service, op, userID string, cost int64, prompt provider.Prompt, finalize func(context.Context, provider.Result) (*T, error)) (*T, error) {
	ctx, span := s.tracer.Start(ctx, "tutor."+op, trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("tutor.operation", op),
	))
	defer span.End()

	charge, err := s.gate.ChargeOrSkip(ctx, userID, cost, op)
	if err != nil {
		s.fail(span, op, outcomeFor(err), err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("ledger.charged", charge.Charged))

	candidates := provider.Credentials(s.userKey(ctx, userID), s.opts.PlatformKey)
	res, err := s.sequencer.Attempt(ctx, candidates, func(ctx context.Context, c provider.Credential) (json.RawMessage, error) {
		return s.invoker.GenerateJSON(ctx, c, prompt)
	})
	if err != nil {
		if ctx.Err() != nil {
			s.fail(span, op, "canceled", err)
			return nil, err
		}
		s.fail(span, op, "provider_error", err)
		slog.Warn("provider call failed", "operation", op, "user_id", userID, "attempts", len(res.Attempts), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	span.SetAttributes(attribute.String("provider.source", res.Source))

	out, err := finalize(ctx, res)
	if err != nil {
		s.fail(span, op, "no_valid_output", err)
		slog.Warn("provider output rejected", "operation", op, "user_id", userID, "source", res.Source, "error", err)
		return nil, err
	}
	s.inc(op, "ok")
	return out, nil
}

// userKey looks up the caller's own key. A lookup failure falls back to the
// platform key alone.
func (s *Service) userKey(ctx context.Context, userID string) string {
	if s.keys == nil {
		return ""
	}
	key, err := s.keys.ProviderKey(ctx, userID)
	if err != nil {
		slog.Warn("failed to load user provider key", "user_id", userID, "error", err)
		return ""
	}
	return key
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientTokens):
		return "insufficient_tokens"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return "account_not_found"
	default:
		return "charge_error"
	}
}

func (s *Service) fail(span trace.Span, op, outcome string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	s.inc(op, outcome)
}

func (s *Service) inc(op, outcome string) {
	if s.metrics != nil {
		s.metrics.IncTutorOperation(op, outcome)
	}
}
