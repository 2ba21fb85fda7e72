package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Credential source labels.
const (
	SourceUser     = "user"
	SourcePlatform = "platform"
)

// Credential is one candidate API key. Candidates are tried in slice order;
// the platform default is always last.
type Credential struct {
	SourceLabel string
	Secret      string
	Priority    int
}

// Credentials builds the ordered candidate list for a call: the caller's
// own key (when present) followed by the platform default.
func Credentials(userSecret, platformSecret string) []Credential {
	var out []Credential
	if userSecret != "" {
		out = append(out, Credential{SourceLabel: SourceUser, Secret: userSecret, Priority: len(out)})
	}
	return append(out, Credential{SourceLabel: SourcePlatform, Secret: platformSecret, Priority: len(out)})
}

// InvokeFunc performs one provider call with the given credential.
type InvokeFunc func(ctx context.Context, cred Credential) (json.RawMessage, error)

// Attempt records a single provider call.
type Attempt struct {
	Source     string
	Err        error
	Kind       ErrorKind
	Classified bool
}

// Result is the outcome of a sequenced call.
type Result struct {
	Succeeded       bool
	Output          json.RawMessage
	Source          string
	ClassifiedError *ErrorKind
	Attempts        []Attempt
}

// Observer receives per-attempt notifications, typically for metrics.
type Observer interface {
	ObserveAttempt(source string, outcome string)
	ObserveClassification(kind ErrorKind)
}

// Sequencer tries candidate credentials one at a time, falling back to the
// next candidate only when a failure is classified as a key/quota problem.
type Sequencer struct {
	classifier             Classifier
	alwaysTryFinalFallback bool
	observer               Observer
	logger                 *slog.Logger
	tracer                 trace.Tracer
}

// NewSequencer creates a sequencer. When alwaysTryFinalFallback is set, a
// hard failure on an earlier candidate still lets the platform credential be
// tried once before the error is returned.
func NewSequencer(classifier Classifier, alwaysTryFinalFallback bool) *Sequencer {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Sequencer{
		classifier:             classifier,
		alwaysTryFinalFallback: alwaysTryFinalFallback,
		logger:                 slog.Default(),
		tracer:                 otel.Tracer("github.com/eduvoice/eduvoice/internal/provider"),
	}
}

// SetObserver sets the optional attempt observer.
func (s *Sequencer) SetObserver(o Observer) {
	s.observer = o
}

// Attempt runs invoke against candidates in order. Each credential is tried
// at most once and no call is made after the first success.
func (s *Sequencer) Attempt(ctx context.Context, candidates []Credential, invoke InvokeFunc) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "provider.Attempt", trace.WithAttributes(
		attribute.Int("provider.candidates", len(candidates)),
	))
	defer span.End()

	res, err := s.attempt(ctx, candidates, invoke)
	span.SetAttributes(attribute.Int("provider.attempts", len(res.Attempts)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.String("provider.source", res.Source))
	return res, nil
}

func (s *Sequencer) attempt(ctx context.Context, candidates []Credential, invoke InvokeFunc) (Result, error) {
	var res Result
	if len(candidates) == 0 {
		return res, ErrNoCandidates
	}

	last := len(candidates) - 1
	final := candidates[last]
	finalTried := false
	attempted := 0

	var hardErr, lastErr error

	for i, c := range candidates {
		if c.Secret == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		attempted++
		// The platform default tried on its own propagates unclassified.
		alone := i == last && attempted == 1
		out, kind, err := s.call(ctx, &res, c, invoke, !alone)
		if i == last {
			finalTried = true
		}
		if err == nil {
			return s.succeed(res, c, out), nil
		}
		if alone {
			s.observe(c.SourceLabel, "error")
			return res, err
		}

		lastErr = err
		if kind == HardError {
			s.observe(c.SourceLabel, "hard_error")
			hardErr = err
			break
		}
		s.observe(c.SourceLabel, "key_error")
		s.logger.Warn("provider credential rejected, trying next",
			"source", c.SourceLabel,
			"error", err,
		)
	}

	if attempted == 0 {
		return res, ErrNoCandidates
	}

	if hardErr != nil {
		if finalTried || !s.alwaysTryFinalFallback || final.Secret == "" {
			return res, hardErr
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, _, err := s.call(ctx, &res, final, invoke, true)
		if err == nil {
			return s.succeed(res, final, out), nil
		}
		s.observe(final.SourceLabel, "error")
		return res, err
	}

	return res, fmt.Errorf("%w: %w", ErrCandidatesExhausted, lastErr)
}

// call makes one provider call in its own span and, when classify is set,
// classifies a failure.
func (s *Sequencer) call(ctx context.Context, res *Result, c Credential, invoke InvokeFunc, classify bool) (json.RawMessage, ErrorKind, error) {
	ctx, span := s.tracer.Start(ctx, "provider.call", trace.WithAttributes(
		attribute.String("provider.source", c.SourceLabel),
		attribute.Int("provider.priority", c.Priority),
	))
	defer span.End()

	out, err := invoke(ctx, c)
	res.Attempts = append(res.Attempts, Attempt{Source: c.SourceLabel, Err: err})
	if err == nil {
		return out, HardError, nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "provider call failed")
	if !classify {
		return nil, HardError, err
	}
	kind := s.classify(res, err)
	span.SetAttributes(attribute.String("provider.error_kind", kind.String()))
	return nil, kind, err
}

func (s *Sequencer) classify(res *Result, err error) ErrorKind {
	kind := safeClassify(s.classifier, err)
	a := &res.Attempts[len(res.Attempts)-1]
	a.Kind = kind
	a.Classified = true
	res.ClassifiedError = &kind
	if s.observer != nil {
		s.observer.ObserveClassification(kind)
	}
	return kind
}

func (s *Sequencer) succeed(res Result, c Credential, out json.RawMessage) Result {
	res.Succeeded = true
	res.Output = out
	res.Source = c.SourceLabel
	s.observe(c.SourceLabel, "success")
	return res
}

func (s *Sequencer) observe(source, outcome string) {
	if s.observer != nil {
		s.observer.ObserveAttempt(source, outcome)
	}
}
