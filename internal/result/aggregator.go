package result

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/eduvoice/eduvoice/internal/provider"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoValidOutput means no candidate produced a usable result. It is kept
// distinct from provider failures so callers can tell "the model answered
// with garbage" from "the call failed".
var ErrNoValidOutput = errors.New("no valid output")

// Aggregator turns raw provider output into typed results. A result is
// returned only when it passes the schema and the semantic checks; nothing
// partially populated ever escapes.
type Aggregator struct {
	schemas map[Kind]*jsonschema.Schema
	tracer  trace.Tracer
}

// NewAggregator compiles the schema for every kind.
func NewAggregator() (*Aggregator, error) {
	a := &Aggregator{
		schemas: make(map[Kind]*jsonschema.Schema, len(schemas)),
		tracer:  otel.Tracer("github.com/eduvoice/eduvoice/internal/result"),
	}
	for kind, src := range schemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://eduvoice.local/schemas/%s.schema.json", kind)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("loading %s schema: %w", kind, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", kind, err)
		}
		a.schemas[kind] = compiled
	}
	return a, nil
}

func noValid(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrNoValidOutput, kind, fmt.Sprintf(format, args...))
}

// Finalize validates res against kind's schema, decodes it into T and then
// runs check. Any failure, including an unsuccessful attempt, is
// ErrNoValidOutput.
func Finalize[T any](ctx context.Context, a *Aggregator, kind Kind, res provider.Result, check func(*T) error) (*T, error) {
	_, span := a.tracer.Start(ctx, "result.Finalize", trace.WithAttributes(
		attribute.String("result.kind", string(kind)),
		attribute.String("provider.source", res.Source),
	))
	defer span.End()

	out, err := finalize(a, kind, res, check)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no valid output")
		return nil, err
	}
	return out, nil
}

func finalize[T any](a *Aggregator, kind Kind, res provider.Result, check func(*T) error) (*T, error) {
	if !res.Succeeded || len(bytes.TrimSpace(res.Output)) == 0 {
		return nil, noValid(kind, "no successful attempt")
	}
	schema, ok := a.schemas[kind]
	if !ok {
		return nil, noValid(kind, "unknown kind")
	}

	dec := json.NewDecoder(bytes.NewReader(res.Output))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, noValid(kind, "malformed JSON: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, noValid(kind, "%v", err)
	}

	out := new(T)
	if err := json.Unmarshal(res.Output, out); err != nil {
		return nil, noValid(kind, "decoding: %v", err)
	}
	if check != nil {
		if err := check(out); err != nil {
			return nil, noValid(kind, "%v", err)
		}
	}
	return out, nil
}

// Lecture finalizes a generated lecture.
func (a *Aggregator) Lecture(ctx context.Context, res provider.Result) (*Lecture, error) {
	return Finalize(ctx, a, KindLecture, res, func(l *Lecture) error {
		if strings.TrimSpace(l.Title) == "" {
			return errors.New("blank title")
		}
		for i, s := range l.Sections {
			if strings.TrimSpace(s.Heading) == "" || strings.TrimSpace(s.Body) == "" {
				return fmt.Errorf("section %d is blank", i)
			}
		}
		return nil
	})
}

// Quiz finalizes a generated quiz. When want is positive, extra questions
// are dropped; fewer than requested is accepted as long as there is one.
func (a *Aggregator) Quiz(ctx context.Context, res provider.Result, want int) (*Quiz, error) {
	return Finalize(ctx, a, KindQuiz, res, func(q *Quiz) error {
		kept := q.Questions[:0]
		for _, s := range q.Questions {
			if s = strings.TrimSpace(s); s != "" {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			return errors.New("no questions")
		}
		if want > 0 && len(kept) > want {
			kept = kept[:want]
		}
		q.Questions = kept
		return nil
	})
}

// QuizEvaluation finalizes a quiz evaluation. When questions is positive the
// feedback must cover each question index exactly once.
func (a *Aggregator) QuizEvaluation(ctx context.Context, res provider.Result, questions int) (*QuizEvaluation, error) {
	return Finalize(ctx, a, KindQuizEvaluation, res, func(e *QuizEvaluation) error {
		if questions <= 0 {
			return nil
		}
		if len(e.Feedback) != questions {
			return fmt.Errorf("feedback for %d questions, want %d", len(e.Feedback), questions)
		}
		seen := make(map[int]bool, questions)
		for _, f := range e.Feedback {
			if f.Index >= questions || seen[f.Index] {
				return fmt.Errorf("bad feedback index %d", f.Index)
			}
			seen[f.Index] = true
		}
		return nil
	})
}

// InterviewFeedback finalizes mock-interview feedback.
func (a *Aggregator) InterviewFeedback(ctx context.Context, res provider.Result) (*InterviewFeedback, error) {
	return Finalize[InterviewFeedback](ctx, a, KindInterviewFeedback, res, nil)
}
