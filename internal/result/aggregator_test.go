package result

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/eduvoice/eduvoice/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func ok(raw string) provider.Result {
	return provider.Result{Succeeded: true, Output: json.RawMessage(raw), Source: provider.SourcePlatform}
}

var ctx = context.Background()

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := NewAggregator()
	require.NoError(t, err)
	return a
}

func TestLecture(t *testing.T) {
	a := newAggregator(t)

	l, err := a.Lecture(ctx, ok(`{"title":"Channels","sections":[{"heading":"Basics","body":"A channel is..."}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Channels", l.Title)
	assert.Len(t, l.Sections, 1)

	bad := []string{
		`{"title":"Channels","sections":[]}`,
		`{"title":"","sections":[{"heading":"a","body":"b"}]}`,
		`{"title":"  ","sections":[{"heading":"a","body":"b"}]}`,
		`{"title":"x","sections":[{"heading":"a","body":"   "}]}`,
		`{"sections":[{"heading":"a","body":"b"}]}`,
		`not json`,
	}
	for _, raw := range bad {
		_, err := a.Lecture(ctx, ok(raw))
		assert.ErrorIs(t, err, ErrNoValidOutput, raw)
	}
}

func TestQuiz(t *testing.T) {
	a := newAggregator(t)

	q, err := a.Quiz(ctx, ok(`{"questions":["What is Go?"," ","Why channels?","Extra?"]}`), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"What is Go?", "Why channels?"}, q.Questions)

	_, err = a.Quiz(ctx, ok(`{"questions":[]}`), 3)
	assert.ErrorIs(t, err, ErrNoValidOutput)

	_, err = a.Quiz(ctx, ok(`{"questions":["   "]}`), 3)
	assert.ErrorIs(t, err, ErrNoValidOutput)

	_, err = a.Quiz(ctx, ok(`{"questions":"one"}`), 1)
	assert.ErrorIs(t, err, ErrNoValidOutput)
}

func TestQuizEvaluation(t *testing.T) {
	a := newAggregator(t)

	good := `{"score":85,"feedback":[{"index":0,"sub_score":9,"comment":"good"},{"index":1,"sub_score":8,"comment":"ok"}]}`
	e, err := a.QuizEvaluation(ctx, ok(good), 2)
	require.NoError(t, err)
	assert.Equal(t, 85, e.Score)

	tests := []struct {
		name string
		raw  string
		n    int
	}{
		{"score above 100", `{"score":101,"feedback":[]}`, 0},
		{"negative score", `{"score":-1,"feedback":[]}`, 0},
		{"sub score above 10", `{"score":50,"feedback":[{"index":0,"sub_score":11,"comment":""}]}`, 1},
		{"fractional score", `{"score":50.5,"feedback":[]}`, 0},
		{"missing feedback", `{"score":50}`, 0},
		{"feedback count mismatch", good, 3},
		{"duplicate index", `{"score":50,"feedback":[{"index":0,"sub_score":1,"comment":""},{"index":0,"sub_score":1,"comment":""}]}`, 2},
		{"index out of range", `{"score":50,"feedback":[{"index":5,"sub_score":1,"comment":""}]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.QuizEvaluation(ctx, ok(tt.raw), tt.n)
			assert.ErrorIs(t, err, ErrNoValidOutput)
		})
	}
}

func TestInterviewFeedback(t *testing.T) {
	a := newAggregator(t)

	f, err := a.InterviewFeedback(ctx, ok(`{"overall":72,"communication":8,"technical":6,"confidence":7,"strengths":["clear"],"improvements":["depth"]}`))
	require.NoError(t, err)
	assert.Equal(t, 72, f.Overall)
	assert.Equal(t, []string{"clear"}, f.Strengths)

	_, err = a.InterviewFeedback(ctx, ok(`{"overall":72,"communication":11,"technical":6,"confidence":7,"strengths":[],"improvements":[]}`))
	assert.ErrorIs(t, err, ErrNoValidOutput)

	_, err = a.InterviewFeedback(ctx, ok(`{"overall":72}`))
	assert.ErrorIs(t, err, ErrNoValidOutput)
}

func TestFinalizeRejectsFailedAttempt(t *testing.T) {
	a := newAggregator(t)

	_, err := a.Lecture(ctx, provider.Result{Succeeded: false})
	assert.ErrorIs(t, err, ErrNoValidOutput)

	_, err = a.Quiz(ctx, provider.Result{Succeeded: true, Output: json.RawMessage("  ")}, 1)
	assert.ErrorIs(t, err, ErrNoValidOutput)

	_, err = Finalize[Quiz](ctx, a, Kind("unknown"), ok(`{}`), nil)
	assert.ErrorIs(t, err, ErrNoValidOutput)
}

func TestFinalizeSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	a := newAggregator(t)
	a.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("test")

	_, err := a.Quiz(ctx, ok(`{"questions":["What is Go?"]}`), 1)
	require.NoError(t, err)
	_, err = a.Quiz(ctx, ok(`{"questions":[]}`), 1)
	require.ErrorIs(t, err, ErrNoValidOutput)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "result.Finalize", s.Name())
	}
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
