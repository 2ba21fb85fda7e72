package exam

import (
	"testing"
	"time"

	"github.com/eduvoice/eduvoice/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func startedSession(duration time.Duration) *Session {
	s := &Session{
		ID:        "s1",
		Questions: []string{"q0", "q1"},
		Status:    StatusNotStarted,
		Duration:  duration,
	}
	s.Start(t0)
	return s
}

func TestStartIsIdempotent(t *testing.T) {
	s := &Session{Status: StatusNotStarted}
	assert.True(t, s.Start(t0))
	assert.Equal(t, StatusInProgress, s.Status)

	assert.False(t, s.Start(t0.Add(time.Hour)))
	assert.Equal(t, t0, *s.StartedAt)
}

func TestSetAnswer(t *testing.T) {
	s := &Session{Questions: []string{"q"}, Status: StatusNotStarted}
	_, err := s.SetAnswer(0, "a", t0, 0)
	assert.ErrorIs(t, err, ErrNotStarted)

	s = startedSession(10 * time.Minute)
	changed, err := s.SetAnswer(1, "goroutines", t0.Add(time.Minute), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "goroutines", s.Answers[1])

	changed, err = s.SetAnswer(1, "goroutines", t0.Add(2*time.Minute), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.SetAnswer(2, "x", t0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuestion)
	_, err = s.SetAnswer(-1, "x", t0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = s.SetAnswer(0, "late", t0.Add(10*time.Minute+6*time.Second), 5*time.Second)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
}

func TestBeginEvaluationTimerChecks(t *testing.T) {
	const (
		duration = 10 * time.Minute
		grace    = 5 * time.Second
	)

	tests := []struct {
		name    string
		reason  FinishReason
		elapsed time.Duration
		timed   bool
		wantErr error
	}{
		{"submit early", ReasonSubmitted, time.Minute, true, nil},
		{"submit within grace", ReasonSubmitted, duration + grace, true, nil},
		{"submit past grace", ReasonSubmitted, duration + grace + time.Second, true, ErrDeadlineExceeded},
		{"timer at deadline", ReasonTimerExpired, duration, true, nil},
		{"timer slightly early within grace", ReasonTimerExpired, duration - grace, true, nil},
		{"timer claimed too early", ReasonTimerExpired, duration - grace - time.Second, true, ErrTimerNotElapsed},
		{"timer on untimed exam", ReasonTimerExpired, time.Hour, false, ErrInvalidReason},
		{"submit untimed after hours", ReasonSubmitted, 48 * time.Hour, false, nil},
		{"unknown reason", FinishReason("bored"), time.Minute, true, ErrInvalidReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := time.Duration(0)
			if tt.timed {
				d = duration
			}
			s := startedSession(d)
			changed, err := s.BeginEvaluation(tt.reason, t0.Add(tt.elapsed), grace)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, changed)
				assert.Equal(t, StatusInProgress, s.Status)
				return
			}
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, StatusEvaluating, s.Status)
			assert.Equal(t, tt.reason, s.FinishReason)
		})
	}
}

func TestBeginEvaluationIsExclusive(t *testing.T) {
	s := startedSession(time.Minute)
	changed, err := s.BeginEvaluation(ReasonSubmitted, t0.Add(30*time.Second), 0)
	require.NoError(t, err)
	require.True(t, changed)

	// A late timer tick after submission is ignored.
	changed, err = s.BeginEvaluation(ReasonTimerExpired, t0.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, ReasonSubmitted, s.FinishReason)
}

func TestCompletedIsFrozen(t *testing.T) {
	s := startedSession(0)
	_, _ = s.SetAnswer(0, "a", t0, 0)
	_, _ = s.BeginEvaluation(ReasonSubmitted, t0, 0)
	require.NoError(t, s.Complete(&result.QuizEvaluation{Score: 90}, t0.Add(time.Minute)))
	assert.Equal(t, 90, *s.Score)

	changed, err := s.SetAnswer(0, "changed", t0, 0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "a", s.Answers[0])

	changed, err = s.BeginEvaluation(ReasonSubmitted, t0, 0)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.ErrorIs(t, s.Complete(&result.QuizEvaluation{Score: 10}, t0), ErrNotInProgress)
	assert.ErrorIs(t, s.BeginRetry(), ErrNotRetryable)
	assert.Equal(t, 90, *s.Score)
}

func TestFailAndRetry(t *testing.T) {
	s := startedSession(0)
	_, _ = s.BeginEvaluation(ReasonSubmitted, t0, 0)
	require.NoError(t, s.Fail(assert.AnError))
	assert.Equal(t, StatusErrorEvaluating, s.Status)
	assert.NotEmpty(t, s.LastError)

	require.NoError(t, s.BeginRetry())
	assert.Equal(t, StatusEvaluating, s.Status)
}

func TestCloneIsDeep(t *testing.T) {
	s := startedSession(time.Minute)
	_, _ = s.SetAnswer(0, "a", t0, 0)
	c := s.clone()
	c.Answers[0] = "b"
	c.Questions[0] = "changed"
	*c.StartedAt = t0.Add(time.Hour)

	assert.Equal(t, "a", s.Answers[0])
	assert.Equal(t, "q0", s.Questions[0])
	assert.Equal(t, t0, *s.StartedAt)
}
