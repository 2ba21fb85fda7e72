package exam

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eduvoice/eduvoice/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (f *fakeEvaluator) EvaluateQuiz(_ context.Context, _ string, questions []string, answers map[int]string) (*result.QuizEvaluation, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return nil, err
	}
	ev := &result.QuizEvaluation{Score: 10 * len(answers)}
	for i := range questions {
		ev.Feedback = append(ev.Feedback, result.QuestionFeedback{Index: i, SubScore: 5})
	}
	return ev, nil
}

func (f *fakeEvaluator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type transitions struct {
	mu sync.Mutex
	to []string
}

func (tr *transitions) IncExamTransition(to string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.to = append(tr.to, to)
}

func newService(t *testing.T, ev Evaluator) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	svc := NewService(NewMemoryStore(), ev, 5*time.Second)
	svc.SetClock(clock.Now)
	return svc, clock
}

func TestServiceHappyPath(t *testing.T) {
	ev := &fakeEvaluator{}
	svc, clock := newService(t, ev)
	tr := &transitions{}
	svc.SetMetrics(tr)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "u1", "Go", []string{"q0", "q1"}, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, sess.Status)

	sess, err = svc.Start(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, sess.Status)

	clock.Advance(time.Minute)
	_, err = svc.Answer(ctx, "u1", sess.ID, 0, "a0")
	require.NoError(t, err)

	done, err := svc.Finish(ctx, "u1", sess.ID, ReasonSubmitted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Score)
	assert.Equal(t, 10, *done.Score)
	assert.Equal(t, 1, ev.count())
	assert.Equal(t, []string{"in_progress", "in_progress", "evaluating", "completed"}, tr.to)
}

func TestServiceStartReloadKeepsStartTime(t *testing.T) {
	svc, clock := newService(t, &fakeEvaluator{})
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "u1", "Go", []string{"q"}, time.Minute)
	first, err := svc.Start(ctx, "u1", sess.ID)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	again, err := svc.Start(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.StartedAt, *again.StartedAt)
	assert.Equal(t, first.Version, again.Version)
}

func TestServiceFinishTwiceIsNoop(t *testing.T) {
	ev := &fakeEvaluator{}
	svc, _ := newService(t, ev)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "u1", "Go", []string{"q"}, 0)
	_, _ = svc.Start(ctx, "u1", sess.ID)
	_, _ = svc.Answer(ctx, "u1", sess.ID, 0, "a")

	first, err := svc.Finish(ctx, "u1", sess.ID, ReasonSubmitted)
	require.NoError(t, err)
	second, err := svc.Finish(ctx, "u1", sess.ID, ReasonSubmitted)
	require.NoError(t, err)

	assert.Equal(t, 1, ev.count())
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, *first.Score, *second.Score)

	// Answer edits after completion change nothing either.
	after, err := svc.Answer(ctx, "u1", sess.ID, 0, "rewrite")
	require.NoError(t, err)
	assert.Equal(t, "a", after.Answers[0])
	assert.Equal(t, first.Version, after.Version)
}

func TestServiceConcurrentFinishScoresOnce(t *testing.T) {
	ev := &fakeEvaluator{delay: 20 * time.Millisecond}
	svc, clock := newService(t, ev)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "u1", "Go", []string{"q"}, time.Minute)
	_, _ = svc.Start(ctx, "u1", sess.ID)
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		reason := ReasonSubmitted
		if i%2 == 0 {
			reason = ReasonTimerExpired
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Finish(ctx, "u1", sess.ID, reason)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ev.count())
	final, err := svc.Get(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
}

func TestServiceRejectsEarlyTimerClaim(t *testing.T) {
	ev := &fakeEvaluator{}
	svc, clock := newService(t, ev)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "u1", "Go", []string{"q"}, 10*time.Minute)
	_, _ = svc.Start(ctx, "u1", sess.ID)
	clock.Advance(2 * time.Minute)

	_, err := svc.Finish(ctx, "u1", sess.ID, ReasonTimerExpired)
	assert.ErrorIs(t, err, ErrTimerNotElapsed)
	assert.Equal(t, 0, ev.count())

	clock.Advance(20 * time.Minute)
	_, err = svc.Finish(ctx, "u1", sess.ID, ReasonSubmitted)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)

	done, err := svc.Finish(ctx, "u1", sess.ID, ReasonTimerExpired)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, ReasonTimerExpired, done.FinishReason)
}

func TestServiceEvaluationFailureAndRetry(t *testing.T) {
	boom := errors.New("provider down")
	ev := &fakeEvaluator{err: boom}
	svc, _ := newService(t, ev)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "u1", "Go", []string{"q"}, 0)
	_, _ = svc.Start(ctx, "u1", sess.ID)

	_, err := svc.Finish(ctx, "u1", sess.ID, ReasonSubmitted)
	assert.ErrorIs(t, err, boom)

	failed, err := svc.Get(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusErrorEvaluating, failed.Status)
	assert.Equal(t, "provider down", failed.LastError)

	// Finishing again does not re-score a failed session.
	_, err = svc.Finish(ctx, "u1", sess.ID, ReasonSubmitted)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.count())

	ev.mu.Lock()
	ev.err = nil
	ev.mu.Unlock()

	done, err := svc.Retry(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Empty(t, done.LastError)

	_, err = svc.Retry(ctx, "u1", sess.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

// ctxStore fails reads and writes on a done context, as PostgresStore does.
type ctxStore struct {
	*MemoryStore
}

func (c ctxStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.MemoryStore.Get(ctx, id)
}

func (c ctxStore) Update(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStore.Update(ctx, s)
}

// cancellingEvaluator cancels the request mid-call.
type cancellingEvaluator struct {
	cancel context.CancelFunc
}

func (c cancellingEvaluator) EvaluateQuiz(ctx context.Context, _ string, _ []string, _ map[int]string) (*result.QuizEvaluation, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestServiceCancelledEvaluationIsRetryable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(ctxStore{NewMemoryStore()}, cancellingEvaluator{cancel: cancel}, 5*time.Second)
	clock := &fakeClock{now: t0}
	svc.SetClock(clock.Now)

	sess, err := svc.Create(ctx, "u1", "Go", []string{"q"}, 0)
	require.NoError(t, err)
	_, err = svc.Start(ctx, "u1", sess.ID)
	require.NoError(t, err)

	_, err = svc.Finish(ctx, "u1", sess.ID, ReasonSubmitted)
	assert.ErrorIs(t, err, context.Canceled)

	bg := context.Background()
	failed, err := svc.Get(bg, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusErrorEvaluating, failed.Status)

	svc.evaluator = &fakeEvaluator{}
	done, err := svc.Retry(bg, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestServiceOwnership(t *testing.T) {
	svc, _ := newService(t, &fakeEvaluator{})
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "u1", "Go", []string{"q"}, 0)
	_, err := svc.Get(ctx, "u2", sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Start(ctx, "u2", sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Create(ctx, "u1", "Go", nil, 0)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestMemoryStoreConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := &Session{ID: "x", UserID: "u", Status: StatusNotStarted}
	require.NoError(t, store.Create(ctx, s))

	a, _ := store.Get(ctx, "x")
	b, _ := store.Get(ctx, "x")
	a.Start(t0)
	b.Start(t0)
	require.NoError(t, store.Update(ctx, a))
	assert.ErrorIs(t, store.Update(ctx, b), ErrConflict)
	assert.Equal(t, int64(1), a.Version)
}
