package exam

import "errors"

var (
	ErrNotFound         = errors.New("exam session not found")
	ErrConflict         = errors.New("exam session was modified concurrently")
	ErrNotStarted       = errors.New("exam has not started")
	ErrNotInProgress    = errors.New("exam is not in progress")
	ErrNotRetryable     = errors.New("exam evaluation can only be retried after a failure")
	ErrNoQuestions      = errors.New("exam needs at least one question")
	ErrInvalidQuestion  = errors.New("no such question")
	ErrInvalidReason    = errors.New("invalid finish reason")
	ErrTimerNotElapsed  = errors.New("exam time has not run out")
	ErrDeadlineExceeded = errors.New("exam deadline has passed")
)
