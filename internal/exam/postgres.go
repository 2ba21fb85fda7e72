package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, topic, questions, answers, status, duration_seconds,
	created_at, started_at, completed_at, score, evaluation, finish_reason, last_error, version`

// PostgresStore keeps sessions in the exam_sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// sessionRow holds the encoded JSON columns of a session.
type sessionRow struct {
	questions  []byte
	answers    []byte
	evaluation []byte
}

func encodeSession(s *Session) (sessionRow, error) {
	var r sessionRow
	var err error
	if r.questions, err = json.Marshal(s.Questions); err != nil {
		return r, fmt.Errorf("encoding questions: %w", err)
	}
	answers := s.Answers
	if answers == nil {
		answers = map[int]string{}
	}
	if r.answers, err = json.Marshal(answers); err != nil {
		return r, fmt.Errorf("encoding answers: %w", err)
	}
	if s.Evaluation != nil {
		if r.evaluation, err = json.Marshal(s.Evaluation); err != nil {
			return r, fmt.Errorf("encoding evaluation: %w", err)
		}
	}
	return r, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s               Session
		r               sessionRow
		durationSeconds int64
		status, reason  string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Topic, &r.questions, &r.answers, &status, &durationSeconds,
		&s.CreatedAt, &s.StartedAt, &s.CompletedAt, &s.Score, &r.evaluation, &reason, &s.LastError, &s.Version,
	)
	if err != nil {
		return nil, err
	}
	s.Status = Status(status)
	s.FinishReason = FinishReason(reason)
	s.Duration = time.Duration(durationSeconds) * time.Second

	if err := json.Unmarshal(r.questions, &s.Questions); err != nil {
		return nil, fmt.Errorf("decoding questions: %w", err)
	}
	if err := json.Unmarshal(r.answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decoding answers: %w", err)
	}
	if len(r.evaluation) > 0 {
		if err := json.Unmarshal(r.evaluation, &s.Evaluation); err != nil {
			return nil, fmt.Errorf("decoding evaluation: %w", err)
		}
	}
	return &s, nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	r, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO exam_sessions
		 (id, user_id, topic, questions, answers, status, duration_seconds, created_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.Topic, r.questions, r.answers, string(s.Status),
		int64(s.Duration/time.Second), s.CreatedAt, s.Version,
	)
	if err != nil {
		return fmt.Errorf("creating exam session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting exam session: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	r, err := encodeSession(s)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE exam_sessions SET
		   answers = $3, status = $4, started_at = $5, completed_at = $6, score = $7,
		   evaluation = $8, finish_reason = $9, last_error = $10, version = version + 1
		 WHERE id = $1 AND version = $2`,
		s.ID, s.Version, r.answers, string(s.Status), s.StartedAt, s.CompletedAt, s.Score,
		r.evaluation, string(s.FinishReason), s.LastError,
	)
	if err != nil {
		return fmt.Errorf("updating exam session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.Get(ctx, s.ID); err != nil {
			return err
		}
		return ErrConflict
	}
	s.Version++
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing exam sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning exam session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exam session rows: %w", err)
	}
	return out, nil
}
