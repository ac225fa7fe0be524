// Package repository persists submissions and problems and publishes their side effects.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/cache"
	"github.com/Majnu04/doflow-sub001/internal/common/db"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = time.Minute
	submissionCacheKeyPrefix       = "judge:submission:"

	// finalizeAttempts bounds Finalize retries after deadlocks and lock wait timeouts.
	finalizeAttempts = 3
)

var (
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrDuplicateSubmission = errors.New("submission id already exists")
	// ErrStaleTransition means the stored status no longer matches the expected one.
	ErrStaleTransition = errors.New("submission status changed concurrently")
)

// SubmissionRepository persists submissions. Every write is a single guarded statement.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.Submission) error
	// UpdateStatus moves a submission from one non-terminal status to the next.
	UpdateStatus(ctx context.Context, id string, from, to model.SubmissionStatus) error
	// Finalize writes the terminal status and judgment. Terminal rows are never rewritten.
	// Deadlocks and lock wait timeouts are retried.
	Finalize(ctx context.Context, sub *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *MySQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, problem_id, problem_title, user_id, roadmap_id, language, code, status, system_error, error_message, result_json, created_at, finished_at"

// Create inserts a pending submission.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, sub *model.Submission) error {
	if sub == nil {
		return errors.New("submission is nil")
	}
	if sub.ID == "" {
		return errors.New("submission id is required")
	}
	if sub.ProblemID == "" {
		return errors.New("problem id is required")
	}
	if sub.Language == "" {
		return errors.New("language is required")
	}
	if sub.Status != model.StatusPending {
		return errors.New("new submissions must be pending")
	}
	resultJSON, err := json.Marshal(sub.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO submissions
		(id, problem_id, problem_title, user_id, roadmap_id, language, code, status, system_error, error_message, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(
		ctx,
		query,
		sub.ID,
		sub.ProblemID,
		sub.ProblemTitle,
		sub.UserID,
		sub.RoadmapID,
		sub.Language,
		sub.Code,
		string(sub.Status),
		sub.SystemError,
		sub.ErrorMessage,
		string(resultJSON),
		sub.CreatedAt,
	)
	if _, dup := db.UniqueViolation(err); dup {
		return ErrDuplicateSubmission
	}
	return err
}

func (r *MySQLSubmissionRepository) UpdateStatus(ctx context.Context, id string, from, to model.SubmissionStatus) error {
	if id == "" {
		return errors.New("submission id is required")
	}
	if !from.CanTransition(to) || to.IsTerminal() {
		return errors.New("invalid status transition " + string(from) + " -> " + string(to))
	}
	update := func(ctx context.Context) error {
		res, err := r.db.Exec(ctx,
			"UPDATE submissions SET status = ? WHERE id = ? AND status = ?",
			string(to), id, string(from),
		)
		if err != nil {
			return err
		}
		return expectOneRow(res)
	}
	if r.cache == nil {
		return update(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(id), update)
}

func (r *MySQLSubmissionRepository) Finalize(ctx context.Context, sub *model.Submission) error {
	if sub == nil || sub.ID == "" {
		return errors.New("submission id is required")
	}
	if !sub.Status.IsTerminal() {
		return errors.New("finalize requires a terminal status")
	}
	resultJSON, err := json.Marshal(sub.Result)
	if err != nil {
		return err
	}
	finishedAt := time.Now()
	if sub.FinishedAt != nil {
		finishedAt = *sub.FinishedAt
	}
	write := func(ctx context.Context) error {
		res, err := r.db.Exec(ctx, `
			UPDATE submissions
			SET status = ?, system_error = ?, error_message = ?, result_json = ?, finished_at = ?
			WHERE id = ? AND status IN (?, ?)
		`,
			string(sub.Status),
			sub.SystemError,
			sub.ErrorMessage,
			string(resultJSON),
			finishedAt,
			sub.ID,
			string(model.StatusPending),
			string(model.StatusRunning),
		)
		if err != nil {
			return err
		}
		return expectOneRow(res)
	}
	update := func(ctx context.Context) error {
		return db.RetryTransient(ctx, finalizeAttempts, write)
	}
	if r.cache == nil {
		return update(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(sub.ID), update)
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	if id == "" {
		return nil, errors.New("submission id is required")
	}
	if r.cache != nil {
		sub, err := cache.GetWithCached[*model.Submission](
			ctx,
			r.cache,
			submissionCacheKey(id),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(sub *model.Submission) bool { return sub == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*model.Submission, error) {
				sub, err := r.getByIDFromDB(ctx, id)
				if err != nil {
					if errors.Is(err, ErrSubmissionNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return sub, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, ErrSubmissionNotFound
		}
		return sub, nil
	}
	return r.getByIDFromDB(ctx, id)
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, id string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, id)
	sub := &model.Submission{}
	var (
		status     string
		resultJSON sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&sub.ID,
		&sub.ProblemID,
		&sub.ProblemTitle,
		&sub.UserID,
		&sub.RoadmapID,
		&sub.Language,
		&sub.Code,
		&status,
		&sub.SystemError,
		&sub.ErrorMessage,
		&resultJSON,
		&sub.CreatedAt,
		&finishedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	sub.Status = model.SubmissionStatus(status)
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &sub.Result); err != nil {
			return nil, err
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		sub.FinishedAt = &t
	}
	return sub, nil
}

func expectOneRow(res db.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrStaleTransition
	}
	return nil
}

func submissionCacheKey(id string) string {
	return submissionCacheKeyPrefix + id
}

func marshalSubmission(sub *model.Submission) string {
	if sub == nil {
		return ""
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*model.Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var sub model.Submission
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}
