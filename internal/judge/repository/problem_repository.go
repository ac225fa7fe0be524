package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/cache"
	"github.com/Majnu04/doflow-sub001/internal/common/db"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
)

const (
	defaultProblemCacheTTL      = 10 * time.Minute
	defaultProblemCacheEmptyTTL = time.Minute
	problemCacheKeyPrefix       = "judge:problem:"
)

var ErrProblemNotFound = errors.New("problem not found")

// ProblemRepository loads problems with their full case set.
type ProblemRepository interface {
	GetByID(ctx context.Context, problemID string) (*model.Problem, error)
}

// MySQLProblemRepository implements ProblemRepository with MySQL.
type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) *MySQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, problemID string) (*model.Problem, error) {
	if problemID == "" {
		return nil, errors.New("problem id is required")
	}
	if r.cache == nil {
		return r.getByIDFromDB(ctx, problemID)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemCacheKeyPrefix+problemID,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(p *model.Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.getByIDFromDB(ctx, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *MySQLProblemRepository) getByIDFromDB(ctx context.Context, problemID string) (*model.Problem, error) {
	problem := &model.Problem{}
	row := r.db.QueryRow(ctx,
		"SELECT id, title, difficulty, time_limit_ms, memory_limit_mb, compare_policy FROM problems WHERE id = ? LIMIT 1",
		problemID,
	)
	if err := row.Scan(
		&problem.ID,
		&problem.Title,
		&problem.Difficulty,
		&problem.TimeLimitMs,
		&problem.MemoryLimitMb,
		&problem.Compare,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		"SELECT input, expected_output, is_hidden FROM problem_test_cases WHERE problem_id = ? ORDER BY position ASC",
		problemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput, &tc.IsHidden); err != nil {
			return nil, err
		}
		problem.TestCases = append(problem.TestCases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return problem, nil
}

func marshalProblem(p *model.Problem) string {
	if p == nil {
		return ""
	}
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(data string) (*model.Problem, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
