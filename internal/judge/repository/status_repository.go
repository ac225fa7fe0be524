package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/cache"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 24 * time.Hour
)

// StatusRepository keeps the latest snapshot of each submission in the cache so status
// polling does not hit the database.
type StatusRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns the snapshot for a submission.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "read status failed")
	}
	if val == "" {
		return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission status not found")
	}
	var sub model.Submission
	if err := json.Unmarshal([]byte(val), &sub); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return &sub, nil
}

// Save stores a snapshot. The source code is not kept in the cache.
func (r *StatusRepository) Save(ctx context.Context, sub *model.Submission) error {
	if sub == nil || sub.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	snapshot := *sub
	snapshot.Code = ""
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+sub.ID, string(data), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}
