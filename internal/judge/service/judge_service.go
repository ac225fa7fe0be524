// Package service implements the judge orchestrator: ungraded runs, graded submissions and
// submission lookup.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/judge/aggregator"
	"github.com/Majnu04/doflow-sub001/internal/judge/comparator"
	"github.com/Majnu04/doflow-sub001/internal/judge/harness"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	"github.com/Majnu04/doflow-sub001/internal/judge/pool"
	"github.com/Majnu04/doflow-sub001/internal/judge/repository"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/language"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
	"github.com/Majnu04/doflow-sub001/pkg/utils/contextkey"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxCodeBytes      = 64 * 1024
	defaultMaxTestCases      = 100
	defaultMaxInputBytes     = 1 << 20
	defaultSideEffectTimeout = 3 * time.Second

	// MessageCanceled is stored on submissions whose caller went away mid-judging.
	MessageCanceled = "canceled"
)

// Executor runs a prepared request over its test cases.
type Executor interface {
	Execute(ctx context.Context, req harness.Request) (model.JudgmentResult, error)
}

// Languages resolves language adapters.
type Languages interface {
	Get(id string) (language.Adapter, error)
}

// StatusStore caches submission snapshots for polling.
type StatusStore interface {
	Get(ctx context.Context, submissionID string) (*model.Submission, error)
	Save(ctx context.Context, sub *model.Submission) error
}

// Archiver stores an audit copy of a finished submission.
type Archiver interface {
	Archive(ctx context.Context, sub *model.Submission) (string, error)
}

// RunLimiter throttles ungraded runs per user.
type RunLimiter interface {
	Allow(ctx context.Context, userID string) error
}

// Config holds service dependencies and settings. Status, Events, Archive and Limiter are
// optional.
type Config struct {
	Executor    Executor
	Languages   Languages
	Problems    repository.ProblemRepository
	Submissions repository.SubmissionRepository
	Status      StatusStore
	Events      repository.StatusEventPublisher
	Archive     Archiver
	Limiter     RunLimiter

	MaxCodeBytes      int
	MaxTestCases      int
	MaxInputBytes     int
	SideEffectTimeout time.Duration

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Service orchestrates judging.
type Service struct {
	executor    Executor
	languages   Languages
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	status      StatusStore
	events      repository.StatusEventPublisher
	archive     Archiver
	limiter     RunLimiter

	maxCodeBytes      int
	maxTestCases      int
	maxInputBytes     int
	sideEffectTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.MaxTestCases <= 0 {
		cfg.MaxTestCases = defaultMaxTestCases
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = defaultMaxInputBytes
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = defaultSideEffectTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &Service{
		executor:          cfg.Executor,
		languages:         cfg.Languages,
		problems:          cfg.Problems,
		submissions:       cfg.Submissions,
		status:            cfg.Status,
		events:            cfg.Events,
		archive:           cfg.Archive,
		limiter:           cfg.Limiter,
		maxCodeBytes:      cfg.MaxCodeBytes,
		maxTestCases:      cfg.MaxTestCases,
		maxInputBytes:     cfg.MaxInputBytes,
		sideEffectTimeout: cfg.SideEffectTimeout,
		now:               cfg.Now,
		newID:             cfg.NewID,
	}, nil
}

// Run judges code against caller supplied cases without persisting anything. Hidden cases
// are redacted in the returned result.
func (s *Service) Run(ctx context.Context, req model.RunRequest) (model.JudgmentResult, error) {
	if err := s.validateCode(req.Code, req.Language); err != nil {
		return model.JudgmentResult{}, err
	}
	if err := s.validateCases(req.TestCases, true); err != nil {
		return model.JudgmentResult{}, err
	}
	adapter, err := s.languages.Get(req.Language)
	if err != nil {
		return model.JudgmentResult{}, err
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, req.UserID); err != nil {
			return model.JudgmentResult{}, err
		}
	}

	runID := "run-" + s.newID()
	ctx = contextkey.WithSubmissionID(ctx, runID)
	res, err := s.executor.Execute(ctx, harness.Request{
		SubmissionID: runID,
		Class:        pool.ClassRun,
		Adapter:      adapter,
		Code:         req.Code,
		TestCases:    req.TestCases,
		Policy:       comparator.Default,
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.JudgmentResult{}, ctx.Err()
		}
		fields := []zap.Field{zap.String("language", req.Language), zap.Error(err)}
		if appErr.GetCode(err) == appErr.JudgeQueueFull {
			if harness.Unscheduled(res) == len(req.TestCases) {
				return model.JudgmentResult{}, err
			}
			logger.Warn(ctx, "run partially scheduled", fields...)
			return model.Redact(res), nil
		}
		logger.Error(ctx, "run failed in sandbox", fields...)
		return model.Redact(failedResult(req.TestCases, harness.MessageSandboxFailed)), nil
	}
	return model.Redact(res), nil
}

func (s *Service) validateCode(code, lang string) error {
	if strings.TrimSpace(code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(code) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessagef("code exceeds %d bytes", s.maxCodeBytes)
	}
	if strings.TrimSpace(lang) == "" {
		return appErr.ValidationError("language", "required")
	}
	return nil
}

func (s *Service) validateCases(cases []model.TestCase, required bool) error {
	if len(cases) == 0 {
		if required {
			return appErr.ValidationError("testCases", "required")
		}
		return nil
	}
	if len(cases) > s.maxTestCases {
		return appErr.New(appErr.TooManyTestCases).WithMessagef("at most %d test cases are allowed", s.maxTestCases)
	}
	for i, tc := range cases {
		if len(tc.Input) > s.maxInputBytes {
			return appErr.New(appErr.CustomInputTooLarge).WithMessagef("test case %d input exceeds %d bytes", i, s.maxInputBytes)
		}
	}
	return nil
}

// failedResult reports every case as an internal error.
func failedResult(cases []model.TestCase, message string) model.JudgmentResult {
	outcomes := make([]model.ExecutionOutcome, len(cases))
	for i, tc := range cases {
		outcomes[i] = model.ExecutionOutcome{
			TestCaseIndex:  i,
			IsHidden:       tc.IsHidden,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ErrorKind:      model.ErrorKindInternalError,
			ErrorMessage:   message,
		}
	}
	return aggregator.Aggregate(outcomes)
}
