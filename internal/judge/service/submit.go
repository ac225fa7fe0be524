package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Majnu04/doflow-sub001/internal/judge/aggregator"
	"github.com/Majnu04/doflow-sub001/internal/judge/comparator"
	"github.com/Majnu04/doflow-sub001/internal/judge/harness"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	"github.com/Majnu04/doflow-sub001/internal/judge/pool"
	"github.com/Majnu04/doflow-sub001/internal/judge/repository"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
	"github.com/Majnu04/doflow-sub001/pkg/utils/contextkey"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"go.uber.org/zap"
)

// judgeTarget is what a submission is graded against.
type judgeTarget struct {
	title         string
	cases         []model.TestCase
	timeLimitMs   int64
	memoryLimitMb int64
	policy        comparator.Policy
}

// Submit grades code against the problem's full case set and persists the outcome. The
// submission moves pending -> running -> terminal. On infrastructure failure the submission
// is stored as internal_error and a coded error carrying its id is returned together with
// the public view. When ctx is cancelled the record is finalized as canceled and the context
// error is returned.
func (s *Service) Submit(ctx context.Context, req model.SubmitRequest) (*model.Submission, error) {
	if err := s.validateCode(req.Code, req.Language); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProblemID) == "" {
		return nil, appErr.ValidationError("problemId", "required")
	}
	if err := s.validateCases(req.TestCases, false); err != nil {
		return nil, err
	}
	adapter, err := s.languages.Get(req.Language)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:           s.newID(),
		ProblemID:    req.ProblemID,
		ProblemTitle: target.title,
		UserID:       req.UserID,
		RoadmapID:    req.RoadmapID,
		Code:         req.Code,
		Language:     adapter.Spec().ID,
		Status:       model.StatusPending,
		Result:       model.JudgmentResult{Results: []model.ExecutionOutcome{}, TotalTests: len(target.cases)},
		CreatedAt:    s.now().UTC(),
	}
	ctx = contextkey.WithSubmissionID(ctx, sub.ID)
	fields := []zap.Field{
		zap.String("problem_id", sub.ProblemID),
		zap.String("language", sub.Language),
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		logger.Error(ctx, "create submission failed", append(fields, zap.Error(err))...)
		return nil, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	s.saveStatus(ctx, sub)

	if err := s.submissions.UpdateStatus(ctx, sub.ID, model.StatusPending, model.StatusRunning); err != nil {
		logger.Error(ctx, "mark submission running failed", append(fields, zap.Error(err))...)
		sub.Status = model.StatusInternalError
		sub.SystemError = true
		sub.ErrorMessage = "could not start judging"
		return s.complete(ctx, sub, appErr.Wrapf(err, appErr.JudgeSystemError, "start judging failed"), fields)
	}
	sub.Status = model.StatusRunning
	s.saveStatus(ctx, sub)
	logger.Info(ctx, "submission running", append(fields, zap.Int("cases", len(target.cases)))...)

	res, execErr := s.executor.Execute(ctx, harness.Request{
		SubmissionID:  sub.ID,
		Class:         pool.ClassSubmit,
		Adapter:       adapter,
		Code:          req.Code,
		TestCases:     target.cases,
		TimeLimitMs:   target.timeLimitMs,
		MemoryLimitMb: target.memoryLimitMb,
		Policy:        target.policy,
	})

	var retErr error
	switch {
	case ctx.Err() != nil:
		// Partial outcomes are discarded.
		sub.Status = model.StatusInternalError
		sub.SystemError = true
		sub.ErrorMessage = MessageCanceled
		retErr = ctx.Err()
	case execErr != nil:
		sub.Status = model.StatusInternalError
		sub.SystemError = true
		sub.ErrorMessage = execErr.Error()
		if len(res.Results) == len(target.cases) {
			sub.Result = res
		}
		if appErr.GetCode(execErr) == appErr.JudgeQueueFull {
			retErr = execErr
		} else {
			retErr = appErr.Wrapf(execErr, appErr.JudgeSystemError, "judging failed")
		}
	default:
		sub.Result = res
		sub.Status, sub.SystemError = aggregator.DeriveStatus(res)
		if sub.SystemError {
			sub.ErrorMessage = firstInternalMessage(res)
			retErr = appErr.New(appErr.JudgeSystemError).WithMessage("judging failed on an infrastructure error")
		}
	}
	return s.complete(ctx, sub, retErr, fields)
}

// complete finalizes sub and runs the best-effort side effects. judgeErr is returned to the
// caller with the submission id attached.
func (s *Service) complete(ctx context.Context, sub *model.Submission, judgeErr error, fields []zap.Field) (*model.Submission, error) {
	persistCtx := context.WithoutCancel(ctx)
	finished := s.now().UTC()
	sub.FinishedAt = &finished

	if err := s.submissions.Finalize(persistCtx, sub); err != nil {
		logger.Error(ctx, "finalize submission failed", append(fields, zap.Error(err))...)
		if judgeErr == nil {
			judgeErr = appErr.Wrapf(err, appErr.DatabaseError, "store submission result failed")
		}
		return sub.PublicView(), withSubmissionID(judgeErr, sub.ID)
	}
	logger.Info(ctx, "submission finished", append(fields,
		zap.String("status", string(sub.Status)),
		zap.Bool("system_error", sub.SystemError),
		zap.Int("passed", sub.Result.PassedTests),
		zap.Int("total", sub.Result.TotalTests),
	)...)

	s.saveStatus(persistCtx, sub)
	s.publishFinal(persistCtx, sub, fields)
	s.archiveSubmission(persistCtx, sub, fields)
	return sub.PublicView(), withSubmissionID(judgeErr, sub.ID)
}

func (s *Service) resolveTarget(ctx context.Context, req model.SubmitRequest) (judgeTarget, error) {
	target := judgeTarget{title: req.ProblemTitle, cases: req.TestCases, policy: comparator.Default}
	if s.problems != nil {
		problem, err := s.problems.GetByID(ctx, req.ProblemID)
		switch {
		case err == nil:
			policy, perr := comparator.ParsePolicy(problem.Compare)
			if perr != nil {
				return judgeTarget{}, perr
			}
			target.cases = problem.TestCases
			target.timeLimitMs = problem.TimeLimitMs
			target.memoryLimitMb = problem.MemoryLimitMb
			target.policy = policy
			if problem.Title != "" {
				target.title = problem.Title
			}
		case errors.Is(err, repository.ErrProblemNotFound):
			if len(req.TestCases) == 0 {
				return judgeTarget{}, appErr.New(appErr.ProblemNotFound).WithMessagef("problem %s not found", req.ProblemID)
			}
			logger.Debug(ctx, "problem not stored, judging request cases", zap.String("problem_id", req.ProblemID))
		default:
			return judgeTarget{}, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
		}
	}
	if len(target.cases) == 0 {
		return judgeTarget{}, appErr.ValidationError("testCases", "required")
	}
	if len(target.cases) > s.maxTestCases {
		return judgeTarget{}, appErr.New(appErr.TooManyTestCases).WithMessagef("at most %d test cases are allowed", s.maxTestCases)
	}
	return target, nil
}

func (s *Service) saveStatus(ctx context.Context, sub *model.Submission) {
	if s.status == nil {
		return
	}
	ctxStatus, cancel := context.WithTimeout(ctx, s.sideEffectTimeout)
	defer cancel()
	if err := s.status.Save(ctxStatus, sub); err != nil {
		logger.Warn(ctx, "update status snapshot failed", zap.String("status", string(sub.Status)), zap.Error(err))
	}
}

func (s *Service) publishFinal(ctx context.Context, sub *model.Submission, fields []zap.Field) {
	if s.events == nil {
		return
	}
	ctxEvent, cancel := context.WithTimeout(ctx, s.sideEffectTimeout)
	defer cancel()
	if err := s.events.PublishFinalStatus(ctxEvent, sub); err != nil {
		logger.Warn(ctx, "publish final status failed", append(fields, zap.Error(err))...)
	}
}

func (s *Service) archiveSubmission(ctx context.Context, sub *model.Submission, fields []zap.Field) {
	if s.archive == nil {
		return
	}
	ctxArchive, cancel := context.WithTimeout(ctx, s.sideEffectTimeout)
	defer cancel()
	key, err := s.archive.Archive(ctxArchive, sub)
	if err != nil {
		logger.Warn(ctx, "archive submission failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Debug(ctx, "submission archived", append(fields, zap.String("key", key))...)
}

// withSubmissionID attaches the id to coded errors. Context errors pass through unchanged.
func withSubmissionID(err error, id string) error {
	if err == nil {
		return nil
	}
	var coded *appErr.Error
	if errors.As(err, &coded) {
		return coded.WithDetail("submissionId", id)
	}
	return err
}

func firstInternalMessage(res model.JudgmentResult) string {
	for _, o := range res.Results {
		if o.ErrorKind == model.ErrorKindInternalError && o.ErrorMessage != "" {
			return o.ErrorMessage
		}
	}
	return harness.MessageSandboxFailed
}
