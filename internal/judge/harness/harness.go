// Package harness runs a snippet against every test case of a run or submission.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/judge/aggregator"
	"github.com/Majnu04/doflow-sub001/internal/judge/comparator"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	"github.com/Majnu04/doflow-sub001/internal/judge/pool"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/language"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/result"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/runner"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
	"github.com/Majnu04/doflow-sub001/pkg/utils/contextkey"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultParallelism = 4
	defaultBudget      = 30 * time.Second

	// MaxErrorMessageBytes bounds learner-facing diagnostics.
	MaxErrorMessageBytes = 1024
	// MaxActualOutputBytes bounds the captured output kept per case.
	MaxActualOutputBytes = 64 * 1024

	MessageNotScheduled  = "no execution slot available"
	MessageBudgetExpired = "submission time budget exceeded"
	MessageSandboxFailed = "sandbox failure"
)

// ErrBudgetExceeded is the cancellation cause when the per-submission budget runs out.
var ErrBudgetExceeded = errors.New("submission time budget exceeded")

// Slots hands out execution slots.
type Slots interface {
	Acquire(ctx context.Context, class pool.Class) (*pool.Lease, error)
}

// Config controls harness behavior.
type Config struct {
	// Parallelism bounds concurrently running cases per submission.
	Parallelism int
	// Budget is the wall-clock budget for one whole submission.
	Budget time.Duration
}

// Request is one snippet to execute against a list of cases.
type Request struct {
	SubmissionID string
	Class        pool.Class
	Adapter      language.Adapter
	Code         string
	TestCases    []model.TestCase
	// TimeLimitMs and MemoryLimitMb of zero fall back to the language defaults.
	TimeLimitMs   int64
	MemoryLimitMb int64
	Policy        comparator.Policy
}

// Harness prepares a unit once and runs each case exactly once.
type Harness struct {
	runner      runner.Runner
	slots       Slots
	parallelism int
	budget      time.Duration
}

// New creates a harness.
func New(cfg Config, r runner.Runner, slots Slots) (*Harness, error) {
	if r == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if slots == nil {
		return nil, fmt.Errorf("slots are required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.Budget <= 0 {
		cfg.Budget = defaultBudget
	}
	return &Harness{runner: r, slots: slots, parallelism: cfg.Parallelism, budget: cfg.Budget}, nil
}

// Execute runs every case and returns one outcome per case in input order, also when an
// error is returned. Cases that never got an execution slot are reported together with a
// JudgeQueueFull error; cases cut off by the budget are timeouts. When ctx is cancelled,
// in-flight processes are killed and only the context error is returned.
func (h *Harness) Execute(ctx context.Context, req Request) (model.JudgmentResult, error) {
	if err := validateRequest(req); err != nil {
		return model.JudgmentResult{}, err
	}
	if req.Class == "" {
		req.Class = pool.ClassRun
	}
	ctx = contextkey.WithSubmissionID(ctx, req.SubmissionID)
	lang := req.Adapter.Spec().ID
	fields := []zap.Field{
		zap.String("language", lang),
		zap.Int("cases", len(req.TestCases)),
	}

	budgetCtx, cancel := context.WithTimeoutCause(ctx, h.budget, ErrBudgetExceeded)
	defer cancel()
	defer func() {
		if err := h.runner.Cleanup(context.WithoutCancel(ctx), req.SubmissionID); err != nil {
			logger.Warn(ctx, "cleanup workspace failed", append(fields, zap.Error(err))...)
		}
	}()
	killDone := make(chan struct{})
	stopKill := context.AfterFunc(budgetCtx, func() {
		defer close(killDone)
		if err := h.runner.Kill(context.WithoutCancel(ctx), req.SubmissionID); err != nil {
			logger.Warn(ctx, "kill submission processes failed", append(fields, zap.Error(err))...)
		}
	})
	defer func() {
		if !stopKill() {
			<-killDone
		}
	}()

	unit, compileRes, err := h.prepare(budgetCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return model.JudgmentResult{}, ctx.Err()
		}
		if budgetExpired(budgetCtx) {
			logger.Info(ctx, "budget expired before any case ran", fields...)
			return aggregator.Aggregate(uniformOutcomes(req.TestCases, model.ErrorKindTimeout, MessageBudgetExpired)), nil
		}
		if appErr.GetCode(err) == appErr.JudgeQueueFull {
			return aggregator.Aggregate(uniformOutcomes(req.TestCases, model.ErrorKindInternalError, MessageNotScheduled)), err
		}
		logger.Error(ctx, "prepare unit failed", append(fields, zap.Error(err))...)
		return aggregator.Aggregate(uniformOutcomes(req.TestCases, model.ErrorKindInternalError, MessageSandboxFailed)), err
	}
	if !compileRes.OK {
		logger.Info(ctx, "compile step rejected code", fields...)
		msg := model.Truncate(compileRes.Log, MaxErrorMessageBytes)
		return aggregator.Aggregate(uniformOutcomes(req.TestCases, model.ErrorKindCompileError, msg)), nil
	}

	outcomes, unscheduled := h.runCases(budgetCtx, req, unit)
	if ctx.Err() != nil {
		logger.Info(ctx, "execution cancelled by caller", fields...)
		return model.JudgmentResult{}, ctx.Err()
	}
	res := aggregator.Aggregate(outcomes)
	logger.Info(ctx, "execution finished", append(fields,
		zap.Int("passed", res.PassedTests),
		zap.Int("unscheduled", unscheduled),
	)...)
	if unscheduled > 0 {
		return res, appErr.New(appErr.JudgeQueueFull).
			WithMessagef("%d of %d test cases could not be scheduled", unscheduled, len(req.TestCases))
	}
	return res, nil
}

// prepare holds one slot while compiling.
func (h *Harness) prepare(ctx context.Context, req Request) (*runner.Unit, result.CompileResult, error) {
	if !req.Adapter.Spec().CompileEnabled() {
		return h.runner.Prepare(ctx, h.prepareRequest(req))
	}
	lease, err := h.slots.Acquire(ctx, req.Class)
	if err != nil {
		return nil, result.CompileResult{}, err
	}
	defer lease.Release()
	return h.runner.Prepare(ctx, h.prepareRequest(req))
}

func (h *Harness) prepareRequest(req Request) runner.PrepareRequest {
	return runner.PrepareRequest{
		SubmissionID: req.SubmissionID,
		Adapter:      req.Adapter,
		Code:         req.Code,
	}
}

func (h *Harness) runCases(ctx context.Context, req Request, unit *runner.Unit) ([]model.ExecutionOutcome, int) {
	outcomes := make([]model.ExecutionOutcome, len(req.TestCases))
	starved := make([]bool, len(req.TestCases))
	limits := spec.ResourceLimit{WallTimeMs: req.TimeLimitMs, MemoryMB: req.MemoryLimitMb}

	var g errgroup.Group
	g.SetLimit(h.parallelism)
	for i := range req.TestCases {
		i := i
		g.Go(func() error {
			tc := req.TestCases[i]
			lease, err := h.slots.Acquire(ctx, req.Class)
			if err != nil {
				// the submission's own budget ran out while it waited
				if budgetExpired(ctx) {
					outcomes[i] = failedOutcome(i, tc, model.ErrorKindTimeout, MessageBudgetExpired)
					return nil
				}
				starved[i] = true
				outcomes[i] = failedOutcome(i, tc, model.ErrorKindInternalError, MessageNotScheduled)
				return nil
			}
			defer lease.Release()
			outcomes[i] = h.runCase(ctx, req, unit, i, tc, limits)
			return nil
		})
	}
	_ = g.Wait()

	unscheduled := 0
	for _, s := range starved {
		if s {
			unscheduled++
		}
	}
	return outcomes, unscheduled
}

func (h *Harness) runCase(ctx context.Context, req Request, unit *runner.Unit, i int, tc model.TestCase, limits spec.ResourceLimit) (out model.ExecutionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "test case panicked",
				zap.Int("case", i),
				zap.Any("panic", r),
			)
			out = failedOutcome(i, tc, model.ErrorKindInternalError, MessageSandboxFailed)
		}
	}()

	res, err := h.runner.Run(ctx, runner.CaseRequest{
		Unit:   unit,
		TestID: strconv.Itoa(i),
		Input:  tc.Input,
		Limits: limits,
	})
	if err != nil {
		if budgetExpired(ctx) {
			out = failedOutcome(i, tc, model.ErrorKindTimeout, MessageBudgetExpired)
			out.ExecutionTimeMs = res.TimeMs
			return out
		}
		if ctx.Err() == nil {
			logger.Error(ctx, "sandbox execution failed",
				zap.Int("case", i),
				zap.Error(err),
			)
		}
		return failedOutcome(i, tc, model.ErrorKindInternalError, MessageSandboxFailed)
	}
	return buildOutcome(i, tc, res, req.Policy)
}

func buildOutcome(i int, tc model.TestCase, res runner.CaseResult, policy comparator.Policy) model.ExecutionOutcome {
	out := model.ExecutionOutcome{
		TestCaseIndex:   i,
		IsHidden:        tc.IsHidden,
		Input:           tc.Input,
		ExpectedOutput:  tc.ExpectedOutput,
		ActualOutput:    model.Truncate(trimTrailingNewline(res.Stdout), MaxActualOutputBytes),
		ExecutionTimeMs: res.TimeMs,
		MemoryKB:        res.MemoryKB,
		ErrorKind:       model.ErrorKindNone,
	}
	switch res.Verdict {
	case result.VerdictOK:
		out.Passed = comparator.Compare(policy, res.Stdout, tc.ExpectedOutput)
	case result.VerdictTLE:
		out.ErrorKind = model.ErrorKindTimeout
		out.ErrorMessage = res.Message
	case result.VerdictMLE:
		out.ErrorKind = model.ErrorKindMemoryExceeded
		out.ErrorMessage = res.Message
	case result.VerdictOLE:
		out.ErrorKind = model.ErrorKindRuntimeError
		out.ErrorMessage = res.Message
	case result.VerdictRE:
		out.ErrorKind = model.ErrorKindRuntimeError
		out.ErrorMessage = runtimeMessage(res)
	default:
		out.ErrorKind = model.ErrorKindInternalError
		out.ErrorMessage = MessageSandboxFailed
	}
	return out
}

func runtimeMessage(res runner.CaseResult) string {
	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		return model.Truncate(msg, MaxErrorMessageBytes)
	}
	if res.Signal != 0 {
		return fmt.Sprintf("killed by signal %d", res.Signal)
	}
	return fmt.Sprintf("exited with code %d", res.ExitCode)
}

func failedOutcome(i int, tc model.TestCase, kind model.ErrorKind, message string) model.ExecutionOutcome {
	return model.ExecutionOutcome{
		TestCaseIndex:  i,
		IsHidden:       tc.IsHidden,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ErrorKind:      kind,
		ErrorMessage:   message,
	}
}

// uniformOutcomes reports the same failure for every case, keeping one outcome per case.
func uniformOutcomes(cases []model.TestCase, kind model.ErrorKind, message string) []model.ExecutionOutcome {
	outcomes := make([]model.ExecutionOutcome, len(cases))
	for i, tc := range cases {
		outcomes[i] = failedOutcome(i, tc, kind, message)
	}
	return outcomes
}

// Unscheduled counts the cases that never obtained an execution slot.
func Unscheduled(res model.JudgmentResult) int {
	n := 0
	for _, o := range res.Results {
		if o.ErrorKind == model.ErrorKindInternalError && o.ErrorMessage == MessageNotScheduled {
			n++
		}
	}
	return n
}

func budgetExpired(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrBudgetExceeded)
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

func validateRequest(req Request) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.Adapter == nil {
		return appErr.ValidationError("language", "required")
	}
	if len(req.TestCases) == 0 {
		return appErr.ValidationError("testCases", "required")
	}
	return nil
}
