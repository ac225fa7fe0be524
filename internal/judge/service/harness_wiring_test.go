package service

import (
	"context"
	"testing"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/judge/harness"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	"github.com/Majnu04/doflow-sub001/internal/judge/pool"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/result"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/runner"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

// stubRunner stands in for the sandbox below a real harness and pool.
type stubRunner struct {
	run func(ctx context.Context, req runner.CaseRequest) (runner.CaseResult, error)
}

func (s stubRunner) Prepare(ctx context.Context, req runner.PrepareRequest) (*runner.Unit, result.CompileResult, error) {
	return &runner.Unit{SubmissionID: req.SubmissionID, Language: req.Adapter.Spec()}, result.CompileResult{OK: true}, nil
}

func (s stubRunner) Run(ctx context.Context, req runner.CaseRequest) (runner.CaseResult, error) {
	return s.run(ctx, req)
}

func (s stubRunner) Kill(ctx context.Context, submissionID string) error { return nil }

func (s stubRunner) Cleanup(ctx context.Context, submissionID string) error { return nil }

func useHarness(t *testing.T, env *testEnv, r runner.Runner, p *pool.Pool, budget time.Duration) {
	t.Helper()
	h, err := harness.New(harness.Config{Parallelism: 3, Budget: budget}, r, p)
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	env.svc.executor = h
}

func fullPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New(pool.Config{Size: 1, MaxQueueWait: 20 * time.Millisecond}, nil)
	held, err := p.Acquire(context.Background(), pool.ClassSubmit)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(held.Release)
	return p
}

func TestRunWithFullPoolBeforeSyntaxCheck(t *testing.T) {
	env := newTestEnv(t)
	useHarness(t, env, stubRunner{run: func(ctx context.Context, req runner.CaseRequest) (runner.CaseResult, error) {
		t.Errorf("no case may run without a slot")
		return runner.CaseResult{}, nil
	}}, fullPool(t), time.Minute)

	res, err := env.svc.Run(context.Background(), runRequest())
	if appErr.GetCode(err) != appErr.JudgeQueueFull {
		t.Fatalf("expected JudgeQueueFull, got err=%v result=%+v", err, res)
	}
}

func TestSubmitWithFullPoolBeforeSyntaxCheck(t *testing.T) {
	env := newTestEnv(t)
	useHarness(t, env, stubRunner{run: func(ctx context.Context, req runner.CaseRequest) (runner.CaseResult, error) {
		return runner.CaseResult{}, nil
	}}, fullPool(t), time.Minute)

	sub, err := env.svc.Submit(context.Background(), submitRequest())
	if appErr.GetCode(err) != appErr.JudgeQueueFull {
		t.Fatalf("expected JudgeQueueFull, got %v", err)
	}
	stored := env.submissions.get(sub.ID)
	if stored.Status != model.StatusInternalError || !stored.SystemError {
		t.Fatalf("unexpected record %+v", stored)
	}
	if len(stored.Result.Results) != stored.Result.TotalTests || stored.Result.TotalTests != 2 {
		t.Fatalf("one outcome per case expected, got %d of %d", len(stored.Result.Results), stored.Result.TotalTests)
	}
}

func TestSubmitSlowCodeOutlastingBudgetIsTimeLimit(t *testing.T) {
	env := newTestEnv(t)
	useHarness(t, env, stubRunner{run: func(ctx context.Context, req runner.CaseRequest) (runner.CaseResult, error) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
		return runner.CaseResult{Verdict: result.VerdictTLE, Message: "time limit exceeded", TimeMs: 200}, nil
	}}, pool.New(pool.Config{Size: 1, MaxQueueWait: 5 * time.Second}, nil), 300*time.Millisecond)

	req := submitRequest()
	req.ProblemID = "scratch"
	req.TestCases = []model.TestCase{
		{Input: "[1,2]", ExpectedOutput: "1"},
		{Input: "[3,4]", ExpectedOutput: "3"},
		{Input: "[5,6]", ExpectedOutput: "5"},
	}
	sub, err := env.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != model.StatusTimeLimitExceeded || sub.SystemError {
		t.Fatalf("expected time_limit_exceeded without system error, got %s %v", sub.Status, sub.SystemError)
	}
	if len(sub.Result.Results) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(sub.Result.Results))
	}
}
