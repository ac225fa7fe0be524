package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Majnu04/doflow-sub001/internal/judge/aggregator"
	"github.com/Majnu04/doflow-sub001/internal/judge/harness"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	"github.com/Majnu04/doflow-sub001/internal/judge/repository"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

type fakeExecutor struct {
	mu       sync.Mutex
	requests []harness.Request
	fn       func(ctx context.Context, req harness.Request) (model.JudgmentResult, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, req harness.Request) (model.JudgmentResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return passAll(req.TestCases), nil
}

func (f *fakeExecutor) last() harness.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func outcomes(cases []model.TestCase, kinds ...model.ErrorKind) model.JudgmentResult {
	out := make([]model.ExecutionOutcome, len(cases))
	for i, tc := range cases {
		kind := model.ErrorKindNone
		if i < len(kinds) {
			kind = kinds[i]
		}
		out[i] = model.ExecutionOutcome{
			TestCaseIndex:  i,
			IsHidden:       tc.IsHidden,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   tc.ExpectedOutput,
			ErrorKind:      kind,
		}
	}
	return aggregator.Aggregate(out)
}

func passAll(cases []model.TestCase) model.JudgmentResult {
	res := outcomes(cases)
	for i := range res.Results {
		res.Results[i].Passed = true
	}
	return aggregator.Aggregate(res.Results)
}

// fakeSubmissions enforces the same guarded transitions as the SQL statements.
type fakeSubmissions struct {
	mu          sync.Mutex
	rows        map[string]model.Submission
	order       []string
	updateErr   error
	finalizeErr error
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{rows: make(map[string]model.Submission)}
}

func (f *fakeSubmissions) Create(ctx context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[sub.ID]; ok {
		return errors.New("duplicate id")
	}
	f.rows[sub.ID] = *sub
	f.order = append(f.order, sub.ID)
	return nil
}

func (f *fakeSubmissions) UpdateStatus(ctx context.Context, id string, from, to model.SubmissionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	row, ok := f.rows[id]
	if !ok || row.Status != from {
		return repository.ErrStaleTransition
	}
	row.Status = to
	f.rows[id] = row
	return nil
}

func (f *fakeSubmissions) Finalize(ctx context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	row, ok := f.rows[sub.ID]
	if !ok || row.Status.IsTerminal() {
		return repository.ErrStaleTransition
	}
	f.rows[sub.ID] = *sub
	return nil
}

func (f *fakeSubmissions) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	return &row, nil
}

func (f *fakeSubmissions) get(id string) model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakeSubmissions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeProblems map[string]*model.Problem

func (f fakeProblems) GetByID(ctx context.Context, id string) (*model.Problem, error) {
	p, ok := f[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	return p, nil
}

type fakeStatus struct {
	mu      sync.Mutex
	saved   map[string]model.Submission
	history []model.SubmissionStatus
	err     error
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{saved: make(map[string]model.Submission)}
}

func (f *fakeStatus) Get(ctx context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.saved[id]
	if !ok {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return &sub, nil
}

func (f *fakeStatus) Save(ctx context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	snapshot := *sub
	snapshot.Code = ""
	f.saved[sub.ID] = snapshot
	f.history = append(f.history, sub.Status)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.Submission
	err    error
}

func (f *fakeEvents) PublishFinalStatus(ctx context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, *sub)
	return nil
}

type fakeArchive struct {
	mu       sync.Mutex
	archived []model.Submission
	err      error
}

func (f *fakeArchive) Archive(ctx context.Context, sub *model.Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.archived = append(f.archived, *sub)
	return "submissions/" + sub.ID + ".tar.zst", nil
}

type fakeLimiter struct {
	allowed int
	calls   int
}

func (f *fakeLimiter) Allow(ctx context.Context, userID string) error {
	f.calls++
	if f.calls > f.allowed {
		return appErr.New(appErr.TooManyRequests)
	}
	return nil
}
