package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/common/mq"
	"github.com/Majnu04/doflow-sub001/internal/common/storage"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"

	"github.com/go-sql-driver/mysql"
)

func finishedSubmission() *model.Submission {
	finished := time.Date(2026, 3, 4, 10, 0, 5, 0, time.UTC)
	return &model.Submission{
		ID:        "6f1c2a9e-0000-4000-8000-000000000001",
		ProblemID: "second-largest",
		UserID:    "u-1",
		Code:      "function solution(input) { return '4' }",
		Language:  "javascript",
		Status:    model.StatusAccepted,
		Result: model.JudgmentResult{
			Results:     []model.ExecutionOutcome{{TestCaseIndex: 0, Passed: true, ActualOutput: "4"}},
			PassedTests: 1,
			TotalTests:  1,
			AllPassed:   true,
		},
		CreatedAt:  time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		FinishedAt: &finished,
	}
}

func TestStatusRepositoryRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	repo := NewStatusRepository(c, time.Hour)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); appErr.GetCode(err) != appErr.SubmissionNotFound {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
	sub := finishedSubmission()
	if err := repo.Save(ctx, sub); err != nil {
		t.Fatalf("save: %v", err)
	}
	if sub.Code == "" {
		t.Fatalf("save must not mutate the caller's submission")
	}
	got, err := repo.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusAccepted || got.Code != "" || got.Result.PassedTests != 1 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if ttl := mr.TTL(statusKeyPrefix + sub.ID); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

type fakeProducer struct {
	mu       sync.Mutex
	topic    string
	messages []*mq.Message
	err      error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.messages = append(p.messages, message)
	return nil
}

func TestPublishFinalStatus(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewMQStatusEventPublisher(producer, "judge.submission.final")
	sub := finishedSubmission()
	if err := pub.PublishFinalStatus(context.Background(), sub); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if producer.topic != "judge.submission.final" || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish %+v", producer)
	}
	msg := producer.messages[0]
	if msg.ID != sub.ID {
		t.Fatalf("message must be keyed by submission id")
	}
	var ev model.StatusEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Status != model.StatusAccepted || ev.PassedTests != 1 || ev.FinishedAt != sub.FinishedAt.Unix() {
		t.Fatalf("unexpected event %+v", ev)
	}
	if strings.Contains(string(msg.Body), "solution") {
		t.Fatalf("event must not carry source code")
	}

	running := finishedSubmission()
	running.Status = model.StatusRunning
	if err := pub.PublishFinalStatus(context.Background(), running); err == nil {
		t.Fatalf("expected non-final status to be rejected")
	}
	producer.err = errors.New("broker down")
	if err := pub.PublishFinalStatus(context.Background(), sub); appErr.GetCode(err) != appErr.PublishError {
		t.Fatalf("expected PublishError, got %v", err)
	}
}

type memoryStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	puts     int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (m *memoryStorage) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func (m *memoryStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.objects[bucket+"/"+key] = data
	m.metadata[bucket+"/"+key] = metadata
	return nil
}

func (m *memoryStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, errors.New("no such key")
	}
	return storage.ObjectStat{SizeBytes: int64(len(data)), Metadata: m.metadata[bucket+"/"+key]}, nil
}

func TestArtifactArchiveRoundTrip(t *testing.T) {
	store := newMemoryStorage()
	archive := NewArtifactArchive(store, "judge-archive")
	sub := finishedSubmission()

	key, err := archive.Archive(context.Background(), sub)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if key != "submissions/2026/03/04/"+sub.ID+".tar.zst" {
		t.Fatalf("unexpected key %s", key)
	}
	stat, err := store.StatObject(context.Background(), "judge-archive", key)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Metadata["status"] != "accepted" || stat.Metadata["submission-id"] != sub.ID {
		t.Fatalf("unexpected metadata %v", stat.Metadata)
	}
	raw := store.objects["judge-archive/"+key]
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Fatalf("archive is not a zstd frame")
	}

	store.metadata["judge-archive/"+key] = map[string]string{"Status": "accepted"}
	if _, err := archive.Archive(context.Background(), sub); err != nil {
		t.Fatalf("re-archive: %v", err)
	}
	if store.puts != 1 {
		t.Fatalf("identical verdict must not be uploaded twice, got %d puts", store.puts)
	}

	got, err := archive.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Code != sub.Code || got.Status != sub.Status || got.Result.TotalTests != 1 {
		t.Fatalf("round trip mismatch %+v", got)
	}
}

func TestRunLimiter(t *testing.T) {
	c, mr := newTestCache(t)
	limiter := NewRunLimiter(c, 3, time.Minute, time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "u-1"); err != nil {
			t.Fatalf("run %d rejected: %v", i, err)
		}
	}
	if err := limiter.Allow(ctx, "u-1"); appErr.GetCode(err) != appErr.TooManyRequests {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if err := limiter.Allow(ctx, "u-2"); err != nil {
		t.Fatalf("other users are independent: %v", err)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := limiter.Allow(ctx, "u-1"); err != nil {
		t.Fatalf("window should reset: %v", err)
	}

	disabled := NewRunLimiter(nil, 0, 0, 0)
	if err := disabled.Allow(ctx, "u-1"); err != nil {
		t.Fatalf("disabled limiter must allow: %v", err)
	}
}

func submissionRow(sub *model.Submission) []interface{} {
	resultJSON, _ := json.Marshal(sub.Result)
	var finished interface{}
	if sub.FinishedAt != nil {
		finished = *sub.FinishedAt
	}
	return []interface{}{
		sub.ID, sub.ProblemID, sub.ProblemTitle, sub.UserID, sub.RoadmapID, sub.Language, sub.Code,
		string(sub.Status), sub.SystemError, sub.ErrorMessage, string(resultJSON), sub.CreatedAt, finished,
	}
}

func TestSubmissionRepositoryReadThrough(t *testing.T) {
	c, _ := newTestCache(t)
	database := newFakeDB()
	sub := finishedSubmission()
	database.add("FROM submissions", sub.ID, submissionRow(sub))
	repo := NewSubmissionRepository(database, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := repo.GetByID(ctx, sub.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != model.StatusAccepted || got.Result.PassedTests != 1 || got.FinishedAt == nil {
			t.Fatalf("unexpected submission %+v", got)
		}
	}
	if n := database.queryCount(); n != 1 {
		t.Fatalf("expected a single database read, got %d", n)
	}

	if _, err := repo.GetByID(ctx, "absent"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestSubmissionRepositoryTransitions(t *testing.T) {
	c, _ := newTestCache(t)
	database := newFakeDB()
	repo := NewSubmissionRepository(database, c)
	ctx := context.Background()

	pending := finishedSubmission()
	pending.Status = model.StatusPending
	pending.FinishedAt = nil
	if err := repo.Create(ctx, pending); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, finishedSubmission()); err == nil {
		t.Fatalf("create must reject non-pending rows")
	}
	if err := repo.UpdateStatus(ctx, pending.ID, model.StatusPending, model.StatusRunning); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.UpdateStatus(ctx, pending.ID, model.StatusAccepted, model.StatusRunning); err == nil {
		t.Fatalf("terminal rows must not move")
	}

	final := finishedSubmission()
	if err := repo.Finalize(ctx, final); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	last := database.execs[len(database.execs)-1]
	if !strings.Contains(last, "status IN (?, ?)") {
		t.Fatalf("finalize must guard against rewriting terminal rows: %s", last)
	}

	database.affected = 0
	if err := repo.Finalize(ctx, final); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}

	database.execErr = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'submissions.PRIMARY'"}
	if err := repo.Create(ctx, pending); !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestFinalizeRetriesDeadlocks(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	cases := []struct {
		name      string
		errs      []error
		wantExecs int
		wantErr   bool
	}{
		{name: "deadlock then success", errs: []error{deadlock}, wantExecs: 2},
		{name: "lock wait then success", errs: []error{&mysql.MySQLError{Number: 1205}}, wantExecs: 2},
		{name: "deadlock every time", errs: []error{deadlock, deadlock, deadlock, deadlock}, wantExecs: finalizeAttempts, wantErr: true},
		{name: "other error is final", errs: []error{&mysql.MySQLError{Number: 1146}}, wantExecs: 1, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestCache(t)
			database := newFakeDB()
			database.execErrs = tc.errs
			repo := NewSubmissionRepository(database, c)

			err := repo.Finalize(context.Background(), finishedSubmission())
			if (err != nil) != tc.wantErr {
				t.Fatalf("finalize error = %v, wantErr %v", err, tc.wantErr)
			}
			if len(database.execs) != tc.wantExecs {
				t.Fatalf("expected %d statements, got %d", tc.wantExecs, len(database.execs))
			}
		})
	}
}

func TestProblemRepositoryLoadsOrderedCases(t *testing.T) {
	c, _ := newTestCache(t)
	database := newFakeDB()
	database.add("FROM problems", "second-largest",
		[]interface{}{"second-largest", "Second Largest", "easy", int64(2000), int64(0), "trimmed"})
	database.add("FROM problem_test_cases", "second-largest",
		[]interface{}{"[1,2,3,4,5]", "4", false},
		[]interface{}{"[5,5,5]", "-1", true},
	)
	repo := NewProblemRepository(database, c)

	p, err := repo.GetByID(context.Background(), "second-largest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.TimeLimitMs != 2000 || len(p.TestCases) != 2 || !p.TestCases[1].IsHidden || p.HiddenCount() != 1 {
		t.Fatalf("unexpected problem %+v", p)
	}
	if _, err := repo.GetByID(context.Background(), "second-largest"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if n := database.queryCount(); n != 2 {
		t.Fatalf("expected one problem read plus one case read, got %d", n)
	}

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected ErrProblemNotFound, got %v", err)
	}
}
