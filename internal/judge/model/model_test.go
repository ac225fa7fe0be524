package model

import (
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to SubmissionStatus
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusInternalError, true},
		{StatusPending, StatusAccepted, false},
		{StatusRunning, StatusAccepted, true},
		{StatusRunning, StatusMemoryLimitExceeded, true},
		{StatusRunning, StatusPending, false},
		{StatusAccepted, StatusWrongAnswer, false},
		{StatusInternalError, StatusRunning, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusForErrorKind(t *testing.T) {
	cases := map[ErrorKind]SubmissionStatus{
		ErrorKindNone:           StatusWrongAnswer,
		ErrorKindCompileError:   StatusCompileError,
		ErrorKindRuntimeError:   StatusRuntimeError,
		ErrorKindTimeout:        StatusTimeLimitExceeded,
		ErrorKindMemoryExceeded: StatusMemoryLimitExceeded,
		ErrorKindInternalError:  StatusInternalError,
	}
	for kind, want := range cases {
		if got := StatusForErrorKind(kind); got != want {
			t.Fatalf("%s: got %s want %s", kind, got, want)
		}
	}
}

func TestRedactHidesHiddenCases(t *testing.T) {
	long := strings.Repeat("x", MaxVisibleOutputBytes+10)
	in := JudgmentResult{
		Results: []ExecutionOutcome{
			{TestCaseIndex: 0, Input: "[1,2]", ExpectedOutput: "1", ActualOutput: "1", Passed: true},
			{TestCaseIndex: 1, IsHidden: true, Input: "secret", ExpectedOutput: "42", ActualOutput: long},
		},
		PassedTests: 1,
		TotalTests:  2,
	}
	out := Redact(in)
	if out.Results[0].Input != "[1,2]" {
		t.Fatalf("visible case must keep input")
	}
	hidden := out.Results[1]
	if hidden.Input != "" || hidden.ExpectedOutput != "" {
		t.Fatalf("hidden case leaked data: %+v", hidden)
	}
	if len(hidden.ActualOutput) >= len(long) {
		t.Fatalf("hidden actual output not truncated")
	}
	if in.Results[1].Input != "secret" {
		t.Fatalf("redact must not mutate its input")
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := "héllo"
	got := Truncate(s, 2)
	if !strings.HasPrefix(got, "h") || strings.HasPrefix(got, "h\xc3") {
		t.Fatalf("split a rune: %q", got)
	}
	if Truncate("abc", 10) != "abc" {
		t.Fatalf("short strings unchanged")
	}
}
