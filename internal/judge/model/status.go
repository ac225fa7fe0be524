package model

// SubmissionStatus is the lifecycle state of a graded submission.
type SubmissionStatus string

const (
	StatusPending             SubmissionStatus = "pending"
	StatusRunning             SubmissionStatus = "running"
	StatusAccepted            SubmissionStatus = "accepted"
	StatusWrongAnswer         SubmissionStatus = "wrong_answer"
	StatusCompileError        SubmissionStatus = "compile_error"
	StatusRuntimeError        SubmissionStatus = "runtime_error"
	StatusTimeLimitExceeded   SubmissionStatus = "time_limit_exceeded"
	StatusMemoryLimitExceeded SubmissionStatus = "memory_limit_exceeded"
	StatusInternalError       SubmissionStatus = "internal_error"
)

// IsTerminal reports whether no further transition is allowed.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusCompileError, StatusRuntimeError,
		StatusTimeLimitExceeded, StatusMemoryLimitExceeded, StatusInternalError:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	return s == StatusPending || s == StatusRunning || s.IsTerminal()
}

// CanTransition validates pending -> running -> terminal.
// A pending submission may also fail straight to internal_error when it never started.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusInternalError
	case StatusRunning:
		return next.IsTerminal()
	}
	return false
}

// StatusForErrorKind maps the first failing case to a submission status.
func StatusForErrorKind(kind ErrorKind) SubmissionStatus {
	switch kind {
	case ErrorKindNone:
		return StatusWrongAnswer
	case ErrorKindCompileError:
		return StatusCompileError
	case ErrorKindRuntimeError:
		return StatusRuntimeError
	case ErrorKindTimeout:
		return StatusTimeLimitExceeded
	case ErrorKindMemoryExceeded:
		return StatusMemoryLimitExceeded
	default:
		return StatusInternalError
	}
}
