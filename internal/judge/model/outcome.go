package model

// ErrorKind classifies why a test case did not produce a clean run.
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = "none"
	ErrorKindCompileError   ErrorKind = "compile_error"
	ErrorKindRuntimeError   ErrorKind = "runtime_error"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindMemoryExceeded ErrorKind = "memory_exceeded"
	ErrorKindInternalError  ErrorKind = "internal_error"
)

// ExecutionOutcome is the result of running one test case.
type ExecutionOutcome struct {
	TestCaseIndex   int       `json:"testCase"`
	Passed          bool      `json:"passed"`
	IsHidden        bool      `json:"isHidden"`
	Input           string    `json:"input"`
	ExpectedOutput  string    `json:"expectedOutput"`
	ActualOutput    string    `json:"actualOutput"`
	ExecutionTimeMs int64     `json:"executionTime"`
	MemoryKB        int64     `json:"memoryKb"`
	ErrorKind       ErrorKind `json:"errorKind"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// JudgmentResult is the aggregate over all cases of one run or submission.
type JudgmentResult struct {
	Results     []ExecutionOutcome `json:"results"`
	PassedTests int                `json:"passedTests"`
	TotalTests  int                `json:"totalTests"`
	AllPassed   bool               `json:"allPassed"`
}
