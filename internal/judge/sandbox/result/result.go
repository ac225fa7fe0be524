// Package result defines sandbox execution results and verdict mapping.
package result

// Verdict is the sandbox-level classification of one execution, before output comparison.
type Verdict string

const (
	VerdictOK  Verdict = "OK"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictOLE Verdict = "OLE"
	VerdictRE  Verdict = "RE"
	VerdictSE  Verdict = "SE"
)

// RunResult captures raw sandbox execution data.
type RunResult struct {
	ExitCode int
	// Signal is the terminating signal number, 0 for a normal exit.
	Signal int
	// TimedOut is set when the wall-clock timer killed the process group.
	TimedOut   bool
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	OomKilled  bool
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	MemoryKB int64
	// Log is the compiler diagnostics, truncated.
	Log string
}
