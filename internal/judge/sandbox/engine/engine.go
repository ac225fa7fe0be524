// Package engine runs one sandboxed process per RunSpec.
package engine

import (
	"context"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/result"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	// KillSubmission kills every process still running for a submission.
	KillSubmission(ctx context.Context, submissionID string) error
}
