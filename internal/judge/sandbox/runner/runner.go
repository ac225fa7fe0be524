// Package runner prepares executable units and runs them against single inputs.
package runner

import (
	"context"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/language"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/result"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
)

// PrepareRequest describes one compile or syntax-check step.
type PrepareRequest struct {
	SubmissionID string
	Adapter      language.Adapter
	Code         string
	// Limits override the compile profile defaults.
	Limits spec.ResourceLimit
}

// Unit is a prepared program ready to be copied into per-case workspaces.
type Unit struct {
	SubmissionID string
	Language     profile.LanguageSpec
	// Dir is the host directory holding the rendered and compiled files.
	Dir   string
	Files []string
}

// CaseRequest describes one execution of a unit against one input.
type CaseRequest struct {
	Unit   *Unit
	TestID string
	Input  string
	// Limits carry the problem limits before language multipliers are applied.
	Limits spec.ResourceLimit
}

// CaseResult is the sandbox-level result of one execution.
type CaseResult struct {
	TestID   string
	Verdict  result.Verdict
	Stdout   string
	Stderr   string
	ExitCode int
	Signal   int
	// TimeMs is wall-clock time.
	TimeMs    int64
	CPUTimeMs int64
	MemoryKB  int64
	// Message explains non-OK verdicts, e.g. "output limit exceeded".
	Message string
}

// Runner orchestrates prepare and run workflows.
type Runner interface {
	Prepare(ctx context.Context, req PrepareRequest) (*Unit, result.CompileResult, error)
	Run(ctx context.Context, req CaseRequest) (CaseResult, error)
	// Kill stops every process still running for a submission.
	Kill(ctx context.Context, submissionID string) error
	// Cleanup removes every workspace of a submission.
	Cleanup(ctx context.Context, submissionID string) error
}

// ProfileRepository resolves task profiles.
type ProfileRepository interface {
	GetTaskProfile(taskType profile.TaskType, languageID string) (profile.TaskProfile, error)
}
