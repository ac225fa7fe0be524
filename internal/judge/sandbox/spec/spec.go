// Package spec defines execution requests and resource limits.
package spec

import "github.com/Majnu04/doflow-sub001/internal/judge/sandbox/security"

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs"`
	WallTimeMs int64 `yaml:"wallTimeMs"`
	MemoryMB   int64 `yaml:"memoryMb"`
	StackMB    int64 `yaml:"stackMb"`
	OutputMB   int64 `yaml:"outputMb"`
	PIDs       int64 `yaml:"pids"`
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes one sandboxed process execution.
type RunSpec struct {
	SubmissionID string
	// TestID names the execution within the submission, e.g. "compile" or "case-3".
	TestID     string
	WorkDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	BindMounts []MountSpec
	// MaskDir is covered by an empty tmpfs inside the sandbox so other workspaces stay
	// out of sight. WorkDir must lie below it and is bound back in.
	MaskDir string
	Profile string
	Limits  ResourceLimit
}

// InitRequest is the JSON document the engine writes to the sandbox helper's stdin.
type InitRequest struct {
	RunSpec          RunSpec
	Isolation        security.IsolationProfile
	EnableSeccomp    bool
	EnableNamespaces bool
}
