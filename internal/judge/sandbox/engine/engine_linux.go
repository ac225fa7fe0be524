//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/result"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/security"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"go.uber.org/zap"
)

type linuxEngine struct {
	cfg      Config
	resolver ProfileResolver

	registryM sync.Mutex
	// per submission: live cgroup paths and process group ids
	cgroups map[string][]string
	pgids   map[string][]int
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.SeccompDir != "" {
		abs, err := filepath.Abs(cfg.SeccompDir)
		if err != nil {
			return nil, fmt.Errorf("resolve seccomp dir: %w", err)
		}
		cfg.SeccompDir = abs
	}
	if cfg.EnableCgroup {
		if cfg.CgroupRoot == "" {
			return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
		}
		if err := ensureCgroupControllers(cfg.CgroupRoot); err != nil {
			return nil, err
		}
	}
	return &linuxEngine{
		cfg:      cfg,
		resolver: resolver,
		cgroups:  make(map[string][]string),
		pgids:    make(map[string][]int),
	}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return result.RunResult{}, err
	}

	isoProfile, err := e.resolver.Resolve(runSpec.Profile)
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "resolve profile %s", runSpec.Profile)
	}
	isoProfile = isoProfile.WithSeccompDir(e.cfg.SeccompDir)

	cgroupPath := ""
	if e.cfg.EnableCgroup {
		var cleanup func()
		cgroupPath, cleanup, err = createRunCgroup(e.cfg.CgroupRoot, runSpec.SubmissionID, runSpec.TestID)
		if err != nil {
			return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create cgroup")
		}
		defer cleanup()
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "apply cgroup limits")
		}
		e.registerCgroup(runSpec.SubmissionID, cgroupPath)
		defer e.unregisterCgroup(runSpec.SubmissionID, cgroupPath)
	}

	stdinPipe := jsonToPipe(spec.InitRequest{
		RunSpec:          runSpec,
		Isolation:        isoProfile,
		EnableSeccomp:    e.cfg.EnableSeccomp,
		EnableNamespaces: e.cfg.EnableNamespaces,
	})
	defer stdinPipe.Close()

	cmd := exec.Command(e.cfg.HelperPath, e.cfg.HelperArgs...)
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	cmd.Stdin = stdinPipe

	var helperStdout bytes.Buffer
	var helperStderr bytes.Buffer
	cmd.Stdout = &helperStdout
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "start sandbox helper")
	}
	pid := cmd.Process.Pid
	e.registerPgid(runSpec.SubmissionID, pid)
	defer e.unregisterPgid(runSpec.SubmissionID, pid)

	if e.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if wallLimit := durationFromMs(runSpec.Limits.WallTimeMs); wallLimit > 0 {
			timer := time.NewTimer(wallLimit)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			killProcessGroup(pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	wallTimeMs := time.Since(start).Milliseconds()

	state := cmd.ProcessState
	exitCode, signal := exitStatus(waitErr, state)
	if exitCode == HelperSetupFailedExitCode && strings.Contains(helperStderr.String(), HelperErrorPrefix) {
		logger.Error(ctx, "sandbox helper setup failed",
			zap.String("submission_id", runSpec.SubmissionID),
			zap.String("test_id", runSpec.TestID),
			zap.String("stderr", helperStderr.String()),
		)
		return result.RunResult{}, appErr.New(appErr.JudgeSystemError).
			WithMessagef("sandbox setup failed: %s", strings.TrimSpace(helperStderr.String()))
	}
	if err := ctx.Err(); err != nil && !timedOut.Load() {
		return result.RunResult{}, err
	}

	stdoutPath := resolveHostPath(runSpec.StdoutPath, runSpec)
	stderrPath := resolveHostPath(runSpec.StderrPath, runSpec)
	stdoutLimit := e.cfg.StdoutStderrMaxBytes
	if runSpec.Limits.OutputMB > 0 {
		stdoutLimit = runSpec.Limits.OutputMB * 1024 * 1024
	}
	runResult := result.RunResult{
		ExitCode:   exitCode,
		Signal:     signal,
		TimedOut:   timedOut.Load(),
		TimeMs:     cpuTimeMs(state),
		WallTimeMs: wallTimeMs,
		MemoryKB:   memoryPeakKB(cgroupPath, state),
		OutputKB:   stdoutSizeKB(stdoutPath),
		Stdout:     readLimitedFile(stdoutPath, stdoutLimit),
		Stderr:     readLimitedFile(stderrPath, e.cfg.StdoutStderrMaxBytes),
		OomKilled:  wasOomKilled(cgroupPath),
	}
	return runResult, nil
}

// exitStatus returns the exit code and terminating signal. Signaled processes report exit code -1.
func exitStatus(err error, state *os.ProcessState) (int, int) {
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return -1, int(ws.Signal())
		}
		return state.ExitCode(), 0
	}
	if err == nil {
		return 0, 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), 0
	}
	return -1, 0
}

func (e *linuxEngine) KillSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	cgroups, pgids := e.snapshot(submissionID)
	for _, cgroupPath := range cgroups {
		if err := killCgroup(cgroupPath); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	for _, pgid := range pgids {
		killProcessGroup(pgid)
	}
	return nil
}

func (e *linuxEngine) registerCgroup(submissionID, cgroupPath string) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	e.cgroups[submissionID] = append(e.cgroups[submissionID], cgroupPath)
}

func (e *linuxEngine) unregisterCgroup(submissionID, cgroupPath string) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	remaining := removeValue(e.cgroups[submissionID], cgroupPath)
	if len(remaining) == 0 {
		delete(e.cgroups, submissionID)
		return
	}
	e.cgroups[submissionID] = remaining
}

func (e *linuxEngine) registerPgid(submissionID string, pgid int) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	e.pgids[submissionID] = append(e.pgids[submissionID], pgid)
}

func (e *linuxEngine) unregisterPgid(submissionID string, pgid int) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	remaining := removeValue(e.pgids[submissionID], pgid)
	if len(remaining) == 0 {
		delete(e.pgids, submissionID)
		return
	}
	e.pgids[submissionID] = remaining
}

func (e *linuxEngine) snapshot(submissionID string) ([]string, []int) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	cgroups := append([]string(nil), e.cgroups[submissionID]...)
	pgids := append([]int(nil), e.pgids[submissionID]...)
	return cgroups, pgids
}

func removeValue[T comparable](values []T, v T) []T {
	out := values[:0]
	for _, item := range values {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if runSpec.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if runSpec.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if len(runSpec.Cmd) == 0 {
		return appErr.ValidationError("cmd", "required")
	}
	if runSpec.Profile == "" {
		return appErr.ValidationError("profile", "required")
	}
	return nil
}

func jsonToPipe(req spec.InitRequest) io.ReadCloser {
	reader, writer := io.Pipe()
	go func() {
		err := json.NewEncoder(writer).Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader
}

func buildSysProcAttr(profile security.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	attr.Cloneflags = profile.CloneFlags()
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	return attr
}
