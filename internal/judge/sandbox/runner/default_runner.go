package runner

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/engine"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/observer"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/result"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	defaultTimeLimitMs   int64 = 5000
	defaultMemoryLimitMb int64 = 256
	defaultCompileLogMax int   = 8 * 1024
)

// Config controls where workspaces live and how they appear inside the sandbox.
type Config struct {
	WorkRoot string
	// ContainerWorkDir is the mount point of the workspace inside the sandbox. Empty means
	// the sandbox shares the host filesystem view and no bind mounts are issued.
	ContainerWorkDir   string
	CompileLogMaxBytes int
}

// DefaultRunner implements prepare/run workflows on top of the sandbox engine.
type DefaultRunner struct {
	cfg      Config
	eng      engine.Engine
	profiles ProfileRepository
	ws       workspace
	metrics  observer.MetricsRecorder
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(cfg Config, eng engine.Engine, profiles ProfileRepository) (*DefaultRunner, error) {
	return NewRunnerWithObserver(cfg, eng, profiles, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(cfg Config, eng engine.Engine, profiles ProfileRepository, metrics observer.MetricsRecorder) (*DefaultRunner, error) {
	if eng == nil {
		return nil, appErr.ValidationError("engine", "required")
	}
	if profiles == nil {
		return nil, appErr.ValidationError("profiles", "required")
	}
	if cfg.WorkRoot == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	root, err := filepath.Abs(cfg.WorkRoot)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "resolve work root failed")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create work root failed")
	}
	cfg.WorkRoot = root
	if cfg.CompileLogMaxBytes <= 0 {
		cfg.CompileLogMaxBytes = defaultCompileLogMax
	}
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{
		cfg:      cfg,
		eng:      eng,
		profiles: profiles,
		ws:       workspace{root: root},
		metrics:  metrics,
	}, nil
}

func (r *DefaultRunner) Prepare(ctx context.Context, req PrepareRequest) (*Unit, result.CompileResult, error) {
	if req.Adapter == nil {
		return nil, result.CompileResult{}, appErr.ValidationError("language", "required")
	}
	lang := req.Adapter.Spec()
	files, err := req.Adapter.Render(req.Code)
	if err != nil {
		return nil, result.CompileResult{}, err
	}
	dir, err := r.ws.dir(req.SubmissionID, compileDirName)
	if err != nil {
		return nil, result.CompileResult{}, err
	}
	if err := freshDir(dir); err != nil {
		return nil, result.CompileResult{}, err
	}
	if err := writeSourceFiles(dir, files); err != nil {
		return nil, result.CompileResult{}, err
	}

	compileRes := result.CompileResult{OK: true}
	if lang.CompileEnabled() {
		compileRes, err = r.compile(ctx, req, lang, dir)
		if err != nil || !compileRes.OK {
			return nil, compileRes, err
		}
	}

	names, err := unitFiles(dir)
	if err != nil {
		return nil, compileRes, err
	}
	return &Unit{
		SubmissionID: req.SubmissionID,
		Language:     lang,
		Dir:          dir,
		Files:        names,
	}, compileRes, nil
}

func (r *DefaultRunner) compile(ctx context.Context, req PrepareRequest, lang profile.LanguageSpec, dir string) (result.CompileResult, error) {
	prof, err := r.profiles.GetTaskProfile(profile.TaskTypeCompile, lang.ID)
	if err != nil {
		return result.CompileResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "resolve compile profile failed")
	}
	limits := applyLimits(req.Limits, prof.DefaultLimits, lang)
	view := r.view(dir)
	cmd, err := buildCommand(lang.CompileCmdTpl, lang, view.base, limits)
	if err != nil {
		return result.CompileResult{}, err
	}
	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       compileDirName,
		WorkDir:      view.base,
		Cmd:          cmd,
		Env:          lang.Env,
		StdoutPath:   view.path(compileOutName),
		StderrPath:   view.path(compileLogName),
		BindMounts:   view.mounts,
		MaskDir:      view.mask,
		Profile:      prof.Name(),
		Limits:       limits,
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	if err != nil {
		r.metrics.ObserveCompile(ctx, lang.ID, false, runRes.TimeMs, runRes.MemoryKB)
		return result.CompileResult{}, err
	}
	compileRes := result.CompileResult{
		OK:       runRes.ExitCode == 0 && runRes.Signal == 0 && !runRes.TimedOut,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
	}
	if !compileRes.OK {
		compileRes.Log = compileLog(runRes, r.cfg.CompileLogMaxBytes, dir)
		logger.Debug(ctx, "compile step failed",
			zap.String("submission_id", req.SubmissionID),
			zap.String("language", lang.ID),
			zap.Int("exit_code", runRes.ExitCode),
			zap.Bool("timed_out", runRes.TimedOut),
		)
	}
	r.metrics.ObserveCompile(ctx, lang.ID, compileRes.OK, compileRes.TimeMs, compileRes.MemoryKB)
	return compileRes, nil
}

func (r *DefaultRunner) Run(ctx context.Context, req CaseRequest) (CaseResult, error) {
	if req.Unit == nil {
		return CaseResult{}, appErr.ValidationError("unit", "required")
	}
	if req.TestID == "" {
		return CaseResult{}, appErr.ValidationError("test_id", "required")
	}
	unit := req.Unit
	lang := unit.Language
	prof, err := r.profiles.GetTaskProfile(profile.TaskTypeRun, lang.ID)
	if err != nil {
		return CaseResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "resolve run profile failed")
	}

	dir, err := r.ws.dir(unit.SubmissionID, caseDirName(req.TestID))
	if err != nil {
		return CaseResult{}, err
	}
	if err := freshDir(dir); err != nil {
		return CaseResult{}, err
	}
	defer os.RemoveAll(dir)
	if err := copyUnit(unit, dir); err != nil {
		return CaseResult{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, inputName), []byte(req.Input), 0644); err != nil {
		return CaseResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "write input failed")
	}

	limits := applyLimits(runLimits(req.Limits, lang), prof.DefaultLimits, lang)
	view := r.view(dir)
	cmd, err := buildCommand(lang.RunCmdTpl, lang, view.base, limits)
	if err != nil {
		return CaseResult{}, err
	}
	runSpec := spec.RunSpec{
		SubmissionID: unit.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      view.base,
		Cmd:          cmd,
		Env:          lang.Env,
		StdinPath:    view.path(inputName),
		StdoutPath:   view.path(outputName),
		StderrPath:   view.path(runtimeLogName),
		BindMounts:   view.mounts,
		MaskDir:      view.mask,
		Profile:      prof.Name(),
		Limits:       limits,
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	if err != nil {
		r.metrics.ObserveRun(ctx, lang.ID, string(result.VerdictSE), runRes.WallTimeMs, runRes.MemoryKB, runRes.OutputKB)
		return CaseResult{TestID: req.TestID, Verdict: result.VerdictSE}, err
	}

	verdict, message := mapRunVerdict(runRes, limits, lang)
	res := CaseResult{
		TestID:    req.TestID,
		Verdict:   verdict,
		Stdout:    runRes.Stdout,
		Stderr:    runRes.Stderr,
		ExitCode:  runRes.ExitCode,
		Signal:    runRes.Signal,
		TimeMs:    runRes.WallTimeMs,
		CPUTimeMs: runRes.TimeMs,
		MemoryKB:  runRes.MemoryKB,
		Message:   message,
	}
	r.metrics.ObserveRun(ctx, lang.ID, string(verdict), res.TimeMs, res.MemoryKB, runRes.OutputKB)
	return res, nil
}

func (r *DefaultRunner) Kill(ctx context.Context, submissionID string) error {
	return r.eng.KillSubmission(ctx, submissionID)
}

func (r *DefaultRunner) Cleanup(ctx context.Context, submissionID string) error {
	dir, err := r.ws.submissionDir(submissionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "remove workspace failed")
	}
	return nil
}

// pathView maps workspace files to the paths the sandboxed process sees.
type pathView struct {
	base   string
	mounts []spec.MountSpec
	mask   string
}

func (v pathView) path(name string) string {
	return filepath.Join(v.base, name)
}

func (r *DefaultRunner) view(hostDir string) pathView {
	if r.cfg.ContainerWorkDir == "" {
		// host paths are used directly, so every other workspace under the root is hidden
		return pathView{base: hostDir, mask: r.cfg.WorkRoot}
	}
	return pathView{
		base:   r.cfg.ContainerWorkDir,
		mounts: []spec.MountSpec{{Source: hostDir, Target: r.cfg.ContainerWorkDir}},
	}
}

// runLimits turns problem limits into sandbox limits, filling language and global defaults.
func runLimits(problem spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	timeLimit := problem.WallTimeMs
	if timeLimit <= 0 {
		timeLimit = problem.CPUTimeMs
	}
	if timeLimit <= 0 {
		timeLimit = lang.DefaultTimeLimitMs
	}
	if timeLimit <= 0 {
		timeLimit = defaultTimeLimitMs
	}
	memory := problem.MemoryMB
	if memory <= 0 {
		memory = lang.DefaultMemoryLimitMb
	}
	if memory <= 0 {
		memory = defaultMemoryLimitMb
	}
	limits := problem
	limits.WallTimeMs = timeLimit
	limits.CPUTimeMs = timeLimit
	limits.MemoryMB = memory
	return limits
}

func buildCommand(tpl string, lang profile.LanguageSpec, workDir string, limits spec.ResourceLimit) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	memoryMB := limits.MemoryMB
	if memoryMB <= 0 {
		memoryMB = defaultMemoryLimitMb
	}
	replacer := strings.NewReplacer(
		"{src}", filepath.Join(workDir, lang.SourceFile),
		"{bin}", filepath.Join(workDir, lang.BinaryFile),
		"{workdir}", workDir,
		"{memoryMB}", strconv.FormatInt(memoryMB, 10),
	)
	fields, err := shlex.Split(replacer.Replace(tpl))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func applyLimits(override, defaults spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	merged := mergeLimits(defaults, override)
	return applyMultipliers(merged, lang)
}

func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}

func applyMultipliers(limits spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

func compileLog(res result.RunResult, maxBytes int, dir string) string {
	if res.TimedOut {
		return "compilation timed out"
	}
	text := strings.TrimSpace(res.Stderr)
	if text == "" {
		text = strings.TrimSpace(res.Stdout)
	}
	if text == "" {
		if data, err := os.ReadFile(filepath.Join(dir, compileOutName)); err == nil {
			text = strings.TrimSpace(string(data))
		}
	}
	if text == "" {
		text = "compilation failed with exit code " + strconv.Itoa(res.ExitCode)
	}
	if len(text) > maxBytes {
		text = text[:maxBytes]
	}
	return text
}
