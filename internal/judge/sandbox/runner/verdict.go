package runner

import (
	"strings"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/result"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
)

// Linux signal numbers raised by RLIMIT_CPU and RLIMIT_FSIZE.
const (
	signalXCPU = 24
	signalXFSZ = 25
)

const (
	MessageTimeLimit   = "time limit exceeded"
	MessageMemoryLimit = "memory limit exceeded"
	MessageOutputLimit = "output limit exceeded"
)

// mapRunVerdict classifies one execution. Time wins over memory, memory over output.
func mapRunVerdict(res result.RunResult, limits spec.ResourceLimit, lang profile.LanguageSpec) (result.Verdict, string) {
	if res.TimedOut || res.Signal == signalXCPU {
		return result.VerdictTLE, MessageTimeLimit
	}
	if limits.CPUTimeMs > 0 && res.TimeMs > limits.CPUTimeMs {
		return result.VerdictTLE, MessageTimeLimit
	}
	failed := res.ExitCode != 0 || res.Signal != 0
	if res.OomKilled {
		return result.VerdictMLE, MessageMemoryLimit
	}
	if limits.MemoryMB > 0 && res.MemoryKB > limits.MemoryMB*1024 {
		return result.VerdictMLE, MessageMemoryLimit
	}
	if failed && matchesAny(res.Stderr, lang.MemoryErrorPatterns) {
		return result.VerdictMLE, MessageMemoryLimit
	}
	if res.Signal == signalXFSZ {
		return result.VerdictOLE, MessageOutputLimit
	}
	if limits.OutputMB > 0 && res.OutputKB > limits.OutputMB*1024 {
		return result.VerdictOLE, MessageOutputLimit
	}
	if failed {
		return result.VerdictRE, ""
	}
	return result.VerdictOK, ""
}

func matchesAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}
