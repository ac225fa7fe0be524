package engine

import "github.com/Majnu04/doflow-sub001/internal/judge/sandbox/security"

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	CgroupRoot string
	SeccompDir string
	HelperPath string
	// HelperArgs are passed to the helper before anything else, e.g. a re-exec marker.
	HelperArgs []string
	// StdoutStderrMaxBytes bounds captured stderr and, when no output limit is set, stdout.
	StdoutStderrMaxBytes int64
	EnableSeccomp        bool
	EnableCgroup         bool
	EnableNamespaces     bool
}

const (
	defaultStdoutStderrMaxBytes int64 = 64 * 1024

	// HelperSetupFailedExitCode is used by the helper when it fails before exec.
	HelperSetupFailedExitCode = 120
	// HelperErrorPrefix marks helper diagnostics on its stderr.
	HelperErrorPrefix = "sandbox-init: "
)
