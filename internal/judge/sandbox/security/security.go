// Package security describes how a judged process is isolated from the host and from other submissions.
package security

import "path/filepath"

// IsolationProfile is the resolved isolation of one task profile.
//
// Without a RootFS the process keeps the host filesystem read-only, with the workspace root
// masked so only its own workspace remains. A RootFS replaces the host filesystem with a
// read-only image that sees nothing but the bind mounts of the run.
type IsolationProfile struct {
	RootFS string
	// SeccompProfile names a JSON syscall policy, relative to the seccomp directory unless absolute.
	SeccompProfile string
	DisableNetwork bool
}

// HostView reports whether the process runs on the masked host filesystem.
func (p IsolationProfile) HostView() bool {
	return p.RootFS == ""
}

// WithSeccompDir returns p with a relative SeccompProfile resolved against dir.
func (p IsolationProfile) WithSeccompDir(dir string) IsolationProfile {
	if dir != "" && p.SeccompProfile != "" && !filepath.IsAbs(p.SeccompProfile) {
		p.SeccompProfile = filepath.Join(dir, p.SeccompProfile)
	}
	return p
}
