// Package initproc is the sandbox helper: it reads an init request on stdin, applies
// mounts, rlimits and seccomp to itself, then execs the target command.
package initproc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/engine"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
)

// ReexecArg marks a process started as the helper by re-executing the current binary.
const ReexecArg = "__sandbox_init__"

// Main runs the helper and only returns on failure, after which the process exits.
func Main() {
	if err := run(os.Stdin); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, engine.HelperErrorPrefix+err.Error())
		os.Exit(engine.HelperSetupFailedExitCode)
	}
}

// MaybeReexec turns the current process into the helper when started with ReexecArg.
// Call it first thing in main or TestMain.
func MaybeReexec() {
	if len(os.Args) > 1 && os.Args[1] == ReexecArg {
		Main()
		os.Exit(engine.HelperSetupFailedExitCode)
	}
}

func decodeRequest(r io.Reader) (spec.InitRequest, error) {
	var req spec.InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return spec.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req spec.InitRequest) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if !req.EnableNamespaces && (!req.Isolation.HostView() || len(req.RunSpec.BindMounts) > 0) {
		return fmt.Errorf("namespaces disabled with rootfs or bind mounts")
	}
	if req.EnableNamespaces && req.Isolation.HostView() && req.RunSpec.MaskDir != "" &&
		!below(req.RunSpec.MaskDir, req.RunSpec.WorkDir) {
		return fmt.Errorf("work dir %s is not below mask dir %s", req.RunSpec.WorkDir, req.RunSpec.MaskDir)
	}
	return nil
}

func below(parent, path string) bool {
	if !filepath.IsAbs(parent) || !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(parent, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, "../")
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}

type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}
