//go:build linux

package initproc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func run(stdin io.Reader) error {
	req, err := decodeRequest(stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	// read while host paths are still visible
	var filter *seccompConfig
	if req.EnableSeccomp && req.Isolation.SeccompProfile != "" {
		if filter, err = loadSeccompProfile(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}
	if req.EnableNamespaces {
		if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("make mount private: %w", err)
		}
		if req.Isolation.HostView() {
			if err := restrictHostView(req.RunSpec.WorkDir, req.RunSpec.MaskDir); err != nil {
				return err
			}
		} else if err := enterRootFS(req.Isolation.RootFS, req.RunSpec.BindMounts); err != nil {
			return err
		}
	}

	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}

	env := buildEnv(req.RunSpec.Env)
	// resolve before the filter is loaded and while the helper's PATH is known
	cmdPath, err := lookPath(req.RunSpec.Cmd[0], env)
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}

	if err := applyRlimits(req.RunSpec.Limits); err != nil {
		return err
	}
	if err := redirectIO(req.RunSpec); err != nil {
		return err
	}
	if filter != nil {
		if err := applySeccomp(*filter); err != nil {
			return err
		}
	}
	return unix.Exec(cmdPath, req.RunSpec.Cmd, env)
}

// enterRootFS makes rootfs a read-only mount with the workspace binds and a private /tmp
// as the only writable places, then chroots into it.
func enterRootFS(rootfs string, mounts []spec.MountSpec) error {
	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind rootfs: %w", err)
	}
	if err := applyBindMounts(rootfs, mounts); err != nil {
		return err
	}
	tmp := filepath.Join(rootfs, "tmp")
	if err := mountScratch(tmp); err != nil {
		return err
	}
	if err := setMountReadOnly(rootfs, true, true); err != nil {
		return err
	}
	writable := []string{tmp}
	for _, m := range mounts {
		if !m.ReadOnly {
			writable = append(writable, filepath.Join(rootfs, m.Target))
		}
	}
	for _, dir := range writable {
		if err := setMountReadOnly(dir, false, false); err != nil {
			return err
		}
	}
	if err := unix.Chroot(rootfs); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir root: %w", err)
	}
	return nil
}

// restrictHostView keeps the host filesystem but turns it read-only, hides maskDir behind
// an empty tmpfs and binds workDir back in as the only writable directory besides a
// private /tmp.
func restrictHostView(workDir, maskDir string) error {
	// the handle survives the mask covering the path
	fd, err := unix.Open(workDir, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open workdir: %w", err)
	}
	defer unix.Close(fd)

	if err := mountScratch("/tmp"); err != nil {
		return err
	}
	if maskDir != "" {
		if err := os.MkdirAll(maskDir, 0o755); err != nil {
			return fmt.Errorf("mkdir mask dir: %w", err)
		}
		if err := unix.Mount("tmpfs", maskDir, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "size=1m,mode=0755"); err != nil {
			return fmt.Errorf("mask %s: %w", maskDir, err)
		}
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("mkdir workdir target: %w", err)
	}
	if err := unix.Mount(fmt.Sprintf("/proc/self/fd/%d", fd), workDir, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind workdir: %w", err)
	}
	if err := setMountReadOnly("/", true, true); err != nil {
		return err
	}
	for _, dir := range []string{"/tmp", workDir} {
		if err := setMountReadOnly(dir, false, false); err != nil {
			return err
		}
	}
	return nil
}

func mountScratch(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if err := unix.Mount("tmpfs", dir, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "size=64m,mode=1777"); err != nil {
		return fmt.Errorf("mount tmpfs on %s: %w", dir, err)
	}
	return nil
}

func setMountReadOnly(path string, readOnly, recursive bool) error {
	attr := unix.MountAttr{}
	if readOnly {
		attr.Attr_set = unix.MOUNT_ATTR_RDONLY
	} else {
		attr.Attr_clr = unix.MOUNT_ATTR_RDONLY
	}
	var flags uint
	if recursive {
		flags = unix.AT_RECURSIVE
	}
	if err := unix.MountSetattr(unix.AT_FDCWD, path, flags, &attr); err != nil {
		return fmt.Errorf("set mount attributes on %s: %w", path, err)
	}
	return nil
}

func lookPath(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			if err := os.Setenv("PATH", strings.TrimPrefix(kv, "PATH=")); err != nil {
				return "", err
			}
			break
		}
	}
	return exec.LookPath(name)
}

func applyBindMounts(rootfs string, mounts []spec.MountSpec) error {
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("invalid mount spec")
		}
		target := m.Target
		if rootfs != "" {
			target = filepath.Join(rootfs, m.Target)
		}
		if err := ensureMountTarget(m.Source, target); err != nil {
			return err
		}
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind mount %s: %w", m.Target, err)
		}
		if m.ReadOnly {
			if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remount readonly %s: %w", m.Target, err)
			}
		}
	}
	if rootfs != "" {
		procPath := filepath.Join(rootfs, "proc")
		if err := os.MkdirAll(procPath, 0755); err != nil {
			return fmt.Errorf("mkdir proc: %w", err)
		}
		if err := unix.Mount("proc", procPath, "proc", 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
			return fmt.Errorf("mount proc: %w", err)
		}
	}
	return nil
}

func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("mkdir mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("mkdir mount target dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return file.Close()
}

func applyRlimits(limits spec.ResourceLimit) error {
	if limits.CPUTimeMs > 0 {
		// soft limit raises SIGXCPU, the hard limit one second later kills
		soft := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: soft, Max: soft + 1}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.OutputMB > 0 {
		bytes := uint64(limits.OutputMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	if limits.StackMB > 0 {
		bytes := uint64(limits.StackMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit stack: %w", err)
		}
	}
	if limits.PIDs > 0 {
		val := uint64(limits.PIDs)
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: val, Max: val}); err != nil {
			return fmt.Errorf("set rlimit nproc: %w", err)
		}
	}
	return nil
}

func redirectIO(runSpec spec.RunSpec) error {
	open := func(path string, flag int) (*os.File, error) {
		if path == "" {
			path = os.DevNull
		}
		return os.OpenFile(path, flag, 0644)
	}
	stdinFile, err := open(runSpec.StdinPath, os.O_RDONLY)
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	defer stdinFile.Close()
	stdoutFile, err := open(runSpec.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open stdout: %w", err)
	}
	defer stdoutFile.Close()
	stderrFile, err := open(runSpec.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open stderr: %w", err)
	}
	defer stderrFile.Close()

	if err := unix.Dup2(int(stdinFile.Fd()), 0); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	if err := unix.Dup2(int(stdoutFile.Fd()), 1); err != nil {
		return fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup2(int(stderrFile.Fd()), 2); err != nil {
		return fmt.Errorf("dup stderr: %w", err)
	}
	return nil
}

func loadSeccompProfile(path string) (*seccompConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse seccomp profile: %w", err)
	}
	return &cfg, nil
}

func applySeccomp(cfg seccompConfig) error {
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// syscall unknown on this architecture
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}
