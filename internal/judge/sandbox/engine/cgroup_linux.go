//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
)

// requiredControllers must be enabled in the root's cgroup.subtree_control so every run
// cgroup created below it gets memory.max, pids.max and cpu.max.
var requiredControllers = []string{"memory", "pids", "cpu"}

// ensureCgroupControllers enables requiredControllers on root, which must already exist on
// a cgroup v2 mount and be delegated to the service user.
func ensureCgroupControllers(root string) error {
	missing, err := missingControllers(root)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	enable := make([]string, len(missing))
	for i, c := range missing {
		enable[i] = "+" + c
	}
	if err := writeCgroupValue(root, "cgroup.subtree_control", strings.Join(enable, " ")); err != nil {
		return fmt.Errorf("enable cgroup controllers %v on %s: %w", missing, root, err)
	}
	missing, err = missingControllers(root)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("cgroup controllers %v not available on %s", missing, root)
	}
	return nil
}

func missingControllers(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, "cgroup.subtree_control"))
	if err != nil {
		return nil, fmt.Errorf("read cgroup.subtree_control: %w", err)
	}
	enabled := make(map[string]bool)
	for _, f := range strings.Fields(string(data)) {
		enabled[strings.TrimPrefix(f, "+")] = true
	}
	var missing []string
	for _, c := range requiredControllers {
		if !enabled[c] {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

// createRunCgroup creates the leaf <root>/<submission>-<test>-<nanos>. Leaves sit directly
// under root so they inherit its controllers and no shared parent is created or removed.
func createRunCgroup(root, submissionID, testID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, fmt.Errorf("cgroup root is required")
	}
	cgroupPath := filepath.Join(root, fmt.Sprintf("%s-%s-%d", submissionID, testID, time.Now().UnixNano()))
	if err := os.Mkdir(cgroupPath, 0750); err != nil {
		return "", func() {}, fmt.Errorf("create cgroup path: %w", err)
	}
	cleanup := func() {
		// cgroupfs directories are removed with rmdir, not unlink
		_ = syscall.Rmdir(cgroupPath)
	}
	return cgroupPath, cleanup, nil
}

func applyCgroupLimits(cgroupPath string, limits spec.ResourceLimit) error {
	pidsValue := "max"
	if limits.PIDs > 0 {
		pidsValue = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		bytes := strconv.FormatInt(limits.MemoryMB*1024*1024, 10)
		if err := writeCgroupValue(cgroupPath, "memory.max", bytes); err != nil {
			return err
		}
		// no swap, so the limit is a real limit
		_ = writeCgroupValue(cgroupPath, "memory.swap.max", "0")
	}
	// one full CPU per execution
	return writeCgroupValue(cgroupPath, "cpu.max", "100000 100000")
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid")
	}
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			val, _ := strconv.ParseInt(fields[1], 10, 64)
			return val > 0
		}
	}
	return false
}

func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if val, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && val > 0 {
			return val / 1024
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func writeCgroupValue(cgroupPath, name, value string) error {
	return os.WriteFile(filepath.Join(cgroupPath, name), []byte(value), 0640)
}
