//go:build linux

package security

import "syscall"

// CloneFlags returns the namespaces a judged process starts in. A network namespace
// without interfaces is added when DisableNetwork is set.
func (p IsolationProfile) CloneFlags() uintptr {
	flags := uintptr(syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if p.DisableNetwork {
		flags |= syscall.CLONE_NEWNET
	}
	return flags
}
