//go:build linux

package security

import (
	"syscall"
	"testing"
)

func TestCloneFlags(t *testing.T) {
	base := IsolationProfile{}.CloneFlags()
	for _, flag := range []uintptr{syscall.CLONE_NEWUSER, syscall.CLONE_NEWNS, syscall.CLONE_NEWPID} {
		if base&flag == 0 {
			t.Fatalf("missing namespace flag %#x in %#x", flag, base)
		}
	}
	if base&syscall.CLONE_NEWNET != 0 {
		t.Fatalf("network namespace must follow DisableNetwork")
	}
	if (IsolationProfile{DisableNetwork: true}).CloneFlags()&syscall.CLONE_NEWNET == 0 {
		t.Fatalf("DisableNetwork must add a network namespace")
	}
}
