//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeSubtreeControl(t *testing.T, root, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, "cgroup.subtree_control"), []byte(value), 0o644); err != nil {
		t.Fatalf("write subtree_control: %v", err)
	}
}

func TestEnsureCgroupControllers(t *testing.T) {
	t.Run("already enabled", func(t *testing.T) {
		root := t.TempDir()
		writeSubtreeControl(t, root, "cpu io memory pids\n")
		if err := ensureCgroupControllers(root); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	})
	t.Run("enables missing", func(t *testing.T) {
		root := t.TempDir()
		writeSubtreeControl(t, root, "memory\n")
		if err := ensureCgroupControllers(root); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		data, _ := os.ReadFile(filepath.Join(root, "cgroup.subtree_control"))
		if got := string(data); !strings.Contains(got, "+pids") || !strings.Contains(got, "+cpu") {
			t.Fatalf("expected pids and cpu to be enabled, got %q", got)
		}
	})
	t.Run("not a cgroup", func(t *testing.T) {
		if err := ensureCgroupControllers(t.TempDir()); err == nil {
			t.Fatalf("expected error without cgroup.subtree_control")
		}
	})
}

func TestCreateRunCgroupIsFlatLeaf(t *testing.T) {
	root := t.TempDir()
	const workers = 8
	paths := make([]string, workers)
	cleanups := make([]func(), workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, cleanup, err := createRunCgroup(root, "sub-1", string(rune('a'+i)))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			paths[i], cleanups[i] = path, cleanup
			// a sibling finishing early must not disturb the others
			if i%2 == 0 {
				cleanup()
			}
		}(i)
	}
	wg.Wait()

	for i, path := range paths {
		if path == "" {
			continue
		}
		if filepath.Dir(path) != root {
			t.Fatalf("leaf %s must sit directly under the root", path)
		}
		if !strings.HasPrefix(filepath.Base(path), "sub-1-") {
			t.Fatalf("leaf %s does not name its submission", path)
		}
		_, err := os.Stat(path)
		if i%2 == 1 && err != nil {
			t.Fatalf("live leaf removed: %v", err)
		}
		if i%2 == 1 {
			cleanups[i]()
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Fatalf("cleanup left %s behind", path)
			}
		}
	}
}
