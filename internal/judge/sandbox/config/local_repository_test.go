package config

import (
	"testing"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

func TestLocalRepositoryResolve(t *testing.T) {
	repo := NewLocalRepository([]profile.TaskProfile{
		{TaskType: profile.TaskTypeRun, SeccompProfile: "default.json", DisableNetwork: true,
			DefaultLimits: spec.ResourceLimit{CPUTimeMs: 5000, MemoryMB: 256}},
		{TaskType: profile.TaskTypeCompile, DisableNetwork: true},
		{LanguageID: "cpp", TaskType: profile.TaskTypeRun, SeccompProfile: "cpp.json", DisableNetwork: true},
	})

	iso, err := repo.Resolve("cpp-run")
	if err != nil || iso.SeccompProfile != "cpp.json" {
		t.Fatalf("expected language specific profile, got %+v err=%v", iso, err)
	}
	iso, err = repo.Resolve("python-run")
	if err != nil || iso.SeccompProfile != "default.json" || !iso.DisableNetwork {
		t.Fatalf("expected fallback run profile, got %+v err=%v", iso, err)
	}
	if _, err := repo.Resolve("python-lint"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	prof, err := repo.GetTaskProfile(profile.TaskTypeRun, "javascript")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if prof.Name() != "javascript-run" || prof.DefaultLimits.CPUTimeMs != 5000 {
		t.Fatalf("unexpected profile %+v", prof)
	}
}
