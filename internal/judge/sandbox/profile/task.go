package profile

import (
	"fmt"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/spec"
)

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
)

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	LanguageID     string             `yaml:"languageId"`
	TaskType       TaskType           `yaml:"taskType"`
	RootFS         string             `yaml:"rootfs"`
	SeccompProfile string             `yaml:"seccompProfile"`
	DisableNetwork bool               `yaml:"disableNetwork"`
	DefaultLimits  spec.ResourceLimit `yaml:"limits"`
}

// Name is the key used by the engine to resolve isolation settings.
func (p TaskProfile) Name() string {
	return ProfileName(p.LanguageID, p.TaskType)
}

// ProfileName joins a language id and task type, e.g. "python-run".
func ProfileName(languageID string, taskType TaskType) string {
	if languageID == "" {
		return string(taskType)
	}
	return fmt.Sprintf("%s-%s", languageID, taskType)
}
