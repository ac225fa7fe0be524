// Package config resolves sandbox task profiles from service configuration.
package config

import (
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/security"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

// LocalRepository holds task profiles in memory and resolves isolation settings.
type LocalRepository struct {
	profiles map[string]profile.TaskProfile
	fallback map[profile.TaskType]profile.TaskProfile
}

// NewLocalRepository creates a repository from a profile list. Profiles with an empty
// LanguageID act as the fallback for their task type.
func NewLocalRepository(profiles []profile.TaskProfile) *LocalRepository {
	r := &LocalRepository{
		profiles: make(map[string]profile.TaskProfile),
		fallback: make(map[profile.TaskType]profile.TaskProfile),
	}
	for _, prof := range profiles {
		if prof.TaskType == "" {
			continue
		}
		if prof.LanguageID == "" {
			r.fallback[prof.TaskType] = prof
			continue
		}
		r.profiles[prof.Name()] = prof
	}
	return r
}

// GetTaskProfile returns the profile for a language and task type, or the task type's fallback.
func (r *LocalRepository) GetTaskProfile(taskType profile.TaskType, languageID string) (profile.TaskProfile, error) {
	if taskType == "" {
		return profile.TaskProfile{}, appErr.ValidationError("task_type", "required")
	}
	if prof, ok := r.profiles[profile.ProfileName(languageID, taskType)]; ok {
		return prof, nil
	}
	if prof, ok := r.fallback[taskType]; ok {
		prof.LanguageID = languageID
		return prof, nil
	}
	return profile.TaskProfile{}, appErr.New(appErr.NotFound).WithMessagef("task profile %s not found", profile.ProfileName(languageID, taskType))
}

// Resolve maps a profile name to isolation settings.
func (r *LocalRepository) Resolve(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	prof, ok := r.profiles[profileName]
	if !ok {
		prof, ok = r.fallbackFor(profileName)
	}
	if !ok {
		return security.IsolationProfile{}, appErr.New(appErr.NotFound).WithMessagef("profile %s not found", profileName)
	}
	return security.IsolationProfile{
		RootFS:         prof.RootFS,
		SeccompProfile: prof.SeccompProfile,
		DisableNetwork: prof.DisableNetwork,
	}, nil
}

func (r *LocalRepository) fallbackFor(profileName string) (profile.TaskProfile, bool) {
	for taskType, prof := range r.fallback {
		suffix := "-" + string(taskType)
		if profileName == string(taskType) || (len(profileName) > len(suffix) && profileName[len(profileName)-len(suffix):] == suffix) {
			return prof, true
		}
	}
	return profile.TaskProfile{}, false
}
