// Package language renders user code into files the sandbox can compile and run.
package language

import (
	"sort"
	"strings"
	"sync"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

// SourceFile is one file written into the compile workspace.
type SourceFile struct {
	Name    string
	Content []byte
}

// Adapter knows how to turn a snippet into a runnable unit for one language.
type Adapter interface {
	Spec() profile.LanguageSpec
	Render(code string) ([]SourceFile, error)
}

// Registry maps language ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Spec().ID] = a
	}
	return r
}

// NewDefaultRegistry returns a registry with the built-in languages.
func NewDefaultRegistry() *Registry {
	return NewRegistry(JavaScript(), Python(), CPP())
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return appErr.ValidationError("adapter", "required")
	}
	spec := a.Spec()
	if err := validateSpec(spec); err != nil {
		return err
	}
	r.mu.Lock()
	r.adapters[spec.ID] = a
	r.mu.Unlock()
	return nil
}

// Configure applies configured language specs. Known ids are overlaid onto the built-in
// adapter; unknown ids become template adapters without an entry shim.
func (r *Registry) Configure(specs []profile.LanguageSpec) error {
	for _, spec := range specs {
		id := normalizeID(spec.ID)
		if id == "" {
			return appErr.ValidationError("language.id", "required")
		}
		spec.ID = id
		r.mu.RLock()
		existing, ok := r.adapters[id]
		r.mu.RUnlock()
		var next Adapter
		if ok {
			next = withSpec(existing, overlaySpec(existing.Spec(), spec))
		} else {
			next = Template(spec)
		}
		if err := r.Register(next); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the adapter for a language id.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[normalizeID(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, appErr.New(appErr.LanguageNotSupported).WithMessagef("language %q is not supported", id)
	}
	return a, nil
}

// IDs lists registered language ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func validateSpec(spec profile.LanguageSpec) error {
	if spec.ID == "" {
		return appErr.ValidationError("language.id", "required")
	}
	if spec.SourceFile == "" {
		return appErr.ValidationError("language.sourceFile", "required")
	}
	if strings.TrimSpace(spec.RunCmdTpl) == "" {
		return appErr.ValidationError("language.runCmd", "required")
	}
	return nil
}

// overlaySpec copies the non-zero fields of override onto base.
func overlaySpec(base, override profile.LanguageSpec) profile.LanguageSpec {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Version != "" {
		base.Version = override.Version
	}
	if override.SourceFile != "" {
		base.SourceFile = override.SourceFile
	}
	if override.BinaryFile != "" {
		base.BinaryFile = override.BinaryFile
	}
	if override.CompileCmdTpl != "" {
		base.CompileCmdTpl = override.CompileCmdTpl
	}
	if override.RunCmdTpl != "" {
		base.RunCmdTpl = override.RunCmdTpl
	}
	if len(override.Env) > 0 {
		base.Env = override.Env
	}
	if override.TimeMultiplier > 0 {
		base.TimeMultiplier = override.TimeMultiplier
	}
	if override.MemoryMultiplier > 0 {
		base.MemoryMultiplier = override.MemoryMultiplier
	}
	if len(override.MemoryErrorPatterns) > 0 {
		base.MemoryErrorPatterns = override.MemoryErrorPatterns
	}
	if override.DefaultTimeLimitMs > 0 {
		base.DefaultTimeLimitMs = override.DefaultTimeLimitMs
	}
	if override.DefaultMemoryLimitMb > 0 {
		base.DefaultMemoryLimitMb = override.DefaultMemoryLimitMb
	}
	return base
}

func checkCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if strings.IndexByte(code, 0) >= 0 {
		return appErr.ValidationError("code", "contains NUL byte")
	}
	return nil
}
