// Package profile defines language and task profiles used by the sandbox.
package profile

// LanguageSpec defines how to check, compile and run a language.
type LanguageSpec struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	SourceFile string `yaml:"sourceFile"`
	BinaryFile string `yaml:"binaryFile"`

	// CompileCmdTpl may be empty for languages without a compile or syntax-check step.
	// Templates expand {src}, {bin}, {workdir} and {memoryMB}.
	CompileCmdTpl string   `yaml:"compileCmd"`
	RunCmdTpl     string   `yaml:"runCmd"`
	Env           []string `yaml:"env"`

	TimeMultiplier   float64 `yaml:"timeMultiplier"`
	MemoryMultiplier float64 `yaml:"memoryMultiplier"`

	// MemoryErrorPatterns are stderr substrings meaning the runtime ran out of heap.
	MemoryErrorPatterns []string `yaml:"memoryErrorPatterns"`

	DefaultTimeLimitMs   int64 `yaml:"timeLimitMs"`
	DefaultMemoryLimitMb int64 `yaml:"memoryLimitMb"`
}

// CompileEnabled reports whether the language has a compile or check step.
func (l LanguageSpec) CompileEnabled() bool {
	return l.CompileCmdTpl != ""
}
