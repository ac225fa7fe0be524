package language

import (
	_ "embed"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
)

//go:embed shims/solution.js
var javascriptShim string

//go:embed shims/solution.py
var pythonShim string

const defaultPath = "PATH=/usr/local/bin:/usr/bin:/bin"

// shimAdapter appends an entry shim after the user code. An empty shim leaves the code as is.
type shimAdapter struct {
	spec profile.LanguageSpec
	shim string
}

func (a *shimAdapter) Spec() profile.LanguageSpec { return a.spec }

func (a *shimAdapter) Render(code string) ([]SourceFile, error) {
	if err := checkCode(code); err != nil {
		return nil, err
	}
	content := code
	if a.shim != "" {
		content = code + "\n" + a.shim
	}
	return []SourceFile{{Name: a.spec.SourceFile, Content: []byte(content)}}, nil
}

func withSpec(a Adapter, spec profile.LanguageSpec) Adapter {
	if sa, ok := a.(*shimAdapter); ok {
		return &shimAdapter{spec: spec, shim: sa.shim}
	}
	return Template(spec)
}

// JavaScript runs Node.js. Code defining solution(input) is driven by the shim.
func JavaScript() Adapter {
	return &shimAdapter{
		spec: profile.LanguageSpec{
			ID:            "javascript",
			Name:          "JavaScript",
			Version:       "node",
			SourceFile:    "main.js",
			CompileCmdTpl: "node --check {src}",
			RunCmdTpl:     "node --max-old-space-size={memoryMB} {src}",
			Env:           []string{defaultPath, "NODE_OPTIONS="},
			MemoryErrorPatterns: []string{
				"JavaScript heap out of memory",
				"Reached heap limit",
			},
			TimeMultiplier:   1,
			MemoryMultiplier: 1,
		},
		shim: javascriptShim,
	}
}

// Python runs CPython 3. Syntax is checked with py_compile before any case runs.
func Python() Adapter {
	return &shimAdapter{
		spec: profile.LanguageSpec{
			ID:                  "python",
			Name:                "Python",
			Version:             "3",
			SourceFile:          "main.py",
			CompileCmdTpl:       "python3 -m py_compile {src}",
			RunCmdTpl:           "python3 -S {src}",
			Env:                 []string{defaultPath, "PYTHONDONTWRITEBYTECODE=1", "PYTHONIOENCODING=utf-8"},
			MemoryErrorPatterns: []string{"MemoryError"},
			TimeMultiplier:      2,
			MemoryMultiplier:    1,
		},
		shim: pythonShim,
	}
}

// CPP compiles a complete program with g++.
func CPP() Adapter {
	return &shimAdapter{
		spec: profile.LanguageSpec{
			ID:                  "cpp",
			Name:                "C++",
			Version:             "c++17",
			SourceFile:          "main.cpp",
			BinaryFile:          "main",
			CompileCmdTpl:       "g++ -O2 -std=c++17 -pipe -o {bin} {src}",
			RunCmdTpl:           "{bin}",
			Env:                 []string{defaultPath},
			MemoryErrorPatterns: []string{"std::bad_alloc"},
			TimeMultiplier:      1,
			MemoryMultiplier:    1,
		},
	}
}

// Template wraps a configured language without an entry shim.
func Template(spec profile.LanguageSpec) Adapter {
	return &shimAdapter{spec: spec}
}
