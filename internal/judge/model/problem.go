package model

// TestCase is one input with its expected output. Hidden cases count toward grading
// but their data is never shown to the learner.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
}

// Problem is the judge-facing view of a practice problem.
type Problem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty string     `json:"difficulty"`
	TestCases  []TestCase `json:"testCases"`

	// Optional overrides; zero means the language default.
	TimeLimitMs   int64 `json:"timeLimitMs,omitempty"`
	MemoryLimitMb int64 `json:"memoryLimitMb,omitempty"`

	// Compare is the output comparison policy name, empty means "trimmed".
	Compare string `json:"compare,omitempty"`
}

// HiddenCount returns the number of hidden test cases.
func (p *Problem) HiddenCount() int {
	n := 0
	for _, tc := range p.TestCases {
		if tc.IsHidden {
			n++
		}
	}
	return n
}
