package model

// RunRequest asks for an ungraded run against caller supplied cases.
type RunRequest struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"testCases"`

	// Set by the transport, never bound from the body.
	UserID string `json:"-"`
}

// SubmitRequest asks for a graded submission against a problem's full case set.
type SubmitRequest struct {
	Code         string     `json:"code"`
	Language     string     `json:"language"`
	ProblemID    string     `json:"problemId"`
	ProblemTitle string     `json:"problemTitle"`
	RoadmapID    string     `json:"roadmapId,omitempty"`
	TestCases    []TestCase `json:"testCases"`

	UserID string `json:"-"`
}
