package model

import "time"

// Submission is a persisted, graded attempt. It is immutable once terminal.
type Submission struct {
	ID           string           `json:"id"`
	ProblemID    string           `json:"problemId"`
	ProblemTitle string           `json:"problemTitle,omitempty"`
	UserID       string           `json:"userId"`
	RoadmapID    string           `json:"roadmapId,omitempty"`
	Code         string           `json:"code,omitempty"`
	Language     string           `json:"language"`
	Status       SubmissionStatus `json:"status"`
	SystemError  bool             `json:"systemError"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Result       JudgmentResult   `json:"judgmentResult"`
	CreatedAt    time.Time        `json:"createdAt"`
	FinishedAt   *time.Time       `json:"finishedAt,omitempty"`
}

// StatusEvent is published when a submission reaches a terminal status.
type StatusEvent struct {
	SubmissionID string           `json:"submissionId"`
	ProblemID    string           `json:"problemId"`
	UserID       string           `json:"userId"`
	RoadmapID    string           `json:"roadmapId,omitempty"`
	Language     string           `json:"language"`
	Status       SubmissionStatus `json:"status"`
	SystemError  bool             `json:"systemError"`
	PassedTests  int              `json:"passedTests"`
	TotalTests   int              `json:"totalTests"`
	FinishedAt   int64            `json:"finishedAt"`
}

// NewStatusEvent builds the final-status event for s.
func NewStatusEvent(s *Submission) StatusEvent {
	ev := StatusEvent{
		SubmissionID: s.ID,
		ProblemID:    s.ProblemID,
		UserID:       s.UserID,
		RoadmapID:    s.RoadmapID,
		Language:     s.Language,
		Status:       s.Status,
		SystemError:  s.SystemError,
		PassedTests:  s.Result.PassedTests,
		TotalTests:   s.Result.TotalTests,
	}
	if s.FinishedAt != nil {
		ev.FinishedAt = s.FinishedAt.Unix()
	}
	return ev
}
