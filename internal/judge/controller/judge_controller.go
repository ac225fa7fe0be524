package controller

import (
	"context"
	"errors"
	"time"

	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
	"github.com/Majnu04/doflow-sub001/pkg/utils/contextkey"
	"github.com/Majnu04/doflow-sub001/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// JudgeService is the orchestrator surface used by the HTTP layer.
type JudgeService interface {
	Run(ctx context.Context, req model.RunRequest) (model.JudgmentResult, error)
	Submit(ctx context.Context, req model.SubmitRequest) (*model.Submission, error)
	Get(ctx context.Context, submissionID string) (*model.Submission, error)
}

// JudgeController handles run, submit and submission lookup requests.
type JudgeController struct {
	svc JudgeService
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc JudgeService) *JudgeController {
	return &JudgeController{svc: svc}
}

// SubmissionView is the flattened submission returned to clients.
type SubmissionView struct {
	ID           string                   `json:"id"`
	ProblemID    string                   `json:"problemId"`
	ProblemTitle string                   `json:"problemTitle,omitempty"`
	UserID       string                   `json:"userId"`
	RoadmapID    string                   `json:"roadmapId,omitempty"`
	Language     string                   `json:"language"`
	Status       model.SubmissionStatus   `json:"status"`
	SystemError  bool                     `json:"systemError"`
	ErrorMessage string                   `json:"errorMessage,omitempty"`
	Results      []model.ExecutionOutcome `json:"results"`
	PassedTests  int                      `json:"passedTests"`
	TotalTests   int                      `json:"totalTests"`
	AllPassed    bool                     `json:"allPassed"`
	CreatedAt    time.Time                `json:"createdAt"`
	FinishedAt   *time.Time               `json:"finishedAt,omitempty"`
}

// NewSubmissionView flattens a submission that already went through PublicView.
func NewSubmissionView(sub *model.Submission) SubmissionView {
	results := sub.Result.Results
	if results == nil {
		results = []model.ExecutionOutcome{}
	}
	return SubmissionView{
		ID:           sub.ID,
		ProblemID:    sub.ProblemID,
		ProblemTitle: sub.ProblemTitle,
		UserID:       sub.UserID,
		RoadmapID:    sub.RoadmapID,
		Language:     sub.Language,
		Status:       sub.Status,
		SystemError:  sub.SystemError,
		ErrorMessage: sub.ErrorMessage,
		Results:      results,
		PassedTests:  sub.Result.PassedTests,
		TotalTests:   sub.Result.TotalTests,
		AllPassed:    sub.Result.AllPassed,
		CreatedAt:    sub.CreatedAt,
		FinishedAt:   sub.FinishedAt,
	}
}

// Run judges code against the supplied cases without persisting anything.
func (h *JudgeController) Run(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	ctx := c.Request.Context()
	req.UserID = contextkey.UserIDFrom(ctx)

	res, err := h.svc.Run(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, res)
}

// Submit grades code against the problem's full case set.
func (h *JudgeController) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	ctx := c.Request.Context()
	req.UserID = contextkey.UserIDFrom(ctx)

	sub, err := h.svc.Submit(ctx, req)
	if err != nil {
		if sub != nil && !isContextError(err) {
			response.ErrorWithData(c, err, NewSubmissionView(sub))
			return
		}
		respondError(c, err)
		return
	}
	response.Success(c, NewSubmissionView(sub))
}

// GetSubmission returns one stored submission.
func (h *JudgeController) GetSubmission(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	sub, err := h.svc.Get(c.Request.Context(), submissionID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, NewSubmissionView(sub))
}

// respondError maps a vanished caller to JudgeCanceled; everything else keeps its code.
func respondError(c *gin.Context, err error) {
	if isContextError(err) {
		response.ErrorWithCode(c, appErr.JudgeCanceled, "")
		return
	}
	response.Error(c, err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
