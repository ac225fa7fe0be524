package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	"github.com/Majnu04/doflow-sub001/internal/judge/repository"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
	"github.com/Majnu04/doflow-sub001/pkg/utils/contextkey"
	"github.com/Majnu04/doflow-sub001/pkg/utils/logger"

	"go.uber.org/zap"
)

// Get returns a stored submission, reading the status cache before the database. A caller
// identified in ctx only sees their own submissions.
func (s *Service) Get(ctx context.Context, submissionID string) (*model.Submission, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}

	if s.status != nil {
		sub, err := s.status.Get(ctx, submissionID)
		if err == nil {
			return s.visible(ctx, sub)
		}
		if appErr.GetCode(err) != appErr.SubmissionNotFound {
			logger.Warn(ctx, "read status snapshot failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}

	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessagef("submission %s not found", submissionID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	if sub.Status.IsTerminal() {
		s.saveStatus(ctx, sub)
	}
	return s.visible(ctx, sub)
}

func (s *Service) visible(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	caller := contextkey.UserIDFrom(ctx)
	if caller != "" && sub.UserID != "" && caller != sub.UserID {
		return nil, appErr.New(appErr.SubmissionNotFound).WithMessagef("submission %s not found", sub.ID)
	}
	return sub.PublicView(), nil
}
