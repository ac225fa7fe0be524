// Package aggregator folds per-case outcomes into a judgment and a submission status.
package aggregator

import "github.com/Majnu04/doflow-sub001/internal/judge/model"

// Aggregate builds a JudgmentResult. Outcomes must already be in test case order.
func Aggregate(outcomes []model.ExecutionOutcome) model.JudgmentResult {
	res := model.JudgmentResult{
		Results:    outcomes,
		TotalTests: len(outcomes),
	}
	if res.Results == nil {
		res.Results = []model.ExecutionOutcome{}
	}
	for _, o := range outcomes {
		if o.Passed {
			res.PassedTests++
		}
	}
	res.AllPassed = res.TotalTests > 0 && res.PassedTests == res.TotalTests
	return res
}

// DeriveStatus maps a judgment to the terminal submission status. systemError is set when
// the status reflects an infrastructure failure rather than the learner's code.
func DeriveStatus(res model.JudgmentResult) (status model.SubmissionStatus, systemError bool) {
	if res.TotalTests == 0 {
		return model.StatusInternalError, true
	}
	if res.AllPassed {
		return model.StatusAccepted, false
	}
	for _, o := range res.Results {
		if o.ErrorKind == model.ErrorKindInternalError {
			return model.StatusInternalError, true
		}
	}
	for _, o := range res.Results {
		if o.ErrorKind == model.ErrorKindCompileError {
			return model.StatusCompileError, false
		}
	}
	for _, o := range res.Results {
		if !o.Passed {
			return model.StatusForErrorKind(o.ErrorKind), false
		}
	}
	return model.StatusInternalError, true
}
