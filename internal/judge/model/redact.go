package model

// MaxVisibleOutputBytes bounds actualOutput shown for hidden cases.
const MaxVisibleOutputBytes = 256

// Redact returns a copy of r safe to show to the learner: hidden cases lose
// their input and expected output, and their actual output is truncated.
func Redact(r JudgmentResult) JudgmentResult {
	out := r
	out.Results = make([]ExecutionOutcome, len(r.Results))
	for i, o := range r.Results {
		if o.IsHidden {
			o.Input = ""
			o.ExpectedOutput = ""
			o.ActualOutput = Truncate(o.ActualOutput, MaxVisibleOutputBytes)
		}
		out.Results[i] = o
	}
	return out
}

// PublicView strips fields that must not leave the service with a submission: the source
// and hidden case data.
func (s *Submission) PublicView() *Submission {
	cp := *s
	cp.Code = ""
	cp.Result = Redact(s.Result)
	return &cp
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
