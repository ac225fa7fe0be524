package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

func (k key) String() string { return string(k) }

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	UserID    key = "user_id"

	// SubmissionID is set for the duration of one judging request.
	SubmissionID key = "submission_id"
)

// UserIDFrom returns the caller identity stored by the HTTP middleware, or "".
func UserIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(UserID).(string)
	return v
}

// WithSubmissionID tags ctx so every log line written while judging carries the id.
func WithSubmissionID(ctx context.Context, submissionID string) context.Context {
	return context.WithValue(ctx, SubmissionID, submissionID)
}
