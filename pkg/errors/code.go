package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth errors
// 12000-12999: Problem errors
// 13000-13999: Submission & Judge errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Infrastructure (10100-10299)
	DatabaseError ErrorCode = 10100
	CacheError    ErrorCode = 10200
	StorageError  ErrorCode = 10250
	PublishError  ErrorCode = 10251

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Auth Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003

	// Judge (13100-13199)
	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101
	JudgeCanceled    ErrorCode = 13107

	// Run (13200-13299)
	TooManyTestCases    ErrorCode = 13200
	CustomInputTooLarge ErrorCode = 13201
)

var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError: "Database operation failed",
	CacheError:    "Cache operation failed",
	StorageError:  "Object storage operation failed",
	PublishError:  "Failed to publish event",

	ValidationFailed: "Validation failed",

	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	ProblemNotFound: "Problem not found",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",

	JudgeQueueFull:   "All execution slots are busy, please try again later",
	JudgeSystemError: "Judge system error",
	JudgeCanceled:    "Judging was canceled",

	TooManyTestCases:    "Too many test cases",
	CustomInputTooLarge: "Custom input is too large",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == NotFound, c == ProblemNotFound, c == SubmissionNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == JudgeQueueFull:
		return 503
	case c == Timeout:
		return 504
	case c == JudgeCanceled:
		// nginx's "client closed request"
		return 499
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge,
		c == TooManyTestCases, c == CustomInputTooLarge:
		return 400
	default:
		return 500
	}
}
