package llm

import "strings"

// ErrorCode is the classifier's taxonomy of LLM failure kinds, per §4.8/§7.
type ErrorCode string

const (
	CodeRateLimit        ErrorCode = "LLM_RATE_LIMIT"
	CodeTimeout           ErrorCode = "LLM_TIMEOUT"
	CodeNetworkError       ErrorCode = "LLM_NETWORK_ERROR"
	CodeNotInitialized    ErrorCode = "LLM_NOT_INITIALIZED"
	CodeInvalidResponse   ErrorCode = "LLM_INVALID_RESPONSE"
	CodeAPIError          ErrorCode = "LLM_API_ERROR"
	CodeUnknownError      ErrorCode = "LLM_UNKNOWN_ERROR"
)

// Severity is how seriously the engine should treat a classified error.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type classifierRule struct {
	keywords []string
	code     ErrorCode
	severity Severity
}

// classifierTable is evaluated top-to-bottom; the first matching rule wins.
// The order is significant and mirrors §4.8's priority table exactly.
var classifierTable = []classifierRule{
	{[]string{"rate limit", "429", "too many requests"}, CodeRateLimit, SeverityWarning},
	{[]string{"timeout", "timed out", "etimedout"}, CodeTimeout, SeverityError},
	{[]string{"network", "econnrefused", "enotfound", "fetch failed"}, CodeNetworkError, SeverityError},
	{[]string{"not initialized", "not configured"}, CodeNotInitialized, SeverityCritical},
	{[]string{"invalid", "parse", "schema"}, CodeInvalidResponse, SeverityWarning},
	{[]string{"401", "403", "unauthorized", "forbidden", "quota"}, CodeAPIError, SeverityCritical},
}

// Classify maps err's message to (code, severity) by substring match in
// priority order, falling back to LLM_UNKNOWN_ERROR/error.
func Classify(err error) (ErrorCode, Severity) {
	if err == nil {
		return "", ""
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classifierTable {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.code, rule.severity
			}
		}
	}

	return CodeUnknownError, SeverityError
}

// ClassifiedError pairs an underlying error with its classification, for
// callers (webhook, logging) that need both.
type ClassifiedError struct {
	Err      error
	Code     ErrorCode
	Severity Severity
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// ClassifyErr wraps err with its classification.
func ClassifyErr(err error) *ClassifiedError {
	code, sev := Classify(err)
	return &ClassifiedError{Err: err, Code: code, Severity: sev}
}
