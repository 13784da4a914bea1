package llm

import (
	"errors"
	"testing"
)

func TestClassifyPriorityOrder(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode ErrorCode
		wantSev  Severity
	}{
		{"rate limit", errors.New("429 Too Many Requests"), CodeRateLimit, SeverityWarning},
		{"timeout", errors.New("context deadline exceeded: timed out"), CodeTimeout, SeverityError},
		{"network", errors.New("dial tcp: connect: ECONNREFUSED"), CodeNetworkError, SeverityError},
		{"not initialized", errors.New("gateway not configured"), CodeNotInitialized, SeverityCritical},
		{"invalid response", errors.New("failed to parse model output"), CodeInvalidResponse, SeverityWarning},
		{"api error", errors.New("401 Unauthorized"), CodeAPIError, SeverityCritical},
		{"unknown", errors.New("the sky is falling"), CodeUnknownError, SeverityError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, sev := Classify(tc.err)
			if code != tc.wantCode || sev != tc.wantSev {
				t.Fatalf("Classify(%q) = (%s, %s), want (%s, %s)", tc.err, code, sev, tc.wantCode, tc.wantSev)
			}
		})
	}
}

// TestClassifyFirstRuleWins exercises a message matching more than one rule's
// keywords, confirming the table's declared priority order (§4.8) decides it,
// not map/slice iteration order.
func TestClassifyFirstRuleWins(t *testing.T) {
	// contains both "timeout" (rule 2) and "invalid" (rule 5); rule 2 wins.
	err := errors.New("invalid request: upstream timeout")
	code, _ := Classify(err)
	if code != CodeTimeout {
		t.Fatalf("expected the earlier rule (timeout) to win, got %s", code)
	}
}

func TestClassifyNilError(t *testing.T) {
	code, sev := Classify(nil)
	if code != "" || sev != "" {
		t.Fatalf("expected empty classification for a nil error, got (%s, %s)", code, sev)
	}
}

func TestClassifyErrWrapsAndUnwraps(t *testing.T) {
	underlying := errors.New("403 forbidden")
	ce := ClassifyErr(underlying)

	if ce.Code != CodeAPIError || ce.Severity != SeverityCritical {
		t.Fatalf("expected API error classification, got (%s, %s)", ce.Code, ce.Severity)
	}
	if !errors.Is(ce, underlying) {
		t.Fatal("expected ClassifiedError to unwrap to the underlying error")
	}
}
