// Package webhook sends best-effort, fire-and-forget error notifications to
// an operator-configured URL. No pack dependency addresses this concern, so
// it is a thin net/http wrapper -- there is nothing here worth pulling an
// HTTP client library in for.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/worldsim/worldsim/internal/llm"
)

// Notifier posts error notifications to a configured URL with a bounded
// timeout. Zero value with an empty URL is a no-op notifier.
type Notifier struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	Log     *slog.Logger
}

// DefaultTimeout matches §4.8's stated default.
const DefaultTimeout = 10 * time.Second

// New constructs a Notifier. If url is empty, NotifyLLMError is a no-op.
func New(url string, log *slog.Logger) *Notifier {
	return &Notifier{
		URL:     url,
		Timeout: DefaultTimeout,
		Client:  &http.Client{},
		Log:     log,
	}
}

// Payload is the wire shape sent for an LLM error notification, matching
// the S4 scenario's literal shape.
type Payload struct {
	Type       string      `json:"type"`
	Error      ErrorBody   `json:"error"`
	Simulation SimBody     `json:"simulation"`
}

type ErrorBody struct {
	Code     llm.ErrorCode `json:"code"`
	Severity llm.Severity  `json:"severity"`
	Message  string        `json:"message,omitempty"`
}

type SimBody struct {
	WillPause bool `json:"willPause"`
}

// NotifyLLMError fires a best-effort POST of an llm_error payload. It never
// blocks the caller past its own timeout and never returns an error the
// caller must act on -- failures are logged and swallowed, per §4.8/§5.
func (n *Notifier) NotifyLLMError(classified *llm.ClassifiedError, willPause bool) {
	if n == nil || n.URL == "" {
		return
	}

	payload := Payload{
		Type: "llm_error",
		Error: ErrorBody{
			Code:     classified.Code,
			Severity: classified.Severity,
			Message:  classified.Error(),
		},
		Simulation: SimBody{WillPause: willPause},
	}

	go n.send(payload)
}

func (n *Notifier) send(payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logError("marshal webhook payload", err)
		return
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		n.logError("build webhook request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		n.logError("send webhook", err)
		return
	}
	defer resp.Body.Close()
}

func (n *Notifier) logError(msg string, err error) {
	if n.Log != nil {
		n.Log.Warn(msg, slog.String("error", err.Error()))
	}
}
