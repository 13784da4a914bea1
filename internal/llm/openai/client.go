// Package openai is the concrete LLM Gateway backed by the OpenAI Responses
// API. It is a direct generalisation of the teacher's llm/openai/client.go:
// the same openai.Client wrapper, the same functional-option constructors,
// the same JSON-schema-constrained structured output request shape, and the
// same hash-logged retry wrapper -- re-pointed at a generic
// (prompt, schema) -> T contract instead of one Go method per cognition
// operation, since this domain's decision/conversation/summary schemas are
// assembled by their own packages rather than baked into the client.
package openai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// Client wraps an openai.Client configured for both freeform text generation
// and schema-constrained structured output.
type Client struct {
	client openai.Client
	logger *slog.Logger

	apiKey string
	url    string

	textModel  string
	maxRetries int
}

// ClientOpt configures a Client, mirroring the teacher's functional-option set.
type ClientOpt func(*Client)

func WithAPIKey(key string) ClientOpt { return func(c *Client) { c.apiKey = key } }
func WithURL(url string) ClientOpt    { return func(c *Client) { c.url = url } }
func WithLogger(l *slog.Logger) ClientOpt {
	return func(c *Client) { c.logger = l }
}
func WithTextModel(model string) ClientOpt { return func(c *Client) { c.textModel = model } }
func WithMaxRetries(n int) ClientOpt       { return func(c *Client) { c.maxRetries = n } }

// New constructs a Client, defaulting the model and retry count the way the
// teacher's client defaults textModel to "gpt-5-nano".
func New(opts ...ClientOpt) *Client {
	c := &Client{
		textModel:  "gpt-5-nano",
		maxRetries: 5,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var clientOpts []option.RequestOption
	if c.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(c.apiKey))
	}
	if c.url != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(c.url))
	}

	c.client = openai.NewClient(clientOpts...)
	return c
}

// GenerateText requests freeform text output.
func (c *Client) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	params := responses.ResponseNewParams{
		Model: c.textModel,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(withSystem(system, prompt))},
	}

	resp, err := c.doRequestWithRetry(ctx, params, nil)
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

// GenerateObject requests output constrained to schema and unmarshals the
// result into out.
func (c *Client) GenerateObject(ctx context.Context, prompt string, schema []byte, system string, out any) error {
	var schemaDoc map[string]any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return fmt.Errorf("invalid response schema: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: c.textModel,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(withSystem(system, prompt))},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   "structured_output",
					Schema: schemaDoc,
					Strict: openai.Bool(true),
				},
			},
		},
		Reasoning: shared.ReasoningParam{Effort: shared.ReasoningEffortLow},
	}

	validate := func(raw string) error {
		return json.Unmarshal([]byte(raw), out)
	}

	_, err := c.doRequestWithRetry(ctx, params, validate)
	return err
}

func withSystem(system, prompt string) string {
	if system == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}

func isJSONUnmarshalError(err error) bool {
	var e *json.UnmarshalTypeError
	if errorsAs(err, &e) {
		return true
	}
	var se *json.SyntaxError
	return errorsAs(err, &se)
}

// errorsAs avoids importing "errors" just for this one call site in a file
// that otherwise only needs fmt; kept trivial on purpose.
func errorsAs(err error, target any) bool {
	switch t := target.(type) {
	case **json.UnmarshalTypeError:
		e, ok := err.(*json.UnmarshalTypeError)
		if ok {
			*t = e
		}
		return ok
	case **json.SyntaxError:
		e, ok := err.(*json.SyntaxError)
		if ok {
			*t = e
		}
		return ok
	default:
		return false
	}
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// doRequestWithRetry issues params against the Responses API, retrying up
// to c.maxRetries times on a request error or a validation failure, with no
// delay between attempts, and with structured logging at each phase -- the same llm_call_start/retry/ok/fail
// shape the teacher's client logs.
func (c *Client) doRequestWithRetry(ctx context.Context, params responses.ResponseNewParams, validate func(string) error) (*responses.Response, error) {
	promptHash := hashString(fmt.Sprint(params.Input))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		start := time.Now()
		c.logger.Debug("llm_call_start",
			slog.String("prompt_hash", promptHash),
			slog.Int("attempt", attempt),
		)

		resp, err := c.client.Responses.New(ctx, params)
		latency := time.Since(start)

		if err != nil {
			lastErr = err
			c.logger.Warn("llm_call_retry",
				slog.String("prompt_hash", promptHash),
				slog.Int("attempt", attempt),
				slog.Duration("latency", latency),
				slog.String("error", err.Error()),
			)
			continue
		}

		if validate != nil {
			if verr := validate(resp.OutputText()); verr != nil {
				lastErr = fmt.Errorf("invalid response: %w", verr)
				c.logger.Warn("llm_call_retry",
					slog.String("prompt_hash", promptHash),
					slog.Int("attempt", attempt),
					slog.Duration("latency", latency),
					slog.String("error", lastErr.Error()),
					slog.Bool("schema_mismatch", isJSONUnmarshalError(verr)),
				)
				continue
			}
		}

		c.logger.Debug("llm_call_ok",
			slog.String("prompt_hash", promptHash),
			slog.Int("attempt", attempt),
			slog.Duration("latency", latency),
		)
		return resp, nil
	}

	c.logger.Error("llm_call_fail",
		slog.String("prompt_hash", promptHash),
		slog.Int("attempts", c.maxRetries+1),
		slog.String("error", lastErr.Error()),
	)
	return nil, lastErr
}
