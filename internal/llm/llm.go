// Package llm defines the Gateway the engine depends on for text and
// structured-output generation, plus the error Classifier and circuit
// breaker that turn raw provider errors into the engine's pause/backoff
// policy. This mirrors the split in the teacher's llm package: a small
// interface (llm.Cognition/llm.Embedder there, llm.Gateway here) consumed by
// the rest of the engine, with a concrete provider implementation living in
// a sibling package (llm/openai here, exactly as in the teacher).
package llm

import "context"

// Gateway is the boundary the engine calls through for all LLM-backed
// decisions, conversation turns and mini-episodes.
type Gateway interface {
	// GenerateText returns freeform text for prompt, optionally primed with
	// a system instruction.
	GenerateText(ctx context.Context, prompt, system string) (string, error)

	// GenerateObject requests structured output conforming to schema (a
	// JSON Schema document) and unmarshals it into out, which must be a
	// pointer. Implementations validate the response against schema before
	// returning; a mismatch is surfaced as an error classified
	// LLM_INVALID_RESPONSE by Classify.
	GenerateObject(ctx context.Context, prompt string, schema []byte, system string, out any) error
}
