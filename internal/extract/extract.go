// Package extract appends structured-extraction blocks to fetched content
// using a text LLM, and serves the on-demand /extract command.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/rs/zerolog"
)

const (
	// MinContentLength gates enhancement: shorter content is not worth a
	// second round-trip.
	MinContentLength = 200

	enhanceInputCap  = 5000
	enhanceOutputCap = 2000
	// minResultLength rejects near-empty extraction results.
	minResultLength = 50

	commandInputCap  = 8000
	commandOutputCap = 3000
)

const defaultInstruction = "Extract key information: main topic, key claims/data, people/orgs, numbers/stats, conclusion."

const commandInstruction = "Extract all key entities, facts, numbers, relationships. Organize in structured format."

// Enhancer runs structured extraction over text. A nil client means the
// extraction capability is absent and every call short-circuits.
type Enhancer struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// New creates an Enhancer. Pass a nil client when no extraction credential is
// configured.
func New(client *openai.Client, model string, log zerolog.Logger) *Enhancer {
	return &Enhancer{
		client: client,
		model:  model,
		log:    log.With().Str("component", "extract").Logger(),
	}
}

// Available reports whether structured extraction can run.
func (e *Enhancer) Available() bool {
	return e.client != nil
}

// Enhance runs structured extraction over fetched web content and appends the
// result under a delimited marker section. Returns ("", false) when the
// capability is absent, the content is under the length threshold, or the
// extraction produced nothing usable.
func (e *Enhancer) Enhance(ctx context.Context, raw, sourceURL string) (string, bool) {
	if e.client == nil || len(raw) < MinContentLength {
		return "", false
	}

	e.log.Info().Int("chars", len(raw)).Str("url", sourceURL).Msg("extracting structured data")

	result, err := e.run(ctx, truncate(raw, enhanceInputCap), defaultInstruction)
	if err != nil {
		e.log.Error().Err(err).Msg("extraction failed")
		return "", false
	}
	if len(result) < minResultLength {
		return "", false
	}

	return raw + "\n\n=== Structured Extraction ===\n" + truncate(result, enhanceOutputCap) + "\n=== end ===", true
}

// Extract is the on-demand command variant: it runs extraction directly over
// arbitrary text with a higher input cap and an optional instruction
// override, returning a human-readable message in every case.
func (e *Enhancer) Extract(ctx context.Context, text, instruction string) string {
	if e.client == nil {
		return "Structured extraction is not configured (missing LLM API key)."
	}
	if instruction == "" {
		instruction = commandInstruction
	}

	result, err := e.run(ctx, truncate(text, commandInputCap), instruction)
	if err != nil {
		e.log.Error().Err(err).Msg("extraction failed")
		return fmt.Sprintf("Extraction failed: %v", err)
	}
	if result == "" {
		return "Extraction complete but no results"
	}
	return "Extraction result:\n\n" + truncate(result, commandOutputCap)
}

func (e *Enhancer) run(ctx context.Context, text, instruction string) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instruction),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("extraction call returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
