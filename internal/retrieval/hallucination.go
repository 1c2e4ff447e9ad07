package retrieval

import (
	"context"
	"strings"

	"thoth/internal/llm"
	"thoth/internal/logging"
)

// HallucinationMode selects strict or lenient grounding verification
// (§4.4 step 8).
type HallucinationMode string

const (
	ModeStrict  HallucinationMode = "strict"
	ModeLenient HallucinationMode = "lenient"
)

// CheckGrounded verifies the answer is grounded in context. An ambiguous
// or failed verdict defaults to "grounded" in both modes — refusing to
// surface a usable answer on an uncertain verdict would defeat the
// fail-open design the rest of the pipeline follows.
func CheckGrounded(ctx context.Context, provider llm.Provider, model string, mode HallucinationMode, answer, context string) bool {
	strictness := "Flag the answer as ungrounded if it contains any claim not directly supported by the context."
	if mode == ModeLenient {
		strictness = "Flag the answer as ungrounded only if it contains a claim that contradicts or has no relation to the context; minor elaborations are acceptable."
	}
	msg, err := provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You verify whether an answer is grounded in the supplied context. " + strictness + " Respond with only \"grounded\" or \"ungrounded\"."},
		{Role: "user", Content: "Context:\n" + context + "\n\nAnswer:\n" + answer},
	}, nil, model)
	if err != nil {
		logging.Log.WithError(err).Warn("retrieval: hallucination check failed, defaulting to grounded")
		return true
	}
	verdict := strings.ToLower(strings.TrimSpace(msg.Content))
	return !strings.Contains(verdict, "ungrounded")
}
