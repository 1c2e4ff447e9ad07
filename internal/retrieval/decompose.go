package retrieval

import (
	"context"

	"thoth/internal/llm"
	"thoth/internal/llm/jsonx"
	"thoth/internal/logging"
)

// Decompose splits a multi-hop query into 2-4 sub-queries via a single
// LLM call (§4.4 step 2). Fail-open: on error or malformed output, the
// original query is returned as a single-element slice so the caller
// degrades to standard retrieval rather than aborting.
func Decompose(ctx context.Context, provider llm.Provider, model, query string) []string {
	msg, err := provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Break the user's question into 2 to 4 independent sub-questions whose answers together answer the original question. Respond with a JSON array of strings and nothing else."},
		{Role: "user", Content: query},
	}, nil, model)
	if err != nil {
		logging.Log.WithError(err).Warn("retrieval: decompose failed, using original query")
		return []string{query}
	}

	var subqueries []string
	if err := jsonx.Decode(msg.Content, &subqueries); err != nil || len(subqueries) == 0 {
		logging.Log.WithError(err).Warn("retrieval: decompose returned malformed output, using original query")
		return []string{query}
	}
	if len(subqueries) > 4 {
		subqueries = subqueries[:4]
	}
	return subqueries
}
