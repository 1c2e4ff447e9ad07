package retrieval

import (
	"context"
	"strings"

	"thoth/internal/llm"
	"thoth/internal/llm/jsonx"
	"thoth/internal/logging"
	"thoth/internal/rag/retrieve"
)

// Strip is a per-statement factual unit extracted from a retained
// document, per §4.4 step 6's "ambiguous" corrective action.
type Strip struct {
	DocID string
	Text  string
}

// DecomposeStrips splits each retained document into knowledge strips via
// one LLM call per document. Fail-open: a document that fails to
// decompose contributes itself whole as a single strip.
func DecomposeStrips(ctx context.Context, provider llm.Provider, model string, items []retrieve.RetrievedItem) []Strip {
	var out []Strip
	for _, it := range items {
		text := it.Text
		if text == "" {
			text = it.Snippet
		}
		msg, err := provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: "Break the passage into a JSON array of short, independent factual statements (\"knowledge strips\"). Respond with only the JSON array."},
			{Role: "user", Content: text},
		}, nil, model)
		if err != nil {
			out = append(out, Strip{DocID: it.DocID, Text: text})
			continue
		}
		var stripTexts []string
		if err := jsonx.Decode(msg.Content, &stripTexts); err != nil || len(stripTexts) == 0 {
			logging.Log.WithError(err).Debug("retrieval: strip decomposition malformed, keeping whole passage")
			out = append(out, Strip{DocID: it.DocID, Text: text})
			continue
		}
		for _, s := range stripTexts {
			out = append(out, Strip{DocID: it.DocID, Text: s})
		}
	}
	return out
}

// GradeStrips grades each strip for relevance (same binary yes/no grader
// as document-level grading) and recomposes the relevant strips into a
// single refined context block.
func GradeStrips(ctx context.Context, provider llm.Provider, model, query string, strips []Strip) string {
	var kept []string
	for _, s := range strips {
		msg, err := provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: "You grade whether a factual statement is relevant to a query. Respond with only \"yes\" or \"no\"."},
			{Role: "user", Content: "Query: " + query + "\n\nStatement: " + s.Text},
		}, nil, model)
		if err != nil {
			kept = append(kept, s.Text) // fail-open
			continue
		}
		if strings.Contains(strings.ToLower(msg.Content), "yes") {
			kept = append(kept, s.Text)
		}
	}
	return strings.Join(kept, "\n")
}
