package retrieval

import (
	"context"
	"fmt"
	"strings"

	"thoth/internal/llm"
	"thoth/internal/logging"
	"thoth/internal/rag/retrieve"
)

// Answer is the final response of the agentic pipeline (§4.4 step 7-8).
type Answer struct {
	Text     string
	Sources  []string
	Warning  string
	NotFound bool
}

// Generate produces an answer grounded in items via a single LLM call,
// returning the answer text and the numbered context block the model was
// given. On error the text is empty.
func Generate(ctx context.Context, provider llm.Provider, model, query string, items []retrieve.RetrievedItem) (string, string) {
	context, sources := buildContext(items)
	msg, err := provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Answer the user's question using only the supplied context. Cite sources inline as [n] matching the numbered context blocks."},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, query)},
	}, nil, model)
	if err != nil {
		logging.Log.WithError(err).Warn("retrieval: answer generation failed")
		return "", context
	}
	_ = sources
	return msg.Content, context
}

func buildContext(items []retrieve.RetrievedItem) (string, []string) {
	var b strings.Builder
	sources := make([]string, 0, len(items))
	for i, it := range items {
		text := it.Text
		if text == "" {
			text = it.Snippet
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, text)
		sources = append(sources, it.DocID)
	}
	return b.String(), sources
}
