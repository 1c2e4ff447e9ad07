package retrieval

import (
	"context"
	"strings"
	"sync"

	"thoth/internal/llm"
	"thoth/internal/logging"
	"thoth/internal/rag/retrieve"
)

// GradedItem pairs a retrieved item with its binary relevance grade and
// the confidence score CRAG (§4.4 step 5) consumes.
type GradedItem struct {
	Item     retrieve.RetrievedItem
	Relevant bool
	Score    float64 // 1.0 relevant, 0.0 not
}

// Grade runs a binary yes/no relevance prompt per candidate concurrently
// and returns every candidate with its grade; Retained drops the "no"s. Fail-open: a grading error keeps the
// candidate (treats it as relevant) rather than silently dropping
// evidence the pipeline might still need.
func Grade(ctx context.Context, provider llm.Provider, model, query string, items []retrieve.RetrievedItem) []GradedItem {
	out := make([]GradedItem, len(items))
	var wg sync.WaitGroup
	for i, it := range items {
		i, it := i, it
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = gradeOne(ctx, provider, model, query, it)
		}()
	}
	wg.Wait()
	return out
}

func gradeOne(ctx context.Context, provider llm.Provider, model, query string, item retrieve.RetrievedItem) GradedItem {
	text := item.Text
	if text == "" {
		text = item.Snippet
	}
	msg, err := provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You grade whether a passage is relevant to a query. Respond with only \"yes\" or \"no\"."},
		{Role: "user", Content: "Query: " + query + "\n\nPassage:\n" + text},
	}, nil, model)
	if err != nil {
		logging.Log.WithError(err).Debug("retrieval: grading failed, keeping candidate (fail-open)")
		return GradedItem{Item: item, Relevant: true, Score: 1.0}
	}
	relevant := strings.Contains(strings.ToLower(msg.Content), "yes")
	score := 0.0
	if relevant {
		score = 1.0
	}
	return GradedItem{Item: item, Relevant: relevant, Score: score}
}

// Retained filters graded items down to the relevant ones.
func Retained(graded []GradedItem) []retrieve.RetrievedItem {
	out := make([]retrieve.RetrievedItem, 0, len(graded))
	for _, g := range graded {
		if g.Relevant {
			out = append(out, g.Item)
		}
	}
	return out
}
