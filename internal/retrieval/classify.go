// Package retrieval implements the agentic retrieval pipeline (§4.4 steps
// 1-2, 4-8) on top of the teacher's generic hybrid-retrieval scaffold in
// internal/rag/retrieve and internal/rag/service, which already performs
// step 3 (parallel FTS/vector candidates, RRF fusion, optional rerank and
// graph-augment) via Service.Retrieve. This package adds the
// classify/decompose/grade/CRAG/strips/hallucination/answer stages that
// original_source's src/thoth/rag/{query_router,document_grader,
// hallucination_checker,knowledge_refiner}.py implement in Python,
// expressed here against internal/llm.Provider and internal/llm/jsonx.
package retrieval

import (
	"context"
	"strings"

	"thoth/internal/llm"
)

// QueryClass is one of the three §4.4 step-1 classes.
type QueryClass string

const (
	ClassDirectAnswer QueryClass = "direct_answer"
	ClassStandardRAG  QueryClass = "standard_rag"
	ClassMultiHopRAG  QueryClass = "multi_hop_rag"
)

var multiHopKeywords = []string{
	"compare", "versus", "vs.", "difference between", "relationship between",
	"how does", "and then", "both", "across", "trend over",
}

var directAnswerKeywords = []string{
	"what is", "who is", "define", "when was", "how many",
}

// Classify picks a query class using heuristic keywords, matching §4.4
// step 1's "heuristic keywords or an optional semantic router" wording —
// the semantic-router path is left to Router, used only when configured.
func Classify(q string) QueryClass {
	lower := strings.ToLower(q)
	for _, kw := range multiHopKeywords {
		if strings.Contains(lower, kw) {
			return ClassMultiHopRAG
		}
	}
	for _, kw := range directAnswerKeywords {
		if strings.HasPrefix(lower, kw) && len(strings.Fields(q)) <= 8 {
			return ClassDirectAnswer
		}
	}
	return ClassStandardRAG
}

// Router is the optional semantic-router escape hatch: an LLM call that
// classifies queries too ambiguous for the heuristic. Fail-open: any
// error falls back to the heuristic result.
type Router struct {
	Provider llm.Provider
	Model    string
}

func (r *Router) ClassifyOrFallback(ctx context.Context, q string) QueryClass {
	heuristic := Classify(q)
	if r == nil || r.Provider == nil {
		return heuristic
	}
	msg, err := r.Provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Classify the user query as exactly one of: direct_answer, standard_rag, multi_hop_rag. Respond with only that token."},
		{Role: "user", Content: q},
	}, nil, r.Model)
	if err != nil {
		return heuristic
	}
	switch QueryClass(strings.TrimSpace(strings.ToLower(msg.Content))) {
	case ClassDirectAnswer:
		return ClassDirectAnswer
	case ClassStandardRAG:
		return ClassStandardRAG
	case ClassMultiHopRAG:
		return ClassMultiHopRAG
	default:
		return heuristic
	}
}
