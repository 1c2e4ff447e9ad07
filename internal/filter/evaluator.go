package filter

import (
	"context"
	"fmt"
	"strings"

	"thoth/internal/llm"
	"thoth/internal/llm/jsonx"
	"thoth/internal/queries"
)

// LLMEvaluator implements Evaluator against an llm.Provider, producing
// the structured QueryEvaluation step 2 of §4.6 calls for.
type LLMEvaluator struct {
	Provider llm.Provider
	Model    string
}

func NewLLMEvaluator(provider llm.Provider, model string) *LLMEvaluator {
	return &LLMEvaluator{Provider: provider, Model: model}
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, q queries.Query, meta Metadata) (Evaluation, error) {
	prompt := fmt.Sprintf(
		"Research query: %q\nRequired topics: %s\nPreferred topics: %s\nExcluded topics: %s\n\nCandidate article:\nTitle: %s\nAbstract: %s\nKeywords: %s\n\n"+
			"Respond with a single JSON object: {\"relevance\": 0..1, \"matched_keywords\": [string], \"topic_analysis\": string, \"reasoning\": string, \"recommendation\": \"keep\"|\"reject\"|\"review\", \"confidence\": 0..1}.",
		q.Name, strings.Join(q.RequiredTopics, ", "), strings.Join(q.PreferredTopics, ", "), strings.Join(q.ExcludedTopics, ", "),
		meta.Title, meta.Abstract, strings.Join(meta.Keywords, ", "),
	)

	msg, err := e.Provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You evaluate whether an academic article matches a research query. Respond with only the JSON object."},
		{Role: "user", Content: prompt},
	}, nil, e.Model)
	if err != nil {
		return Evaluation{}, err
	}

	var raw struct {
		Relevance       float64  `json:"relevance"`
		MatchedKeywords []string `json:"matched_keywords"`
		TopicAnalysis   string   `json:"topic_analysis"`
		Reasoning       string   `json:"reasoning"`
		Recommendation  string   `json:"recommendation"`
		Confidence      float64  `json:"confidence"`
	}
	if err := jsonx.Decode(msg.Content, &raw); err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		Relevance:       raw.Relevance,
		MatchedKeywords: raw.MatchedKeywords,
		TopicAnalysis:   raw.TopicAnalysis,
		Reasoning:       raw.Reasoning,
		Recommendation:  raw.Recommendation,
		Confidence:      raw.Confidence,
	}, nil
}
