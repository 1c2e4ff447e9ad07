package retrieval

import (
	"context"

	"thoth/internal/config"
	"thoth/internal/llm"
	"thoth/internal/rag/retrieve"
	"thoth/internal/rag/service"
)

// Pipeline runs the full agentic retrieval flow (§4.4 steps 1-8) on top
// of an internal/rag/service.Service, which supplies step 3 (hybrid
// retrieval + RRF fusion).
type Pipeline struct {
	Service    *service.Service
	Provider   llm.Provider
	Model      string
	Router     *Router
	Thresholds Thresholds
	Mode       HallucinationMode
}

// New constructs a Pipeline from configuration.
func New(svc *service.Service, provider llm.Provider, cfg config.RetrievalConfig) *Pipeline {
	th := DefaultThresholds()
	if cfg.CRAGUpper > 0 {
		th.Upper = cfg.CRAGUpper
	}
	if cfg.CRAGLower > 0 {
		th.Lower = cfg.CRAGLower
	}
	mode := ModeLenient
	if cfg.HallucinationStrict {
		mode = ModeStrict
	}
	return &Pipeline{
		Service:    svc,
		Provider:   provider,
		Model:      cfg.Model,
		Router:     &Router{Provider: provider, Model: cfg.Model},
		Thresholds: th,
		Mode:       mode,
	}
}

// Answer runs the full pipeline for one query.
func (p *Pipeline) Answer(ctx context.Context, query string, opt retrieve.RetrieveOptions) Answer {
	class := p.Router.ClassifyOrFallback(ctx, query)
	if class == ClassDirectAnswer {
		text, _ := Generate(ctx, p.Provider, p.Model, query, nil)
		return Answer{Text: text}
	}

	queries := []string{query}
	if class == ClassMultiHopRAG {
		queries = Decompose(ctx, p.Provider, p.Model, query)
	}

	var merged []retrieve.RetrievedItem
	for _, q := range queries {
		resp, err := p.Service.Retrieve(ctx, q, opt)
		if err != nil {
			continue // fail-open: a sub-query's retrieval error doesn't void the others
		}
		merged = append(merged, resp.Items...)
	}

	graded := Grade(ctx, p.Provider, p.Model, query, merged)
	confidence := Assess(graded, p.Thresholds)

	var context string
	var answerText string
	switch confidence {
	case ConfidenceIncorrect:
		return Answer{NotFound: true, Text: "No sufficiently relevant information was found for this query."}
	case ConfidenceAmbiguous:
		retained := Retained(graded)
		strips := DecomposeStrips(ctx, p.Provider, p.Model, retained)
		context = GradeStrips(ctx, p.Provider, p.Model, query, strips)
		answerText = p.answerOverRefinedContext(ctx, query, context)
	default: // correct
		retained := Retained(graded)
		answerText, context = Generate(ctx, p.Provider, p.Model, query, retained)
	}

	if answerText == "" {
		return Answer{Text: "", Warning: "answer generation failed"}
	}

	if !CheckGrounded(ctx, p.Provider, p.Model, p.Mode, answerText, context) {
		retryText := p.regenerateStricter(ctx, query, context)
		if CheckGrounded(ctx, p.Provider, p.Model, p.Mode, retryText, context) {
			answerText = retryText
		} else {
			return Answer{Text: retryText, Warning: "answer may contain unsupported claims"}
		}
	}

	return Answer{Text: answerText}
}

func (p *Pipeline) answerOverRefinedContext(ctx context.Context, query, refinedContext string) string {
	msg, err := p.Provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Answer the user's question using only the supplied facts."},
		{Role: "user", Content: "Facts:\n" + refinedContext + "\n\nQuestion: " + query},
	}, nil, p.Model)
	if err != nil {
		return ""
	}
	return msg.Content
}

func (p *Pipeline) regenerateStricter(ctx context.Context, query, context string) string {
	msg, err := p.Provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Answer the user's question using ONLY facts explicitly stated in the context. Do not add any claim the context does not directly support."},
		{Role: "user", Content: "Context:\n" + context + "\n\nQuestion: " + query},
	}, nil, p.Model)
	if err != nil {
		return ""
	}
	return msg.Content
}
