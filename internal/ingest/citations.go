package ingest

import (
	"context"
	"fmt"
	"strings"

	"thoth/internal/citegraph"
	"thoth/internal/llm"
	"thoth/internal/llm/jsonx"
	"thoth/internal/thoth/errs"
)

// citationContextBudget is the approximate character budget per LLM call
// before ExtractCitations switches to map-reduce over sections.
const citationContextBudget = 40000

// ExtractCitations runs step 4 of the DAG: an LLM call that returns an
// ordered list of citations parsed from markdown. When markdown exceeds
// citationContextBudget, the call is split map-reduce style over
// paragraph-bounded sections and the per-section lists concatenated,
// since a single call would truncate the reference list silently.
func ExtractCitations(ctx context.Context, provider llm.Provider, model string, markdown string) ([]citegraph.Citation, error) {
	if len(markdown) <= citationContextBudget {
		return extractCitationsSection(ctx, provider, model, markdown)
	}

	var all []citegraph.Citation
	for _, section := range splitSections(markdown, citationContextBudget) {
		cites, err := extractCitationsSection(ctx, provider, model, section)
		if err != nil {
			continue // best-effort per section; a bad section doesn't void the rest
		}
		all = append(all, cites...)
	}
	if all == nil {
		return nil, errs.New(errs.CitationExtractionFailed, "ingest.citations", fmt.Errorf("no citations extracted from %d sections", len(splitSections(markdown, citationContextBudget))))
	}
	return all, nil
}

func extractCitationsSection(ctx context.Context, provider llm.Provider, model, text string) ([]citegraph.Citation, error) {
	msg, err := provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You extract bibliographic citations from academic text. Respond with a JSON array of objects with fields: title, authors (array of strings), year, doi, arxiv_id, raw. Use empty string/0 for unknown fields. Respond with the JSON array and nothing else."},
		{Role: "user", Content: text},
	}, nil, model)
	if err != nil {
		return nil, errs.New(errs.CitationExtractionFailed, "ingest.citations.chat", err)
	}

	var raw []struct {
		Title   string   `json:"title"`
		Authors []string `json:"authors"`
		Year    int      `json:"year"`
		DOI     string   `json:"doi"`
		ArxivID string   `json:"arxiv_id"`
		Raw     string   `json:"raw"`
	}
	if err := jsonx.Decode(msg.Content, &raw); err != nil {
		return nil, errs.New(errs.CitationExtractionFailed, "ingest.citations.decode", err)
	}

	out := make([]citegraph.Citation, 0, len(raw))
	for _, r := range raw {
		out = append(out, citegraph.Citation{
			Title:   r.Title,
			Authors: r.Authors,
			Year:    r.Year,
			DOI:     r.DOI,
			ArxivID: r.ArxivID,
			Raw:     r.Raw,
		})
	}
	return out, nil
}

// splitSections breaks markdown into roughly budget-sized chunks on
// paragraph boundaries, never splitting mid-paragraph.
func splitSections(markdown string, budget int) []string {
	paras := strings.Split(markdown, "\n\n")
	var sections []string
	var cur strings.Builder
	for _, p := range paras {
		if cur.Len()+len(p) > budget && cur.Len() > 0 {
			sections = append(sections, cur.String())
			cur.Reset()
		}
		cur.WriteString(p)
		cur.WriteString("\n\n")
	}
	if cur.Len() > 0 {
		sections = append(sections, cur.String())
	}
	return sections
}
