package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"thoth/internal/citegraph"
	"thoth/internal/config"
	"thoth/internal/gateway"
	"thoth/internal/logging"
)

// Enhancer fans citations out to the external API gateway to fill in
// missing fields, grounded on original_source's
// analyze/citations/enhancer.py: Semantic Scholar runs first in batch,
// then per-citation OpenCitations/arXiv/Scholarly/PDF-locator lookups run
// through a bounded worker pool (default 3) for citations still missing
// fields after the batch pass. An individual source failure never
// cascades; the citation keeps its best-known fields (§4.2 step 5).
type Enhancer struct {
	gw      *gateway.Gateway
	workers int
}

func NewEnhancer(gw *gateway.Gateway, cfg config.IngestConfig) *Enhancer {
	w := cfg.MaxWorkers
	if w <= 0 {
		w = 3
	}
	return &Enhancer{gw: gw, workers: w}
}

// Enhance mutates and returns citations with fields filled in from
// external sources.
func (e *Enhancer) Enhance(ctx context.Context, citations []citegraph.Citation) []citegraph.Citation {
	if len(citations) == 0 {
		return citations
	}

	e.semanticScholarBatch(ctx, citations)

	sem := make(chan struct{}, e.workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range citations {
		i := i
		if !needsEnhancement(citations[i]) {
			continue
		}
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			e.enhanceOne(gctx, &citations[i])
			return nil // per-citation failures are swallowed inside enhanceOne
		})
	}
	_ = g.Wait()
	return citations
}

func needsEnhancement(c citegraph.Citation) bool {
	return c.DOI == "" || c.ArxivID == "" || c.Year == 0 || len(c.Authors) == 0
}

func (e *Enhancer) semanticScholarBatch(ctx context.Context, citations []citegraph.Citation) {
	titles := make([]string, 0, len(citations))
	for _, c := range citations {
		titles = append(titles, c.Title)
	}
	body := map[string]any{"titles": titles}
	resp, err := e.gw.Post(ctx, "semanticscholar", "/graph/v1/paper/batch", body, nil)
	if err != nil {
		logging.Log.WithError(err).Warn("ingest: semantic scholar batch lookup failed")
		return
	}

	var results []struct {
		Title   string   `json:"title"`
		DOI     string   `json:"externalIds.DOI"`
		Authors []string `json:"authors"`
		Year    int      `json:"year"`
	}
	if err := json.Unmarshal(resp, &results); err != nil {
		return
	}
	for i := range citations {
		if i >= len(results) {
			break
		}
		mergeField(&citations[i].DOI, results[i].DOI)
		if citations[i].Year == 0 {
			citations[i].Year = results[i].Year
		}
		if len(citations[i].Authors) == 0 {
			citations[i].Authors = results[i].Authors
		}
	}
}

func (e *Enhancer) enhanceOne(ctx context.Context, c *citegraph.Citation) {
	if c.DOI != "" {
		e.opencitationsLookup(ctx, c)
	}
	if c.ArxivID == "" {
		e.arxivLookup(ctx, c)
	}
	if needsEnhancement(*c) {
		e.scholarlyLookup(ctx, c)
	}
	if c.PDFURL == "" {
		e.pdfLocatorLookup(ctx, c)
	}
}

func (e *Enhancer) opencitationsLookup(ctx context.Context, c *citegraph.Citation) {
	resp, err := e.gw.Get(ctx, "opencitations", fmt.Sprintf("/meta/api/v1/metadata/doi:%s", c.DOI), nil, nil)
	if err != nil {
		logging.Log.WithError(err).Debug("ingest: opencitations lookup failed")
		return
	}
	var meta []struct {
		Author string `json:"author"`
		Year   string `json:"year"`
	}
	if json.Unmarshal(resp, &meta) != nil || len(meta) == 0 {
		return
	}
	m := meta[0]
	if len(c.Authors) == 0 && m.Author != "" {
		c.Authors = parseOpenCitationsAuthors(m.Author)
	}
	if c.Year == 0 {
		if y, err := strconv.Atoi(m.Year); err == nil {
			c.Year = y
		}
	}
}

// parseOpenCitationsAuthors splits OpenCitations' "Last, First; Last, First"
// author-list convention into individual names.
func parseOpenCitationsAuthors(field string) []string {
	parts := strings.Split(field, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *Enhancer) arxivLookup(ctx context.Context, c *citegraph.Citation) {
	resp, err := e.gw.Get(ctx, "arxiv", "/api/query", map[string]string{"search_query": "ti:" + c.Title, "max_results": "1"}, nil)
	if err != nil {
		logging.Log.WithError(err).Debug("ingest: arxiv lookup failed")
		return
	}
	var result struct {
		ArxivID string `json:"arxiv_id"`
	}
	if json.Unmarshal(resp, &result) == nil && result.ArxivID != "" {
		c.ArxivID = result.ArxivID
	}
}

func (e *Enhancer) scholarlyLookup(ctx context.Context, c *citegraph.Citation) {
	resp, err := e.gw.Get(ctx, "scholarly", "/search", map[string]string{"q": c.Title}, nil)
	if err != nil {
		logging.Log.WithError(err).Debug("ingest: scholarly lookup failed")
		return
	}
	var result struct {
		DOI  string `json:"doi"`
		Year int    `json:"year"`
	}
	if json.Unmarshal(resp, &result) == nil {
		mergeField(&c.DOI, result.DOI)
		if c.Year == 0 {
			c.Year = result.Year
		}
	}
}

func (e *Enhancer) pdfLocatorLookup(ctx context.Context, c *citegraph.Citation) {
	resp, err := e.gw.Get(ctx, "pdflocator", "/locate", map[string]string{"doi": c.DOI, "arxiv_id": c.ArxivID, "title": c.Title}, nil)
	if err != nil {
		logging.Log.WithError(err).Debug("ingest: pdf locator lookup failed")
		return
	}
	var result struct {
		URL          string `json:"url"`
		Source       string `json:"source"`
		IsOpenAccess bool   `json:"is_open_access"`
	}
	if json.Unmarshal(resp, &result) == nil && result.URL != "" {
		c.PDFURL = result.URL
		c.PDFSource = result.Source
		c.IsOpenAccess = result.IsOpenAccess
	}
}

func mergeField(dst *string, incoming string) {
	if *dst == "" && incoming != "" {
		*dst = incoming
	}
}
