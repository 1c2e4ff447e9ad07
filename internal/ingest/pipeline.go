// Package ingest implements the ingestion pipeline (§4.2): the nine-step
// DAG that turns a PDF (or scraped HTML landing page) into markdown, a
// structured analysis, an enhanced citation list, a registered article,
// and a colocated note, with at-most-once effects per content hash.
//
// Grounded on internal/rag/ingest/{api,preprocess,index_*}.go for the
// step-by-step orchestration shape (each step observes only prior steps'
// output, metrics/logging bracket every stage) and on
// original_source/analyze/citations/enhancer.py for the citation
// enhancement fan-out. The teacher's generic chunk-indexing RAG service
// (internal/rag/service) is reused unmodified for step 8; this package
// owns only the Thoth-specific steps (1, 2, 3, 4, 5, 6, 7, 9) that
// produce the article, citations, and note.
package ingest

import (
	"context"
	"fmt"
	"time"

	"thoth/internal/citegraph"
	"thoth/internal/config"
	"thoth/internal/coordination"
	"thoth/internal/llm"
	"thoth/internal/observability"
	"thoth/internal/rag/ingest"
	"thoth/internal/rag/service"
	"thoth/internal/schema"
	"thoth/internal/thoth/errs"
	"thoth/internal/tracker"
)

// Indexer is the subset of internal/rag/service.Service the pipeline
// needs for step 8 (index the markdown for retrieval).
type Indexer interface {
	Ingest(ctx context.Context, in ingest.IngestRequest) (ingest.IngestResponse, error)
}

var _ Indexer = (*service.Service)(nil)

// Coordinator is the subset of internal/coordination.Store the pipeline
// needs to announce a completed ingestion to the agent-facing tools layer
// over the §4.7 coordination substrate.
type Coordinator interface {
	Post(sender, receiver, task string, priority coordination.Priority, metadata string) error
}

// Pipeline wires together every step of §4.2's DAG.
type Pipeline struct {
	Tracker     *tracker.Tracker
	Graph       *citegraph.Graph
	Index       Indexer
	Enhancer    *Enhancer
	Archiver    *Archiver
	Coordinator Coordinator
	Provider    llm.Provider
	Model       string
	Schema      schema.Document
}

// Result summarizes one run of the pipeline for one PDF.
type Result struct {
	ArticleID      string
	NotePath       string
	MarkdownPath   string
	AnalysisFailed bool
	Skipped        bool
}

// Run executes the nine-step DAG for the PDF at path.
func (p *Pipeline) Run(ctx context.Context, path string) (Result, error) {
	// Step 1: fingerprint, consult tracker.
	processed, _, err := p.Tracker.IsProcessed(path)
	if err != nil {
		return Result{}, errs.New(errs.InputInvalid, "ingest.pipeline.fingerprint", err)
	}
	if processed {
		unchanged, err := p.Tracker.VerifyFileUnchanged(path)
		if err != nil {
			return Result{}, errs.New(errs.InputInvalid, "ingest.pipeline.verify", err)
		}
		if unchanged {
			return Result{Skipped: true}, nil
		}
		// content changed: fall through and rerun from step 2.
	}

	// Step 2: OCR/convert (fatal).
	converted, err := Convert(ctx, path)
	if err != nil {
		return Result{}, err
	}

	// Step 3: analyze (soft — markdown persists even on failure).
	preset := p.Schema.Active()
	analysis, analyzeErr := Analyze(ctx, p.Provider, p.Model, preset, converted.MarkdownNoImages)
	if analyzeErr != nil {
		analysis.Failed = true
	}

	// Step 4: extract citations (soft).
	citations, citeErr := ExtractCitations(ctx, p.Provider, p.Model, converted.MarkdownNoImages)
	if citeErr != nil {
		citations = nil
	}

	// Step 5: enhance citations (best-effort, bounded fan-out).
	if p.Enhancer != nil && len(citations) > 0 {
		citations = p.Enhancer.Enhance(ctx, citations)
	}

	// Step 6: register in the citation graph (fatal).
	article := articleFromAnalysis(path, analysis)
	articleID, err := p.Graph.RegisterArticle(ctx, article)
	if err != nil {
		return Result{}, errs.New(errs.IndexWriteFailed, "ingest.pipeline.register", err)
	}
	article.ID = articleID

	if err := p.Graph.AddCitations(ctx, articleID, citations); err != nil {
		// Citation edges are enrichment, not the primary artifact; log and continue.
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("article_id", articleID).Msg("ingest_add_citations_error")
	}

	// Step 7: create note, colocate artifacts (fatal — this is the primary
	// user-visible artifact).
	note := RenderNote(article, analysis, citations)
	pdfOut, markdownOut, noteOut, err := Colocate(path, converted.Markdown, note)
	if err != nil {
		return Result{}, err
	}

	if p.Archiver != nil {
		_ = p.Archiver.Archive(ctx, articleID, pdfOut, markdownOut, noteOut)
	}

	// Step 8: index the markdown for retrieval (best-effort; the note is
	// already durable even if indexing fails).
	if p.Index != nil {
		_, _ = p.Index.Ingest(ctx, ingest.IngestRequest{
			ID:     "doc:article:" + articleID,
			Title:  article.Title,
			Source: "thoth-ingest",
			Text:   converted.MarkdownNoImages,
			Metadata: map[string]any{
				"paper_id":   articleID,
				"article_id": articleID,
				"doi":        article.DOI,
				"arxiv_id":   article.ArxivID,
			},
			Options: ingest.IngestOptions{
				Chunking:       ingest.ChunkingOptions{Strategy: "markdown", MaxTokens: 800, Overlap: 80},
				Embedding:      ingest.EmbeddingOptions{Enabled: true},
				Graph:          ingest.GraphOptions{Enabled: true},
				ReingestPolicy: ingest.ReingestOverwrite,
			},
		})
	}

	// Step 9: record.
	if err := p.Tracker.MarkProcessed(path, noteOut); err != nil {
		return Result{}, errs.New(errs.IndexWriteFailed, "ingest.pipeline.record", err)
	}

	if p.Coordinator != nil {
		task := fmt.Sprintf("ingested %s (%s)", articleID, article.Title)
		if err := p.Coordinator.Post("ingest-pipeline", "tools", task, coordination.PriorityLow, ""); err != nil {
			// Announcement is enrichment for the agent-facing tools layer, not
			// part of the ingestion contract; log and continue.
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("article_id", articleID).Msg("ingest_coordination_post_error")
		}
	}

	return Result{
		ArticleID:      articleID,
		NotePath:       noteOut,
		MarkdownPath:   markdownOut,
		AnalysisFailed: analysis.Failed,
	}, nil
}

func articleFromAnalysis(path string, analysis AnalysisRecord) citegraph.Article {
	title := fmt.Sprintf("untitled (%s)", path)
	var authors []string
	var year int
	if t, ok := analysis.Fields["title"].(string); ok && t != "" {
		title = t
	}
	if as, ok := analysis.Fields["authors"].([]any); ok {
		for _, a := range as {
			if s, ok := a.(string); ok {
				authors = append(authors, s)
			}
		}
	}
	return citegraph.Article{
		Title:     title,
		Authors:   authors,
		Year:      year,
		PDFPath:   path,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// Watch starts the long-running watcher (§4.1) that feeds new PDFs into
// Run, debounced per-file.
func (p *Pipeline) Watch(ctx context.Context, cfg config.TrackerConfig) error {
	debounce := time.Duration(cfg.DebounceMS) * time.Millisecond
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return tracker.Watch(ctx, cfg.WatchDir, debounce, func(path string) {
		if _, err := p.Run(ctx, path); err != nil {
			// Fatal per-file errors are logged here; the watcher keeps
			// running for subsequent files regardless.
			observability.LoggerWithTrace(ctx).Error().Err(err).Str("path", path).Msg("ingest_run_error")
		}
	})
}
