// Package filter implements the article filter (§4.6): scores a
// candidate article against every stored ResearchQuery, optionally
// escalates to an LLM evaluator, and decides download/skip, appending
// every decision to a persistent append-only log (ScrapeDecision, §3.1).
//
// Supplemented from original_source's query_service.py keyword+LLM
// scoring shape (not present in the teacher; written in the teacher's
// service-struct idiom — see internal/rag/service/service.go).
package filter

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"thoth/internal/queries"
)

// Metadata is the minimal article surface the filter scores.
type Metadata struct {
	Title    string
	Abstract string
	Keywords []string
	PDFURL   string
}

// Evaluation is a structured LLM evaluator verdict (QueryEvaluation, §4.6).
type Evaluation struct {
	Relevance        float64
	MatchedKeywords  []string
	TopicAnalysis    string
	Reasoning        string
	Recommendation   string // keep | reject | review
	Confidence       float64
}

// Evaluator calls an LLM to produce a structured evaluation for one query.
type Evaluator interface {
	Evaluate(ctx context.Context, q queries.Query, meta Metadata) (Evaluation, error)
}

// Decision is a §3.1 ScrapeDecision, append-only.
type Decision struct {
	ArticleFingerprint string
	QueryScores        map[string]float64
	Decision           string // download | skip | error
	Reasoning          string
	PDFPath            string
	Timestamp          time.Time
}

// DecisionLog records decisions for audit; it is advisory, not the
// authoritative source of article existence (see DESIGN.md's Open
// Question decision — that role belongs to the citation graph).
type DecisionLog interface {
	Append(ctx context.Context, d Decision) error
}

// QuickScoreThreshold gates which queries escalate to the LLM evaluator
// (§4.6 step 2): "above a configured threshold OR for all queries if
// threshold is 0."
type Filter struct {
	store     *queries.Store
	evaluator Evaluator
	log       DecisionLog
	threshold float64
}

func New(store *queries.Store, evaluator Evaluator, log DecisionLog, quickScoreThreshold float64) *Filter {
	return &Filter{store: store, evaluator: evaluator, log: log, threshold: quickScoreThreshold}
}

// Result is the outcome of ProcessArticle.
type Result struct {
	Decision        string // download | skip
	MatchingQueries []string
	BestScore       float64
	Scores          map[string]float64
}

// ProcessArticle runs the §4.6 five-step decision pipeline.
func (f *Filter) ProcessArticle(ctx context.Context, fingerprint string, meta Metadata) (Result, error) {
	qs, err := f.store.List()
	if err != nil {
		return Result{}, fmt.Errorf("filter.process_article: %w", err)
	}
	if len(qs) == 0 {
		res := Result{Decision: "skip"}
		f.record(ctx, fingerprint, nil, "skip", "no queries exist")
		return res, nil
	}

	quick := make(map[string]float64, len(qs))
	for _, q := range qs {
		quick[q.Name] = round3(quickScore(q, meta))
	}

	scores := make(map[string]float64, len(qs))
	for _, q := range qs {
		qs := quick[q.Name]
		if f.threshold > 0 && qs < f.threshold {
			scores[q.Name] = qs
			continue
		}
		if f.evaluator == nil {
			scores[q.Name] = qs
			continue
		}
		eval, err := f.evaluator.Evaluate(ctx, q, meta)
		if err != nil {
			// fail-open: fall back to the quick score.
			scores[q.Name] = qs
			continue
		}
		scores[q.Name] = round3(eval.Relevance)
	}

	best := 0.0
	var matching []string
	for _, q := range qs {
		s := scores[q.Name]
		if s > best {
			best = s
		}
		if s >= q.MinimumRelevanceScore {
			matching = append(matching, q.Name)
		}
	}
	sort.Strings(matching)

	decision := "skip"
	if len(matching) > 0 {
		decision = "download"
	}

	f.record(ctx, fingerprint, scores, decision, reasonFor(decision, matching))
	return Result{Decision: decision, MatchingQueries: matching, BestScore: round3(best), Scores: scores}, nil
}

func reasonFor(decision string, matching []string) string {
	if decision == "download" {
		return fmt.Sprintf("matched queries: %s", strings.Join(matching, ", "))
	}
	return "no query met its minimum relevance score"
}

func (f *Filter) record(ctx context.Context, fingerprint string, scores map[string]float64, decision, reasoning string) {
	if f.log == nil {
		return
	}
	_ = f.log.Append(ctx, Decision{
		ArticleFingerprint: fingerprint,
		QueryScores:        scores,
		Decision:           decision,
		Reasoning:          reasoning,
		Timestamp:          time.Now(),
	})
}

// quickScore computes the weighted keyword-overlap score (§4.6 step 1):
// required 0.4, keywords 0.4, preferred 0.2; excluded halves the score
// per hit.
func quickScore(q queries.Query, meta Metadata) float64 {
	haystack := strings.ToLower(meta.Title + " " + meta.Abstract + " " + strings.Join(meta.Keywords, " "))

	score := 0.0
	score += 0.4 * overlapFraction(haystack, q.RequiredTopics)
	score += 0.4 * overlapFraction(haystack, q.Keywords)
	score += 0.2 * overlapFraction(haystack, q.PreferredTopics)

	for _, term := range q.ExcludedTopics {
		if term == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(term)) {
			score /= 2
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func overlapFraction(haystack string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(t)) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
