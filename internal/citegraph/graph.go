// Package citegraph implements the citation graph (§4.3): the canonical
// set of articles and their reference relations, producing deterministic
// article_ids. It exclusively owns Article and Citation rows (§3.2); the
// ingestion pipeline asks it to register-or-update an article rather than
// writing rows itself.
//
// Grounded on internal/persistence/databases's GraphDB interface and
// postgres_graph.go's id-indexed arena-of-nodes shape (§9's "cyclic graph"
// design note): articles and citations are stored in their own relational
// tables for the match-precedence queries §4.3 requires (exact DOI, exact
// arXiv ID, normalized title), while find_related's BFS rides on the
// shared GraphDB edge store so the retrieval engine's graph-augment stage
// (internal/rag/retrieve/graph_expand.go) can traverse the same edges.
package citegraph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thoth/internal/persistence/databases"
	"thoth/internal/thoth/errs"
)

// Article mirrors §3.1's Article entity.
type Article struct {
	ID            string
	DOI           string
	ArxivID       string
	Title         string
	Authors       []string
	Abstract      string
	Year          int
	PDFPath       string
	MarkdownPath  string
	NotePath      string
	Tags          []string
	CollectionID  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Citation mirrors §3.1's Citation entity.
type Citation struct {
	ID              string
	SourceArticleID string
	TargetArticleID string // empty = unresolved
	Title           string
	Authors         []string
	Year            int
	DOI             string
	ArxivID         string
	PDFURL          string
	PDFSource       string
	IsOpenAccess    bool
	BackupID        string
	Raw             string
}

// Graph is the citation graph's store, backed by Postgres for article/
// citation rows and a GraphDB for the find_related edge index.
type Graph struct {
	pool  *pgxpool.Pool
	edges databases.GraphDB
}

const relCites = "CITES"

// New constructs a Graph and ensures its tables exist.
func New(ctx context.Context, pool *pgxpool.Pool, edges databases.GraphDB) (*Graph, error) {
	g := &Graph{pool: pool, edges: edges}
	if err := g.migrate(ctx); err != nil {
		return nil, fmt.Errorf("citegraph migrate: %w", err)
	}
	return g, nil
}

func (g *Graph) migrate(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS articles (
  id TEXT PRIMARY KEY,
  doi TEXT,
  arxiv_id TEXT,
  title TEXT NOT NULL,
  normalized_title TEXT NOT NULL,
  authors TEXT[] NOT NULL DEFAULT '{}',
  abstract TEXT,
  year INT,
  pdf_path TEXT,
  markdown_path TEXT,
  note_path TEXT,
  tags TEXT[] NOT NULL DEFAULT '{}',
  collection_id TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS articles_doi_uq ON articles (doi) WHERE doi IS NOT NULL AND doi != '';
CREATE UNIQUE INDEX IF NOT EXISTS articles_arxiv_uq ON articles (arxiv_id) WHERE arxiv_id IS NOT NULL AND arxiv_id != '';
CREATE INDEX IF NOT EXISTS articles_normalized_title_idx ON articles (normalized_title);

CREATE TABLE IF NOT EXISTS citations (
  id TEXT PRIMARY KEY,
  source_article_id TEXT NOT NULL REFERENCES articles(id),
  target_article_id TEXT,
  title TEXT,
  authors TEXT[] NOT NULL DEFAULT '{}',
  year INT,
  doi TEXT,
  arxiv_id TEXT,
  pdf_url TEXT,
  pdf_source TEXT,
  is_open_access BOOLEAN NOT NULL DEFAULT false,
  backup_id TEXT,
  raw TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS citations_edge_uq ON citations (source_article_id, target_article_id) WHERE target_article_id IS NOT NULL;
`)
	return err
}

// normalizedTitle implements §4.3's title tie-break: case-insensitive,
// whitespace-collapsed, punctuation-stripped comparison of the first 120
// characters.
var punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
var spaceRe = regexp.MustCompile(`\s+`)

func normalizedTitle(title string) string {
	t := strings.ToLower(title)
	t = punctRe.ReplaceAllString(t, "")
	t = spaceRe.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)
	if r := []rune(t); len(r) > 120 {
		t = string(r[:120])
	}
	return t
}

// RegisterArticle is an atomic upsert (§4.3): match precedence is exact DOI
// → exact arXiv ID → normalized-title equality. On match, scalar fields are
// merged (non-null incoming overwrites null existing; tags unioned); on no
// match, a new row is inserted with a fresh stable id.
func (g *Graph) RegisterArticle(ctx context.Context, a Article) (string, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("citegraph.register_article: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := g.findMatch(ctx, tx, a)
	if err != nil {
		return "", err
	}

	if existing == nil {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.NormalizedTitleCache()
		now := time.Now()
		_, err := tx.Exec(ctx, `
INSERT INTO articles (id, doi, arxiv_id, title, normalized_title, authors, abstract, year, pdf_path, markdown_path, note_path, tags, collection_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
`, a.ID, nullIfEmpty(a.DOI), nullIfEmpty(a.ArxivID), a.Title, normalizedTitle(a.Title), a.Authors, nullIfEmpty(a.Abstract), nullIfZero(a.Year), nullIfEmpty(a.PDFPath), nullIfEmpty(a.MarkdownPath), nullIfEmpty(a.NotePath), a.Tags, nullIfEmpty(a.CollectionID), now)
		if err != nil {
			return "", errs.Wrap(errs.IndexWriteFailed, "citegraph.register_article", err)
		}
		if err := g.edges.UpsertNode(ctx, a.ID, []string{"Article"}, map[string]any{"title": a.Title}); err != nil {
			return "", errs.Wrap(errs.IndexWriteFailed, "citegraph.register_article", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", err
		}
		return a.ID, nil
	}

	merged := mergeArticle(*existing, a)
	_, err = tx.Exec(ctx, `
UPDATE articles SET doi=$2, arxiv_id=$3, title=$4, normalized_title=$5, authors=$6, abstract=$7, year=$8,
  pdf_path=$9, markdown_path=$10, note_path=$11, tags=$12, collection_id=$13, updated_at=$14
WHERE id=$1
`, existing.ID, nullIfEmpty(merged.DOI), nullIfEmpty(merged.ArxivID), merged.Title, normalizedTitle(merged.Title), merged.Authors, nullIfEmpty(merged.Abstract), nullIfZero(merged.Year), nullIfEmpty(merged.PDFPath), nullIfEmpty(merged.MarkdownPath), nullIfEmpty(merged.NotePath), merged.Tags, nullIfEmpty(merged.CollectionID), time.Now())
	if err != nil {
		return "", errs.Wrap(errs.IndexWriteFailed, "citegraph.register_article", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return existing.ID, nil
}

// NormalizedTitleCache exists only so RegisterArticle can be called
// uniformly; it performs no caching, kept as a no-op hook for callers that
// pre-normalize titles upstream.
func (a *Article) NormalizedTitleCache() {}

func (g *Graph) findMatch(ctx context.Context, tx pgx.Tx, a Article) (*Article, error) {
	if a.DOI != "" {
		if m, err := scanArticle(tx.QueryRow(ctx, articleSelect+" WHERE doi=$1", a.DOI)); err == nil {
			return m, nil
		}
	}
	if a.ArxivID != "" {
		if m, err := scanArticle(tx.QueryRow(ctx, articleSelect+" WHERE arxiv_id=$1", a.ArxivID)); err == nil {
			return m, nil
		}
	}
	if a.Title != "" {
		if m, err := scanArticle(tx.QueryRow(ctx, articleSelect+" WHERE normalized_title=$1", normalizedTitle(a.Title))); err == nil {
			return m, nil
		}
	}
	return nil, nil
}

const articleSelect = `SELECT id, doi, arxiv_id, title, authors, abstract, year, pdf_path, markdown_path, note_path, tags, collection_id, created_at, updated_at FROM articles`

func scanArticle(row pgx.Row) (*Article, error) {
	var a Article
	var doi, arxiv, abstract, pdf, md, note, coll *string
	var year *int
	if err := row.Scan(&a.ID, &doi, &arxiv, &a.Title, &a.Authors, &abstract, &year, &pdf, &md, &note, &a.Tags, &coll, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.DOI = deref(doi)
	a.ArxivID = deref(arxiv)
	a.Abstract = deref(abstract)
	if year != nil {
		a.Year = *year
	}
	a.PDFPath = deref(pdf)
	a.MarkdownPath = deref(md)
	a.NotePath = deref(note)
	a.CollectionID = deref(coll)
	return &a, nil
}

// mergeArticle implements the §4.3 merge rule: non-null incoming scalar
// overwrites null existing; tags are unioned.
func mergeArticle(existing, incoming Article) Article {
	out := existing
	if incoming.DOI != "" {
		out.DOI = incoming.DOI
	}
	if incoming.ArxivID != "" {
		out.ArxivID = incoming.ArxivID
	}
	if incoming.Title != "" {
		out.Title = incoming.Title
	}
	if len(incoming.Authors) > 0 {
		out.Authors = incoming.Authors
	}
	if incoming.Abstract != "" {
		out.Abstract = incoming.Abstract
	}
	if incoming.Year != 0 {
		out.Year = incoming.Year
	}
	if incoming.PDFPath != "" {
		out.PDFPath = incoming.PDFPath
	}
	if incoming.MarkdownPath != "" {
		out.MarkdownPath = incoming.MarkdownPath
	}
	if incoming.NotePath != "" {
		out.NotePath = incoming.NotePath
	}
	if incoming.CollectionID != "" {
		out.CollectionID = incoming.CollectionID
	}
	out.Tags = unionStrings(existing.Tags, incoming.Tags)
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// AddCitations inserts new citation edges for sourceArticleID, attempting
// resolution against existing articles using the same match precedence as
// RegisterArticle. Duplicate (source, target) edges are collapsed by the
// citations_edge_uq index.
func (g *Graph) AddCitations(ctx context.Context, sourceArticleID string, citations []Citation) error {
	for i := range citations {
		c := citations[i]
		c.SourceArticleID = sourceArticleID
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if target, err := g.resolveTarget(ctx, c); err == nil && target != "" {
			c.TargetArticleID = target
		}
		_, err := g.pool.Exec(ctx, `
INSERT INTO citations (id, source_article_id, target_article_id, title, authors, year, doi, arxiv_id, pdf_url, pdf_source, is_open_access, backup_id, raw)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (source_article_id, target_article_id) WHERE target_article_id IS NOT NULL DO NOTHING
`, c.ID, c.SourceArticleID, nullIfEmpty(c.TargetArticleID), nullIfEmpty(c.Title), c.Authors, nullIfZero(c.Year), nullIfEmpty(c.DOI), nullIfEmpty(c.ArxivID), nullIfEmpty(c.PDFURL), nullIfEmpty(c.PDFSource), c.IsOpenAccess, nullIfEmpty(c.BackupID), nullIfEmpty(c.Raw))
		if err != nil {
			return errs.Wrap(errs.IndexWriteFailed, "citegraph.add_citations", err)
		}
		if c.TargetArticleID != "" {
			_ = g.edges.UpsertEdge(ctx, sourceArticleID, relCites, c.TargetArticleID, nil)
		}
	}
	return nil
}

func (g *Graph) resolveTarget(ctx context.Context, c Citation) (string, error) {
	a := Article{DOI: c.DOI, ArxivID: c.ArxivID, Title: c.Title}
	row, err := g.findMatchPool(ctx, a)
	if err != nil || row == nil {
		return "", err
	}
	return row.ID, nil
}

func (g *Graph) findMatchPool(ctx context.Context, a Article) (*Article, error) {
	if a.DOI != "" {
		if m, err := scanArticle(g.pool.QueryRow(ctx, articleSelect+" WHERE doi=$1", a.DOI)); err == nil {
			return m, nil
		}
	}
	if a.ArxivID != "" {
		if m, err := scanArticle(g.pool.QueryRow(ctx, articleSelect+" WHERE arxiv_id=$1", a.ArxivID)); err == nil {
			return m, nil
		}
	}
	if a.Title != "" {
		if m, err := scanArticle(g.pool.QueryRow(ctx, articleSelect+" WHERE normalized_title=$1", normalizedTitle(a.Title))); err == nil {
			return m, nil
		}
	}
	return nil, nil
}

// FindRelated runs a BFS over the CITES edges up to depth (capped at 2 per
// §4.3), limited by a configurable fan-out cap per node.
func (g *Graph) FindRelated(ctx context.Context, articleID string, depth, fanoutCap int) ([]string, error) {
	if depth > 2 {
		depth = 2
	}
	if fanoutCap <= 0 {
		fanoutCap = 20
	}
	seen := map[string]bool{articleID: true}
	frontier := []string{articleID}
	var out []string
	for d := 0; d < depth; d++ {
		var next []string
		for _, id := range frontier {
			neigh, err := g.edges.Neighbors(ctx, id, relCites)
			if err != nil {
				continue
			}
			if len(neigh) > fanoutCap {
				neigh = neigh[:fanoutCap]
			}
			for _, n := range neigh {
				if seen[n] {
					continue
				}
				seen[n] = true
				out = append(out, n)
				next = append(next, n)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
