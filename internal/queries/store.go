// Package queries implements the query store (§4.6): CRUD over named
// ResearchQuery records persisted as individual YAML documents in a
// queries directory, one file per query. Names are filename-sanitized;
// collisions overwrite on explicit update. The query store exclusively
// owns ResearchQuery files (§3.2); the filter only reads them.
//
// Grounded on the teacher's one-document-per-named-entity persistence
// pattern (internal/persistence/databases's file/document CRUD idiom).
package queries

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thoth/internal/thoth/errs"
)

// Query is a §3.1 ResearchQuery record.
type Query struct {
	Name                    string    `yaml:"name"`
	Description             string    `yaml:"description"`
	ResearchQuestion        string    `yaml:"research_question"`
	Keywords                []string  `yaml:"keywords"`
	RequiredTopics          []string  `yaml:"required_topics"`
	PreferredTopics         []string  `yaml:"preferred_topics"`
	ExcludedTopics          []string  `yaml:"excluded_topics"`
	MethodologyPreferences  []string  `yaml:"methodology_preferences"`
	MinimumRelevanceScore   float64   `yaml:"minimum_relevance_score"`
	CreatedAt               time.Time `yaml:"created_at"`
	UpdatedAt               time.Time `yaml:"updated_at"`
}

// Store is a directory of one YAML file per Query, keyed by sanitized name.
type Store struct {
	dir string
}

var nameSanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SanitizeName turns an arbitrary query name into a filename-safe slug.
func SanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nameSanitizeRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "query"
	}
	return s
}

// New opens (creating if absent) a Store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queries.New: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, SanitizeName(name)+".yaml")
}

// Get loads a query by name.
func (s *Store) Get(name string) (Query, error) {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		return Query{}, errs.Wrap(errs.InputInvalid, "queries.get", err)
	}
	var q Query
	if err := yaml.Unmarshal(b, &q); err != nil {
		return Query{}, errs.Wrap(errs.ConfigInvalid, "queries.get", err)
	}
	return q, nil
}

// List loads every stored query, sorted by name.
func (s *Store) List() ([]Query, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("queries.list: %w", err)
	}
	var out []Query
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var q Query
		if err := yaml.Unmarshal(b, &q); err != nil {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put creates or overwrites a query by name (explicit update collisions
// overwrite, per §4.6).
func (s *Store) Put(q Query) error {
	if q.Name == "" {
		return errs.New(errs.InputInvalid, "queries.put", fmt.Errorf("name is required"))
	}
	now := time.Now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	b, err := yaml.Marshal(q)
	if err != nil {
		return fmt.Errorf("queries.put: %w", err)
	}
	return os.WriteFile(s.path(q.Name), b, 0o644)
}

// Delete removes a query by name.
func (s *Store) Delete(name string) error {
	return os.Remove(s.path(name))
}
