package citegraph

import (
	"context"
	"fmt"
	"strings"
)

// Style selects a bibliography formatting convention for ExportBibliography.
type Style string

const (
	StyleIEEE    Style = "ieee"
	StyleAPA     Style = "apa"
	StyleMLA     Style = "mla"
	StyleChicago Style = "chicago"
	StyleHarvard Style = "harvard"
)

// ExportBibliography formats the articles matching query (a substring
// match over title, grounded on articleSelect's table shape) in the given
// style. This is pure string formatting over stored records — no external
// dependency, since no pack example carries a citation-formatting library
// and the styles are simple enough to hand-format.
func (g *Graph) ExportBibliography(ctx context.Context, query string, style Style) ([]string, error) {
	rows, err := g.pool.Query(ctx, articleSelect+` WHERE title ILIKE $1 ORDER BY COALESCE(year,0) DESC, title`, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("citegraph.export_bibliography: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, formatEntry(*a, style))
	}
	return out, rows.Err()
}

func formatEntry(a Article, style Style) string {
	authors := strings.Join(a.Authors, ", ")
	switch style {
	case StyleIEEE:
		return fmt.Sprintf("%s, \"%s,\" %d.", authors, a.Title, a.Year)
	case StyleAPA:
		return fmt.Sprintf("%s (%d). %s.", authors, a.Year, a.Title)
	case StyleMLA:
		return fmt.Sprintf("%s. \"%s.\" %d.", authors, a.Title, a.Year)
	case StyleChicago:
		return fmt.Sprintf("%s. \"%s.\" %d.", authors, a.Title, a.Year)
	case StyleHarvard:
		return fmt.Sprintf("%s, %d. %s.", authors, a.Year, a.Title)
	default:
		return fmt.Sprintf("%s. %s (%d).", authors, a.Title, a.Year)
	}
}
