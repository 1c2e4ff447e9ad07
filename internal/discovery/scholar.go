// Package discovery implements the optional Google Scholar scraper backend
// (§6.2): runs a research query's question through Scholar's search results
// page and turns each hit into filter.Metadata candidates for the article
// filter (§4.6) to score.
//
// Grounded on the teacher's internal/web/web.go chromedp usage
// (headless exec allocator, WaitVisible/Nodes result scraping); the result
// DOM selectors target Scholar's result markup instead of DuckDuckGo's.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"thoth/internal/config"
	"thoth/internal/filter"
	"thoth/internal/thoth/errs"
)

// ScholarScraper scrapes Google Scholar search results via a headless (or
// remote) Chrome instance.
type ScholarScraper struct {
	remoteURL string // optional chromedp remote allocator endpoint
	timeout   time.Duration
	maxResults int
}

// NewScholarScraper constructs a scraper from configuration. A nil return
// means the scraper is disabled.
func NewScholarScraper(cfg config.DiscoveryConfig) *ScholarScraper {
	if !cfg.Enabled {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	max := cfg.MaxResultsPerQuery
	if max <= 0 {
		max = 10
	}
	return &ScholarScraper{remoteURL: cfg.ChromeRemoteURL, timeout: timeout, maxResults: max}
}

// Search runs query against Google Scholar and returns one filter.Metadata
// candidate per result, in result order.
func (s *ScholarScraper) Search(ctx context.Context, query string) ([]filter.Metadata, error) {
	allocCtx, cancel := s.allocator(ctx)
	defer cancel()

	cctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	cctx, cancel = context.WithTimeout(cctx, s.timeout)
	defer cancel()

	searchURL := "https://scholar.google.com/scholar?q=" + queryEscape(query)

	var titleNodes, snippetNodes, linkNodes []*cdp.Node
	err := chromedp.Run(cctx,
		chromedp.Navigate(searchURL),
		chromedp.WaitVisible(`#gs_res_ccl_mid`, chromedp.ByQuery),
		chromedp.Nodes(`.gs_rt a`, &titleNodes, chromedp.ByQueryAll),
		chromedp.Nodes(`.gs_rt a`, &linkNodes, chromedp.ByQueryAll),
		chromedp.Nodes(`.gs_rs`, &snippetNodes, chromedp.ByQueryAll),
	)
	if err != nil {
		return nil, errs.New(errs.ExternalEnhancementFailed, "discovery.scholar_search", err)
	}

	n := len(titleNodes)
	if len(snippetNodes) < n {
		n = len(snippetNodes)
	}
	if n > s.maxResults {
		n = s.maxResults
	}

	out := make([]filter.Metadata, 0, n)
	for i := 0; i < n; i++ {
		title := nodeText(titleNodes[i])
		href := nodeAttr(linkNodes[i], "href")
		abstract := nodeText(snippetNodes[i])
		if title == "" {
			continue
		}
		out = append(out, filter.Metadata{Title: title, Abstract: abstract, PDFURL: href})
	}
	return out, nil
}

func (s *ScholarScraper) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.remoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, s.remoteURL)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	return chromedp.NewExecAllocator(ctx, opts...)
}

func nodeText(n *cdp.Node) string {
	if n == nil || len(n.Children) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range n.Children {
		if c.NodeType == cdp.NodeTypeText {
			sb.WriteString(c.NodeValue)
		}
	}
	return strings.TrimSpace(sb.String())
}

func nodeAttr(n *cdp.Node, key string) string {
	if n == nil {
		return ""
	}
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		if n.Attributes[i] == key {
			return n.Attributes[i+1]
		}
	}
	return ""
}

func queryEscape(q string) string {
	return strings.ReplaceAll(strings.TrimSpace(q), " ", "+")
}

// Discover runs every stored query's research question through the
// scraper and scores each hit with the filter, returning the candidates
// that matched at least one query.
func Discover(ctx context.Context, scraper *ScholarScraper, f *filter.Filter, questions map[string]string) ([]filter.Metadata, error) {
	if scraper == nil {
		return nil, nil
	}
	var matched []filter.Metadata
	for name, question := range questions {
		candidates, err := scraper.Search(ctx, question)
		if err != nil {
			return matched, fmt.Errorf("discovery.discover: query %q: %w", name, err)
		}
		for _, c := range candidates {
			fingerprint := fingerprintURL(c.PDFURL)
			res, err := f.ProcessArticle(ctx, fingerprint, c)
			if err != nil {
				continue
			}
			if res.Decision == "download" {
				matched = append(matched, c)
			}
		}
	}
	return matched, nil
}

func fingerprintURL(url string) string {
	return "scholar:" + url
}
