package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"

	"thoth/internal/thoth/errs"
)

// Converted holds the two markdown variants step 2 of the DAG produces.
type Converted struct {
	Markdown         string
	MarkdownNoImages string
}

// Convert turns a PDF or HTML document at path into markdown, grounded on
// bbiangul-go-reason/parser/pdf.go's page-by-page text extraction (native
// PDF path) and the teacher's go-readability + html-to-markdown stack
// (HTML path, used for scraped landing pages and preprint abstracts).
// The step is long-running and depends only on the file's content. Its
// result is not cached: every Run that reaches step 2 converts the file
// again, and cacheKey below has no caller.
func Convert(ctx context.Context, path string) (Converted, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return convertPDF(path)
	case ".html", ".htm":
		return convertHTML(ctx, path)
	default:
		return Converted{}, errs.New(errs.InputInvalid, "ingest.convert", fmt.Errorf("unsupported extension %q", filepath.Ext(path)))
	}
}

func convertPDF(path string) (Converted, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Converted{}, errs.New(errs.OCRFailed, "ingest.convert.pdf.open", err)
	}
	defer f.Close()

	var withImages, withoutImages strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable page rather than fail the whole document
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		withoutImages.WriteString(text)
		withoutImages.WriteString("\n\n")

		withImages.WriteString(text)
		if n := countPageImages(page); n > 0 {
			for k := 0; k < n; k++ {
				fmt.Fprintf(&withImages, "\n\n![figure](page-%d-figure-%d.png)", i, k+1)
			}
		}
		withImages.WriteString("\n\n")
	}

	if withoutImages.Len() == 0 {
		return Converted{}, errs.New(errs.OCRFailed, "ingest.convert.pdf", fmt.Errorf("no extractable text in %s", path))
	}
	return Converted{
		Markdown:         strings.TrimSpace(withImages.String()),
		MarkdownNoImages: strings.TrimSpace(withoutImages.String()),
	}, nil
}

// countPageImages does a best-effort count of raster XObjects referenced
// by a page's resource dictionary, used only to decide whether to emit an
// image placeholder in the image-bearing markdown variant.
func countPageImages(page pdf.Page) int {
	res := page.Resources()
	if res.IsNull() {
		return 0
	}
	xobj := res.Key("XObject")
	if xobj.IsNull() {
		return 0
	}
	count := 0
	for _, key := range xobj.Keys() {
		obj := xobj.Key(key)
		if obj.Key("Subtype").Name() == "Image" {
			count++
		}
	}
	return count
}

func convertHTML(ctx context.Context, path string) (Converted, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Converted{}, errs.New(errs.OCRFailed, "ingest.convert.html.read", err)
	}
	article, err := readability.FromReader(strings.NewReader(string(raw)), nil)
	if err != nil {
		return Converted{}, errs.New(errs.OCRFailed, "ingest.convert.html.readability", err)
	}
	out, err := md.ConvertString(article.Content)
	if err != nil {
		return Converted{}, errs.New(errs.OCRFailed, "ingest.convert.html.markdown", err)
	}
	noImages := stripImageMarkdown(out)
	return Converted{Markdown: out, MarkdownNoImages: noImages}, nil
}

func stripImageMarkdown(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "![") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// cacheKey is the OCR result cache key: the content fingerprint plus a
// version tag, so a format change invalidates old cache entries.
func cacheKey(fingerprint string) string {
	return "ocr:v1:" + fingerprint
}
