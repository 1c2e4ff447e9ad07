package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"thoth/internal/citegraph"
	"thoth/internal/config"
	"thoth/internal/thoth/errs"
)

// noteTemplate renders the templated markdown note §4.2 step 7 produces,
// combining the analysis record and the (enhanced) citation list.
const noteTemplate = `# %s

**Article ID:** %s
%s

## Summary

%s

## Citations

%s
`

// RenderNote builds the note body for an article.
func RenderNote(a citegraph.Article, analysis AnalysisRecord, citations []citegraph.Citation) string {
	var meta strings.Builder
	if a.DOI != "" {
		fmt.Fprintf(&meta, "**DOI:** %s  \n", a.DOI)
	}
	if a.ArxivID != "" {
		fmt.Fprintf(&meta, "**arXiv:** %s  \n", a.ArxivID)
	}
	if len(a.Authors) > 0 {
		fmt.Fprintf(&meta, "**Authors:** %s  \n", strings.Join(a.Authors, ", "))
	}

	summary := ""
	if v, ok := analysis.Fields["summary"].(string); ok {
		summary = v
	}
	if analysis.Failed {
		summary = "_Analysis failed; see markdown for the raw source text._"
	}

	var cites strings.Builder
	if len(citations) == 0 {
		cites.WriteString("_No citations extracted._\n")
	}
	for i, c := range citations {
		fmt.Fprintf(&cites, "%d. %s", i+1, c.Title)
		if len(c.Authors) > 0 {
			fmt.Fprintf(&cites, " — %s", strings.Join(c.Authors, ", "))
		}
		if c.Year > 0 {
			fmt.Fprintf(&cites, " (%d)", c.Year)
		}
		if c.DOI != "" {
			fmt.Fprintf(&cites, " doi:%s", c.DOI)
		}
		cites.WriteString("\n")
	}

	return fmt.Sprintf(noteTemplate, a.Title, a.ID, meta.String(), summary, cites.String())
}

// Colocate writes the note alongside the original PDF and markdown so the
// three artifacts live in the same directory, then moves the source PDF
// to that directory if it isn't already there (§4.2 step 7).
func Colocate(pdfPath, markdown, note string) (pdfOut, markdownOut, noteOut string, err error) {
	dir := filepath.Dir(pdfPath)
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))

	markdownOut = filepath.Join(dir, base+".md")
	noteOut = filepath.Join(dir, base+".note.md")

	if err = os.WriteFile(markdownOut, []byte(markdown), 0o644); err != nil {
		return "", "", "", errs.New(errs.IndexWriteFailed, "ingest.colocate.markdown", err)
	}
	if err = os.WriteFile(noteOut, []byte(note), 0o644); err != nil {
		return "", "", "", errs.New(errs.IndexWriteFailed, "ingest.colocate.note", err)
	}
	return pdfPath, markdownOut, noteOut, nil
}

// Archiver optionally uploads the colocated artifacts to object storage,
// grounded on the teacher's internal/objectstore/s3.go client
// construction, wired directly here since the archival path has no
// Thoth-specific entity of its own to own a wrapper type.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver constructs an Archiver, or nil if archival is disabled.
func NewArchiver(ctx context.Context, cfg config.IngestConfig) (*Archiver, error) {
	if !cfg.ArchiveToS3 {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		return nil, errs.New(errs.ConfigInvalid, "ingest.archiver", err)
	}
	return &Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3.Bucket,
		prefix: cfg.S3.Prefix,
	}, nil
}

// Archive uploads pdfPath, markdownPath, and notePath under the
// configured prefix, keyed by the id the caller passes as fingerprint
// (the pipeline passes the article ID).
func (a *Archiver) Archive(ctx context.Context, fingerprint string, pdfPath, markdownPath, notePath string) error {
	if a == nil {
		return nil
	}
	for _, p := range []string{pdfPath, markdownPath, notePath} {
		if err := a.put(ctx, fingerprint, p); err != nil {
			return errs.New(errs.IndexWriteFailed, "ingest.archive", err)
		}
	}
	return nil
}

func (a *Archiver) put(ctx context.Context, fingerprint, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := fmt.Sprintf("%s%s/%s", a.prefix, fingerprint, filepath.Base(path))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}
