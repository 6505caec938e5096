package docsource

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/retrieval"
)

type Indexer interface {
	Ingest(ctx context.Context, p retrieval.AddParams) ([]string, error)
}

type IngestOptions struct {
	Scope   string
	DocType string
	// ContinueOnError skips documents that fail instead of aborting the run.
	ContinueOnError bool
}

type IngestReport struct {
	Documents int
	Chunks    int
	Skipped   int
	Failed    []string
}

// Ingest walks src and indexes every document into idx under opts.Scope.
func Ingest(ctx context.Context, src Source, idx Indexer, opts IngestOptions) (*IngestReport, error) {
	if opts.Scope == "" {
		return nil, fmt.Errorf("ingest scope is required")
	}
	logger := logutil.GetLogger(ctx).With(zap.String("source", src.Type()), zap.String("scope", opts.Scope))
	report := &IngestReport{}
	err := src.Walk(ctx, func(doc *Document) error {
		ex := ExtractMarkdown(doc.Key, doc.Body)
		if ex.Content == "" {
			report.Skipped++
			logger.Debug("skip empty document", zap.String("key", doc.Key))
			return nil
		}
		url := doc.URL
		if url == "" {
			url = doc.Key
		}
		ids, err := idx.Ingest(ctx, retrieval.AddParams{
			Title:    ex.Title,
			Content:  ex.Content,
			URL:      url,
			Scope:    opts.Scope,
			DocType:  opts.DocType,
			Metadata: map[string]interface{}{"source": src.Type(), "source_key": doc.Key},
		})
		if err != nil {
			if !opts.ContinueOnError {
				return fmt.Errorf("ingest %s: %w", doc.Key, err)
			}
			logger.Error("ingest document failed", zap.String("key", doc.Key), zap.Error(err))
			report.Failed = append(report.Failed, doc.Key)
			return nil
		}
		report.Documents++
		report.Chunks += len(ids)
		return nil
	})
	logger.Info("ingest finished",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failed)),
	)
	return report, err
}
