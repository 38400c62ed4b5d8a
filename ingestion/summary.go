package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/finrank/core"
)

// DocumentError records why one document failed during IngestAll.
type DocumentError struct {
	SourceFile string
	Company    string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.SourceFile, e.Company, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Summary reports the outcome of IngestAll.
type Summary struct {
	DocumentsProcessed int
	ChunksAdded        int
	Errors             []*DocumentError
}

// Err joins every document error, or returns nil when all succeeded.
func (s *Summary) Err() error {
	errs := make([]error, len(s.Errors))
	for i, e := range s.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// IngestAll ingests docs concurrently on the worker pool. A failing
// document is recorded in the summary and never stops the others.
// DocumentsProcessed counts documents that completed without error,
// including skipped short documents.
func (i *Ingestor) IngestAll(ctx context.Context, docs []core.Document) *Summary {
	summary := &Summary{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(doc core.Document, n int, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.ChunksAdded += n
		if err != nil {
			summary.Errors = append(summary.Errors, &DocumentError{
				SourceFile: doc.SourceFile,
				Company:    doc.Company,
				Err:        err,
			})
			return
		}
		summary.DocumentsProcessed++
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			record(doc, 0, err)
			continue
		}
		wg.Add(1)
		err := i.pool.Submit(func() {
			defer wg.Done()
			n, err := i.Ingest(ctx, doc)
			record(doc, n, err)
		})
		if err != nil {
			wg.Done()
			record(doc, 0, fmt.Errorf("submit to worker pool: %w", err))
		}
	}
	wg.Wait()

	i.logger.Info("ingestion run complete",
		"documents", summary.DocumentsProcessed,
		"chunks", summary.ChunksAdded,
		"errors", len(summary.Errors))
	return summary
}
