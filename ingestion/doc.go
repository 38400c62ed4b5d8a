// Package ingestion turns source documents into indexed chunks.
//
// For each document the Ingestor splits the text into word windows, assigns
// every window a deterministic id, embeds the windows in batches and
// upserts each batch into the chunk repository. Re-ingesting a document
// overwrites its chunks in place.
//
// Every embed and upsert call runs under its own timeout and is retried with
// exponential backoff. A failed batch stops the document; batches already
// written stay in the index until the document is ingested again.
//
//	ing, err := ingestion.NewIngestor(repo, provider.Embedder())
//	if err != nil {
//	    return err
//	}
//	defer ing.Release()
//
//	n, err := ing.Ingest(ctx, core.Document{Company: "ACME", SourceFile: "10k_2024.txt", Text: text})
//
// IngestAll processes many documents concurrently on a bounded worker pool
// and reports a Summary instead of stopping at the first failure.
package ingestion
