package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/poiesic/finrank/config"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/reembed"
	"github.com/poiesic/finrank/search"
	"github.com/urfave/cli/v2"
)

func ingestCommand(c *cli.Context) error {
	var filings []filing
	if path := c.String("manifest"); path != "" {
		m, err := loadManifest(path)
		if err != nil {
			return err
		}
		filings = append(filings, m...)
	}

	files, err := expandPaths(c.Args().Slice())
	if err != nil {
		return err
	}
	for _, f := range files {
		filings = append(filings, filing{
			Filepath:   f,
			Company:    c.String("company"),
			FilingType: c.String("filing-type"),
			FiscalYear: c.String("fiscal-year"),
			Quarter:    c.String("quarter"),
		})
	}
	if len(filings) == 0 {
		return errors.New("nothing to ingest: pass files, directories or --manifest")
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	addr := c.String("metrics-addr")
	if addr == "" {
		addr = s.cfg.MetricsAddr
	}
	if addr != "" {
		stop := serveMetrics(addr, s.engine)
		defer stop()
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	docs, problems := readDocuments(filings)
	summary := s.engine.IngestAll(ctx, docs)

	out := c.App.Writer
	fmt.Fprintf(out, "Processed %d files, added %d chunks\n", summary.DocumentsProcessed, summary.ChunksAdded)
	for _, p := range problems {
		fmt.Fprintf(out, "  error: %v\n", p)
	}
	for _, e := range summary.Errors {
		fmt.Fprintf(out, "  error: %v\n", e)
	}

	if len(problems) > 0 || len(summary.Errors) > 0 {
		return fmt.Errorf("%d of %d filings failed", len(problems)+len(summary.Errors), len(filings))
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	q := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if q == "" {
		return errors.New("a query is required")
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(c)
	defer cancel()

	opts := []search.SearchOption{search.WithLimit(c.Int("limit"))}
	if company := c.String("company"); company != "" {
		opts = append(opts, search.WithCompany(company))
	}
	if filingType := c.String("filing-type"); filingType != "" {
		opts = append(opts, search.WithFilingType(filingType))
	}

	var monitor search.SearchMonitor
	if c.Bool("explain") {
		monitor = &explainMonitor{w: c.App.ErrWriter}
	}

	results, err := s.engine.SearchWithMonitor(ctx, q, monitor, opts...)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(c.App.Writer, results)
	return nil
}

func printResults(w io.Writer, results []*core.Result) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, r := range results {
		period := r.FiscalYear
		if r.Quarter != "" {
			period += " " + r.Quarter
		}
		fmt.Fprintf(w, "%d: [%0.4f] %s %s %s (%s)\n", i+1, r.Similarity, r.Company, r.FilingType, period, r.Source)
		fmt.Fprintf(w, "   %s\n", snippet(r.Content, 160))
	}
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}

func fetchCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	chunks, err := s.engine.BulkFetch(c.Context, c.String("company"), c.Int("limit"))
	if err != nil {
		return err
	}
	out := c.App.Writer
	fmt.Fprintf(out, "%d chunks\n", len(chunks))
	for _, ch := range chunks {
		fmt.Fprintf(out, "%s  %s  %s\n", ch.ID, ch.Metadata.FiscalYear, snippet(ch.Text, 80))
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.engine.Stats(c.Context)
	if err != nil {
		return err
	}
	out := c.App.Writer
	fmt.Fprintf(out, "Total chunks: %d\n", stats.Total)
	printCounts(out, "Companies", stats.Companies)
	printCounts(out, "Filing types", stats.FilingTypes)
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	fmt.Fprintf(w, "%s:\n", title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-24s %d\n", k, counts[k])
	}
}

func clearCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.ClearAll(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Index cleared")
	return nil
}

func reembedCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(c)
	defer cancel()

	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Timeout:        s.cfg.Search.EmbedTimeout,
	}
	n, err := s.engine.Reembed(ctx, cfg, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reembedding stopped after %d chunks: %w", n, err)
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d chunks\n", n)
	return nil
}

func initConfigCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("an output path is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
