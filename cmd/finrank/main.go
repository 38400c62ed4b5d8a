// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/finrank"
	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/ai/openai"
	"github.com/poiesic/finrank/cache"
	"github.com/poiesic/finrank/config"
	"github.com/poiesic/finrank/ingestion"
	"github.com/poiesic/finrank/search"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

// newProvider builds the embedding provider; tests replace it.
var newProvider = func(cfg *ai.Config) (ai.AIProvider, error) {
	return openai.NewProvider(cfg)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "finrank",
		Usage: "Semantic retrieval and reranking over financial filings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"FINRANK_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "finrank.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file loaded before the config",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Index directory (overrides the config file)",
			},
			&cli.BoolFlag{
				Name:  "in-memory",
				Usage: "Keep the index in memory (for experiments)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Chunk, embed and index plain-text filings",
				ArgsUsage: "FILE|DIR...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "company", Usage: "Company for every input file"},
					&cli.StringFlag{Name: "filing-type", Usage: "Filing type, e.g. 10-K"},
					&cli.StringFlag{Name: "fiscal-year", Usage: "Fiscal year label, e.g. FY2024"},
					&cli.StringFlag{Name: "quarter", Usage: "Fiscal quarter label, e.g. Q3"},
					&cli.StringFlag{Name: "manifest", Usage: "YAML list of filings with per-file metadata"},
					&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address while ingesting"},
				},
			},
			{
				Name:      "search",
				Usage:     "Rank indexed chunks against a query",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "company", Usage: "Restrict results to one company"},
					&cli.StringFlag{Name: "filing-type", Usage: "Restrict results to one filing type"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results", Value: 5},
					&cli.BoolFlag{Name: "explain", Usage: "Print each ranking stage"},
					&cli.BoolFlag{Name: "json", Usage: "Print results as JSON"},
				},
			},
			{
				Name:   "fetch",
				Usage:  "List stored chunks for a company without ranking",
				Action: fetchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "company", Usage: "Company to fetch (all companies when empty)"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum chunks", Value: 100},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show chunk counts per company and filing type",
				Action: statsCommand,
			},
			{
				Name:   "clear",
				Usage:  "Remove every indexed chunk",
				Action: clearCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm deletion", Required: true},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every chunk vector with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 64,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 256,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 200 * time.Millisecond,
					},
				},
			},
			{
				Name:      "init-config",
				Usage:     "Write the effective configuration as YAML",
				ArgsUsage: "PATH",
				Action:    initConfigCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadEnvFiles(c.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

// session is an opened engine plus whatever must be closed with it.
type session struct {
	engine  *finrank.Engine
	cfg     *config.Config
	closers []func() error
}

func (s *session) Close() error {
	errs := []error{s.engine.Close()}
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg.AIConfig())
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	opts := []finrank.EngineOption{
		finrank.WithProvider(provider),
		finrank.WithSearchConfig(cfg.SearchConfig()),
		finrank.WithChunkOptions(cfg.ChunkOptions()),
		finrank.WithIngestionOptions(ingestion.WithMinDocumentChars(cfg.Chunker.MinDocumentChars)),
	}
	if cfg.PoolSize > 0 {
		opts = append(opts, finrank.WithPoolSize(cfg.PoolSize))
	}
	if c.Bool("in-memory") {
		opts = append(opts, finrank.WithInMemory())
	}

	resultCache, closeCache, err := buildCache(c.Context, cfg)
	if err != nil {
		provider.Close()
		return nil, err
	}
	if resultCache != nil {
		opts = append(opts, finrank.WithCache(resultCache))
		s.closers = append(s.closers, closeCache)
	}

	s.engine, err = finrank.NewEngine(cfg.DataDir, opts...)
	if err != nil {
		if closeCache != nil {
			closeCache()
		}
		return nil, err
	}
	return s, nil
}

func buildCache(ctx context.Context, cfg *config.Config) (search.ResultCache, func() error, error) {
	switch cfg.Cache.Type {
	case config.CacheMemory:
		mem, err := cache.NewMemory(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		if err != nil {
			return nil, nil, err
		}
		return mem, func() error { mem.Close(); return nil }, nil
	case config.CacheRedis:
		r := cfg.Cache.Redis
		client, err := cache.DialRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", r.Addr, err)
		}
		return cache.NewRedis(client, r.Prefix, cfg.Cache.TTL), closeRedis(client), nil
	}
	return nil, nil, nil
}

func closeRedis(client *redis.Client) func() error {
	return func() error { return client.Close() }
}

// serveMetrics exposes the engine's collectors until the returned stop
// function is called.
func serveMetrics(addr string, engine *finrank.Engine) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", engine.Metrics().Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt)
}
