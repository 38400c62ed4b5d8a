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


// Package config loads finrank settings from a YAML file, an optional .env
// file and FINRANK_* environment variables, in increasing precedence.
//
// A missing config file is not an error: defaults apply.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/chunker"
	"github.com/poiesic/finrank/search"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// EmbedderConfig configures the OpenAI-compatible embedding service.
type EmbedderConfig struct {
	Host              string  `yaml:"host"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ChunkerConfig configures document splitting.
type ChunkerConfig struct {
	WindowWords      int `yaml:"window_words"`
	OverlapWords     int `yaml:"overlap_words"`
	MinChunkChars    int `yaml:"min_chunk_chars"`
	MinDocumentChars int `yaml:"min_document_chars"`
}

// SearchConfig mirrors search.Config.
type SearchConfig struct {
	YearBoost       float64       `yaml:"year_boost"`
	RecencyBoost    float64       `yaml:"recency_boost"`
	RecencyDecay    float64       `yaml:"recency_decay"`
	OverFetchFactor int           `yaml:"over_fetch_factor"`
	DefaultResults  int           `yaml:"default_results"`
	BulkFetchLimit  int           `yaml:"bulk_fetch_limit"`
	EmbedTimeout    time.Duration `yaml:"embed_timeout"`
	IndexTimeout    time.Duration `yaml:"index_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
}

// RedisConfig locates a shared redis for the result cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig selects the search result cache.
type CacheConfig struct {
	Type       string        `yaml:"type"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int64         `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// Config is the root application configuration.
type Config struct {
	DataDir     string         `yaml:"data_dir"`
	MetricsAddr string         `yaml:"metrics_addr"`
	PoolSize    int            `yaml:"pool_size"`
	Embedder    EmbedderConfig `yaml:"embedder"`
	Chunker     ChunkerConfig  `yaml:"chunker"`
	Search      SearchConfig   `yaml:"search"`
	Cache       CacheConfig    `yaml:"cache"`
}

// Default returns the stock configuration.
func Default() *Config {
	aiCfg := ai.DefaultConfig()
	chunkOpts := chunker.DefaultOptions()
	s := search.DefaultConfig()
	return &Config{
		DataDir: "finrank-data",
		Embedder: EmbedderConfig{
			Host:      aiCfg.EmbeddingHost,
			Model:     aiCfg.EmbeddingModel,
			APIKeyEnv: "OPENAI_API_KEY",
			BatchSize: aiCfg.BatchSize,
		},
		Chunker: ChunkerConfig{
			WindowWords:      chunkOpts.WindowWords,
			OverlapWords:     chunkOpts.OverlapWords,
			MinChunkChars:    chunkOpts.MinChunkChars,
			MinDocumentChars: 100,
		},
		Search: SearchConfig{
			YearBoost:       s.YearBoost,
			RecencyBoost:    s.RecencyBoost,
			RecencyDecay:    s.RecencyDecay,
			OverFetchFactor: s.OverFetchFactor,
			DefaultResults:  s.DefaultResults,
			BulkFetchLimit:  s.BulkFetchLimit,
			EmbedTimeout:    s.EmbedTimeout,
			IndexTimeout:    s.IndexTimeout,
			MaxAttempts:     s.MaxAttempts,
			RetryBaseDelay:  s.RetryBaseDelay,
		},
		Cache: CacheConfig{
			Type:       CacheMemory,
			TTL:        5 * time.Minute,
			MaxEntries: 1000,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("FINRANK_DATA_DIR", &c.DataDir)
	setString("FINRANK_METRICS_ADDR", &c.MetricsAddr)
	setString("FINRANK_EMBEDDING_HOST", &c.Embedder.Host)
	setString("FINRANK_EMBEDDING_MODEL", &c.Embedder.Model)
	setString("FINRANK_CACHE", &c.Cache.Type)
	setString("FINRANK_REDIS_ADDR", &c.Cache.Redis.Addr)
	setString("FINRANK_REDIS_PASSWORD", &c.Cache.Redis.Password)

	if v := os.Getenv("FINRANK_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FINRANK_POOL_SIZE: %w", err)
		}
		c.PoolSize = n
	}
	return nil
}

// Validate checks values that cannot be corrected later.
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return errors.New("config: cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("config: unknown cache type %q", c.Cache.Type)
	}
	if err := c.ChunkOptions().Validate(); err != nil {
		return err
	}
	if err := c.SearchConfig().Validate(); err != nil {
		return err
	}
	return c.AIConfig().Validate()
}

// APIKey resolves the embedding API key from the configured variable.
func (c *Config) APIKey() string {
	if c.Embedder.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Embedder.APIKeyEnv)
}

// AIConfig converts the embedder section.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithHost(c.Embedder.Host),
		ai.WithEmbeddingModel(c.Embedder.Model),
		ai.WithAPIKey(c.APIKey()),
		ai.WithBatchSize(c.Embedder.BatchSize),
		ai.WithRateLimit(c.Embedder.RequestsPerSecond, c.Embedder.Burst),
	)
}

// ChunkOptions converts the chunker section.
func (c *Config) ChunkOptions() chunker.Options {
	return chunker.Options{
		WindowWords:   c.Chunker.WindowWords,
		OverlapWords:  c.Chunker.OverlapWords,
		MinChunkChars: c.Chunker.MinChunkChars,
	}
}

// SearchConfig converts the search section.
func (c *Config) SearchConfig() search.Config {
	s := c.Search
	return search.Config{
		YearBoost:       s.YearBoost,
		RecencyBoost:    s.RecencyBoost,
		RecencyDecay:    s.RecencyDecay,
		OverFetchFactor: s.OverFetchFactor,
		DefaultResults:  s.DefaultResults,
		BulkFetchLimit:  s.BulkFetchLimit,
		EmbedTimeout:    s.EmbedTimeout,
		IndexTimeout:    s.IndexTimeout,
		MaxAttempts:     s.MaxAttempts,
		RetryBaseDelay:  s.RetryBaseDelay,
	}
}
