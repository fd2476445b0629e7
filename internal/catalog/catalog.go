// Package catalog caches the list of models offered by the configured
// backend.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/models"
)

// DefaultTTL is how long a fetched model list is served before refetching.
const DefaultTTL = time.Hour

const cacheFileName = "models.json"

// Catalog serves a backend's model list from a TTL cache. When a cache
// directory is configured the list also survives process restarts, which
// matters for short-lived CLI invocations.
type Catalog struct {
	lister execution.ModelLister
	ttl    time.Duration
	dir    string
	now    func() time.Time

	mu        sync.Mutex
	models    []models.ModelInfo
	fetchedAt time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheDir persists the cached list under dir.
func WithCacheDir(dir string) Option {
	return func(c *Catalog) {
		c.dir = dir
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// New creates a Catalog over lister.
func New(lister execution.ModelLister, opts ...Option) *Catalog {
	c := &Catalog{
		lister: lister,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheFile is the on-disk form of the cache.
type cacheFile struct {
	FetchedAt time.Time          `json:"fetchedAt"`
	Models    []models.ModelInfo `json:"models"`
}

// ListModels returns the cached list, fetching it when the cache is empty,
// expired, or forceRefresh is set. A failed fetch is returned as an error
// and leaves the previous cache in place.
func (c *Catalog) ListModels(ctx context.Context, forceRefresh bool) ([]models.ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh {
		if c.models == nil {
			c.loadFromDisk()
		}
		if c.models != nil && c.now().Sub(c.fetchedAt) < c.ttl {
			return slices.Clone(c.models), nil
		}
	}

	fetched, err := c.lister.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	if fetched == nil {
		fetched = []models.ModelInfo{}
	}

	c.models = fetched
	c.fetchedAt = c.now()
	c.saveToDisk()

	return slices.Clone(c.models), nil
}

// loadFromDisk fills the in-memory cache from the cache file. A missing or
// unreadable file is a cache miss. The caller holds c.mu.
func (c *Catalog) loadFromDisk() {
	if c.dir == "" {
		return
	}

	data, err := os.ReadFile(filepath.Join(c.dir, cacheFileName))
	if err != nil {
		return
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.Models == nil {
		return
	}
	c.models = cf.Models
	c.fetchedAt = cf.FetchedAt
}

// saveToDisk writes the cache file. Failures only cost a refetch later, so
// they are logged. The caller holds c.mu.
func (c *Catalog) saveToDisk() {
	if c.dir == "" {
		return
	}

	data, err := json.MarshalIndent(cacheFile{FetchedAt: c.fetchedAt, Models: c.models}, "", "  ")
	if err != nil {
		slog.Warn("failed to encode model cache", "error", err)
		return
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		slog.Warn("failed to create model cache directory", "path", c.dir, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, cacheFileName), data, 0644); err != nil {
		slog.Warn("failed to write model cache", "path", c.dir, "error", err)
	}
}

// StaticModels is a ModelLister over a fixed list, for backends that
// cannot enumerate their models.
type StaticModels []models.ModelInfo

// ListModels implements execution.ModelLister.
func (s StaticModels) ListModels(context.Context) ([]models.ModelInfo, error) {
	return slices.Clone(s), nil
}

// StaticModelsFromIDs builds a StaticModels list from bare model ids.
func StaticModelsFromIDs(ids []string) StaticModels {
	list := make(StaticModels, 0, len(ids))
	for _, id := range ids {
		list = append(list, models.ModelInfo{ID: id})
	}
	return list
}
