package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/dealflow/pkg/template"
	"golang.org/x/sync/singleflight"
)

const cacheKey = "catalog"

// Entry is one loaded template source with its parsed and indexed forms.
type Entry struct {
	Fingerprint string
	Source      []byte
	Template    *template.WorkflowTemplate
	Catalog     *Catalog
}

// Cache memoizes the catalog built from a Source. Concurrent callers share a
// single in-flight load, and a load only reparses when the fingerprint changed.
type Cache struct {
	source Source
	logger *slog.Logger
	group  singleflight.Group

	mu    sync.RWMutex
	entry *Entry
}

func NewCache(source Source, logger *slog.Logger) *Cache {
	return &Cache{
		source: source,
		logger: logger.With("module", "catalog_cache"),
	}
}

// Get returns the catalog for the current source, reloading it when the
// source fingerprint differs from the cached one.
func (c *Cache) Get(ctx context.Context) (*Entry, error) {
	result, err, _ := c.group.Do(cacheKey, func() (any, error) {
		return c.load(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Entry), nil
}

// Current returns the last loaded entry without touching the source. It is
// nil before the first successful Get.
func (c *Cache) Current() *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entry
}

// Clear drops the cached entry; the next Get reloads.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entry = nil
}

func (c *Cache) load(ctx context.Context) (*Entry, error) {
	fingerprint, err := c.source.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}

	if cached := c.Current(); cached != nil && cached.Fingerprint == fingerprint {
		return cached, nil
	}

	source, err := c.source.Read(ctx)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.Parse(source)
	if err != nil {
		return nil, err
	}

	catalog, err := Build(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	for _, warning := range catalog.Warnings() {
		c.logger.WarnContext(ctx, "Workflow template warning", "workflow_id", tmpl.Workflow.ID, "warning", warning)
	}

	entry := &Entry{
		Fingerprint: fingerprint,
		Source:      source,
		Template:    tmpl,
		Catalog:     catalog,
	}

	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Workflow catalog loaded", "workflow_id", tmpl.Workflow.ID, "fingerprint", fingerprint)

	return entry, nil
}
