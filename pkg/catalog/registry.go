package catalog

import (
	"sync"

	"github.com/dukex/dealflow/pkg/template"
	"golang.org/x/sync/singleflight"
)

// Registry memoizes catalogs of stored template versions by checksum.
// Versions are immutable, so entries never expire.
type Registry struct {
	group singleflight.Group

	mu       sync.RWMutex
	catalogs map[string]*Catalog
}

func NewRegistry() *Registry {
	return &Registry{catalogs: make(map[string]*Catalog)}
}

// Get returns the catalog for checksum, parsing source on first use.
func (r *Registry) Get(checksum string, source []byte) (*Catalog, error) {
	r.mu.RLock()
	catalog, ok := r.catalogs[checksum]
	r.mu.RUnlock()

	if ok {
		return catalog, nil
	}

	result, err, _ := r.group.Do(checksum, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.catalogs[checksum]
		r.mu.RUnlock()

		if ok {
			return cached, nil
		}

		tmpl, err := template.Parse(source)
		if err != nil {
			return nil, err
		}

		catalog, err := Build(tmpl)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.catalogs[checksum] = catalog
		r.mu.Unlock()

		return catalog, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Catalog), nil
}

// Put registers an already built catalog.
func (r *Registry) Put(checksum string, catalog *Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.catalogs[checksum]; !exists {
		r.catalogs[checksum] = catalog
	}
}
