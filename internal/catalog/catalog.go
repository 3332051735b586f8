// Package catalog holds the immutable source catalog loaded at startup.
package catalog

import (
	"fmt"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// Catalog is a static list of source descriptors. It is built once and
// never mutated by the pipeline.
type Catalog struct {
	sources []regwatch.SourceDescriptor
	byID    map[string]regwatch.SourceDescriptor
}

// New builds a Catalog, rejecting duplicate source ids.
func New(sources []regwatch.SourceDescriptor) (*Catalog, error) {
	byID := make(map[string]regwatch.SourceDescriptor, len(sources))
	owned := make([]regwatch.SourceDescriptor, len(sources))
	copy(owned, sources)
	for _, src := range owned {
		if _, exists := byID[src.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		byID[src.ID] = src
	}
	return &Catalog{sources: owned, byID: byID}, nil
}

// All returns a copy of every descriptor in catalog order.
func (c *Catalog) All() []regwatch.SourceDescriptor {
	out := make([]regwatch.SourceDescriptor, len(c.sources))
	copy(out, c.sources)
	return out
}

// Get returns the descriptor for id.
func (c *Catalog) Get(id string) (regwatch.SourceDescriptor, bool) {
	src, ok := c.byID[id]
	return src, ok
}

// Select returns descriptors for the requested ids, or the full catalog
// when ids is empty. An unknown id is an error.
func (c *Catalog) Select(ids []string) ([]regwatch.SourceDescriptor, error) {
	if len(ids) == 0 {
		return c.All(), nil
	}
	out := make([]regwatch.SourceDescriptor, 0, len(ids))
	for _, id := range ids {
		src, ok := c.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown source id %q", id)
		}
		out = append(out, src)
	}
	return out, nil
}

// Len reports the catalog size.
func (c *Catalog) Len() int {
	return len(c.sources)
}
