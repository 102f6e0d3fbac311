package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a behavior with its slots declared and a fresh id.
type Factory func() Plugin

// KindInfo describes a registered behavior kind.
type KindInfo struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Inputs  int    `json:"inputs"`
	Outputs int    `json:"outputs"`
}

// Catalog maps kinds to factories. It is what the store uses to rebuild
// behaviors by kind and what Duplicate uses to build copies.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under kind.
func (c *Catalog) Register(kind string, f Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	c.factories[kind] = f
	return nil
}

// New builds a behavior of the given kind.
func (c *Catalog) New(kind string) (Plugin, error) {
	c.mu.RLock()
	f, ok := c.factories[kind]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return f(), nil
}

// Kinds lists every registered kind sorted by name.
func (c *Catalog) Kinds() []KindInfo {
	c.mu.RLock()
	kinds := make([]string, 0, len(c.factories))
	for k := range c.factories {
		kinds = append(kinds, k)
	}
	c.mu.RUnlock()
	sort.Strings(kinds)

	out := make([]KindInfo, 0, len(kinds))
	for _, k := range kinds {
		p, err := c.New(k)
		if err != nil {
			continue
		}
		base := p.Core()
		out = append(out, KindInfo{
			Kind:    k,
			Title:   base.Title(),
			Inputs:  base.DeclaredInputs(),
			Outputs: base.DeclaredOutputs(),
		})
	}
	return out
}
