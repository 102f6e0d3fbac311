package plugin

import (
	"fmt"
	"maps"
)

// Duplicate builds an independent copy of p: same kind, title, settings
// and slot descriptors, new id, no subscriptions. The copy is rehydrated
// against p's host but sits in no list; Profile.AddPlugin attaches it.
func Duplicate(cat *Catalog, p Plugin) (Plugin, error) {
	cp, err := cat.New(p.Kind())
	if err != nil {
		return nil, fmt.Errorf("duplicating %s: %w", p.Core().ID(), err)
	}

	src, dst := p.Core(), cp.Core()
	dst.SetTitle(src.Title())

	if from, ok := p.(Configurable); ok {
		if to, ok := cp.(Configurable); ok {
			if err := to.ApplySettings(maps.Clone(from.Settings())); err != nil {
				return nil, fmt.Errorf("duplicating %s settings: %w", src.ID(), err)
			}
		}
	}

	dst.Restore(src.InputDescriptors(), src.OutputDescriptors())
	if err := dst.PostLoad(src.Host(), nil); err != nil {
		return nil, fmt.Errorf("duplicating %s: %w", src.ID(), err)
	}
	return cp, nil
}
