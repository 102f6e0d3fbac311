package plugin

import "sync"

// List is the ordered behavior list of a profile. A behavior holds a
// back-reference to the list that contains it so Remove works.
type List struct {
	mu    sync.RWMutex
	items []Plugin
}

// NewList creates an empty list.
func NewList() *List {
	return &List{}
}

// Append adds p at the end. Linking p back to the list is the caller's job.
func (l *List) Append(p Plugin) {
	l.mu.Lock()
	l.items = append(l.items, p)
	l.mu.Unlock()
}

// Items returns a snapshot of the list.
func (l *List) Items() []Plugin {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Plugin(nil), l.items...)
}

// Len returns the number of behaviors.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Find returns the behavior with the given id.
func (l *List) Find(id string) (Plugin, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.items {
		if p.Core().ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Contains reports whether p is in the list.
func (l *List) Contains(p Plugin) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, item := range l.items {
		if item.Core() == p.Core() {
			return true
		}
	}
	return false
}

func (l *List) remove(b *Base) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, item := range l.items {
		if item.Core() == b {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}
