package provider

import (
	"sync"

	"github.com/nerrad567/remapd/internal/device"
)

// Logger is the subset of logging.Logger the provider package uses.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Multi merges several providers into one. Providers can be added while
// the daemon runs; the next Context.Init picks them up.
type Multi struct {
	mu        sync.RWMutex
	providers []device.Provider
	logger    Logger
}

// NewMulti creates a provider over ps.
func NewMulti(ps ...device.Provider) *Multi {
	m := &Multi{logger: noopLogger{}}
	for _, p := range ps {
		m.Add(p)
	}
	return m
}

// SetLogger sets the logger used to report ID collisions.
func (m *Multi) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

// Add appends p. Nil providers are ignored.
func (m *Multi) Add(p device.Provider) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.providers = append(m.providers, p)
	m.mu.Unlock()
}

// Len returns the number of providers.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.providers)
}

// InputList implements device.Provider.
func (m *Multi) InputList() map[string]device.ProviderReport {
	return m.merge(device.Input, device.Provider.InputList)
}

// OutputList implements device.Provider.
func (m *Multi) OutputList() map[string]device.ProviderReport {
	return m.merge(device.Output, device.Provider.OutputList)
}

func (m *Multi) merge(dir device.Direction, list func(device.Provider) map[string]device.ProviderReport) map[string]device.ProviderReport {
	m.mu.RLock()
	providers := append([]device.Provider(nil), m.providers...)
	logger := m.logger
	m.mu.RUnlock()

	out := make(map[string]device.ProviderReport)
	for _, p := range providers {
		for id, report := range list(p) {
			if _, dup := out[id]; dup {
				logger.Warn("duplicate provider id, keeping first",
					"provider_id", id,
					"direction", dir,
					"title", report.Title,
				)
				continue
			}
			out[id] = report
		}
	}
	return out
}
