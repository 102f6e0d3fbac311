package profile

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// Context is the application state: device inventory, profile tree and
// the active profile. It is built with NewContext, populated with Init and
// torn down with Close; nothing reaches it through package state.
//
// Tree edits and activation are expected from a single owner goroutine.
// Activation is additionally serialised by actMu. Input delivery arrives on
// provider goroutines and only reads the inventory and the live set.
type Context struct {
	provider device.Provider
	catalog  *plugin.Catalog
	logger   Logger
	recorder Recorder
	notify   Notifier

	actMu sync.Mutex

	mu        sync.RWMutex
	inventory *device.Inventory
	roots     []*Profile
	active    *Profile

	live    atomic.Pointer[liveSet]
	changed atomic.Bool
}

// liveSet holds the profiles whose reactions may run.
type liveSet struct {
	global, active *Profile
}

func (s *liveSet) contains(p *Profile) bool {
	return s != nil && (s.global == p || s.active == p)
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the context logger.
func WithLogger(l Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Context) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithNotifier sets the event callback.
func WithNotifier(n Notifier) Option {
	return func(c *Context) {
		c.notify = n
	}
}

// NewContext creates an empty context. Call Init before activating.
func NewContext(provider device.Provider, catalog *plugin.Catalog, opts ...Option) *Context {
	c := &Context{
		provider:  provider,
		catalog:   catalog,
		logger:    noopLogger{},
		recorder:  noopRecorder{},
		inventory: device.NewInventory(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the behavior catalog.
func (c *Context) Catalog() *plugin.Catalog { return c.catalog }

// Init (re)builds the device inventory from the provider and makes sure
// Global exists. Devices of the previous inventory are deactivated; if a
// profile was active it is activated again against the new devices. When
// that fails Global is activated instead, and when Global fails too no
// profile is left active.
func (c *Context) Init() error {
	c.actMu.Lock()
	defer c.actMu.Unlock()

	old := c.Inventory()
	inv := device.NewInventory(c.provider)

	c.mu.Lock()
	c.inventory = inv
	active := c.active
	c.mu.Unlock()

	for _, d := range old.Devices() {
		d.Deactivate()
	}
	c.EnsureGlobal()

	c.logger.Info("device inventory built",
		"inputs", len(inv.Groups(device.Input)),
		"outputs", len(inv.Groups(device.Output)),
		"devices", len(inv.Devices()),
	)
	c.publish(Event{Type: EventDevicesChanged})

	if active == nil {
		return nil
	}
	report, err := c.activateLocked(active)
	if err != nil || report.OK() {
		return err
	}
	c.logger.Warn("active profile lost devices on rescan",
		"profile", active.Title(),
		"failures", len(report.Outcome.Failures),
	)

	// The new devices have no committed registry yet, so the old profile
	// cannot stay active. Fall back to Global, then to nothing.
	if global := c.Global(); active != global {
		report, err = c.activateLocked(global)
		if err != nil || report.OK() {
			return err
		}
	}
	c.clearActive()
	c.logger.Error("no profile active after rescan")
	return nil
}

// clearActive stops delivery to every profile. Callers hold actMu.
func (c *Context) clearActive() {
	c.live.Store(nil)
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// Close deactivates every device and releases behavior resources.
func (c *Context) Close() {
	c.actMu.Lock()
	defer c.actMu.Unlock()

	c.live.Store(nil)
	for _, d := range c.Inventory().Devices() {
		d.Deactivate()
	}
	for _, p := range c.AllProfiles() {
		for _, pl := range p.Plugins() {
			closePlugin(pl)
		}
	}

	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// Inventory returns the current device inventory.
func (c *Context) Inventory() *device.Inventory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inventory
}

// GetAvailableDeviceList returns the device groups for dir.
func (c *Context) GetAvailableDeviceList(dir device.Direction) []*device.Group {
	return c.Inventory().Groups(dir)
}

// ===== Profile tree =====

// Profiles returns the root profiles in order.
func (c *Context) Profiles() []*Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Profile(nil), c.roots...)
}

// AllProfiles returns every profile, parents before children.
func (c *Context) AllProfiles() []*Profile {
	var out []*Profile
	for _, r := range c.Profiles() {
		r.walk(func(p *Profile) { out = append(out, p) })
	}
	return out
}

// Global returns the first root titled GlobalTitle, or nil.
func (c *Context) Global() *Profile {
	for _, r := range c.Profiles() {
		if r.Title() == GlobalTitle {
			return r
		}
	}
	return nil
}

// EnsureGlobal returns Global, creating it as the first root if missing.
func (c *Context) EnsureGlobal() *Profile {
	if g := c.Global(); g != nil {
		return g
	}
	g := newProfile(c, "", GlobalTitle)

	c.mu.Lock()
	c.roots = append([]*Profile{g}, c.roots...)
	c.mu.Unlock()

	c.markChanged(g)
	return g
}

// AddProfile creates a root profile.
func (c *Context) AddProfile(title string) *Profile {
	p := newProfile(c, "", title)

	c.mu.Lock()
	c.roots = append(c.roots, p)
	c.mu.Unlock()

	c.markChanged(p)
	return p
}

// FindProfile returns the profile with the given id.
func (c *Context) FindProfile(id string) (*Profile, error) {
	for _, p := range c.AllProfiles() {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
}

// DeleteProfile removes p and its subtree. Global, the active profile and
// its ancestors cannot be deleted.
func (c *Context) DeleteProfile(p *Profile) error {
	if err := c.owns(p); err != nil {
		return err
	}
	if p == c.Global() {
		return fmt.Errorf("%w: %s is the global profile", ErrCannotDelete, p.Title())
	}
	if active := c.ActiveProfile(); active != nil && p.isAncestorOf(active) {
		return fmt.Errorf("%w: %s is active", ErrCannotDelete, p.Title())
	}

	if parent := p.Parent(); parent != nil {
		parent.detachChild(p)
	} else {
		c.mu.Lock()
		for i, r := range c.roots {
			if r == p {
				c.roots = append(c.roots[:i], c.roots[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}

	p.walk(func(q *Profile) {
		for _, pl := range q.Plugins() {
			pl.Core().Remove()
			c.unsubscribe(pl)
			closePlugin(pl)
		}
	})

	c.markChanged(p)
	return nil
}

// owns checks that p is non-nil and part of this context's tree.
func (c *Context) owns(p *Profile) error {
	if p == nil {
		return ErrNilProfile
	}
	if p.ctx != c {
		return fmt.Errorf("%w: %s", ErrForeignProfile, p.Title())
	}
	return nil
}

// unsubscribe removes pl's input bindings from every device.
func (c *Context) unsubscribe(pl plugin.Plugin) {
	inputs := pl.Core().Inputs()
	for _, d := range c.Inventory().Devices() {
		for _, b := range inputs {
			d.RemoveDeviceBinding(b)
		}
	}
}

// ===== State =====

// ActiveProfile returns the active profile, or nil.
func (c *Context) ActiveProfile() *Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// IsChanged reports whether the configuration changed since the last save.
func (c *Context) IsChanged() bool {
	return c.changed.Load()
}

// MarkSaved clears the changed flag.
func (c *Context) MarkSaved() {
	c.changed.Store(false)
}

func (c *Context) markChanged(p *Profile) {
	c.changed.Store(true)
	ev := Event{Type: EventConfigChanged}
	if p != nil {
		ev.ProfileID = p.ID()
	}
	c.publish(ev)
}

func (c *Context) isLive(p *Profile) bool {
	return c.live.Load().contains(p)
}

func (c *Context) publish(ev Event) {
	if c.notify == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.notify(ev)
}
