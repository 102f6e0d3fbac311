package profile

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// GlobalTitle is the title of the profile activated alongside every other.
const GlobalTitle = "Global"

// deviceKey selects one device group reference.
type deviceKey struct {
	dir device.Direction
	typ device.DeviceType
}

// Profile is a node in the profile tree. It owns an ordered behavior list
// and references, per direction and device type, the provider whose devices
// its behaviors may bind to. Missing references fall back to the parent.
//
// Profile implements plugin.Host for its behaviors.
type Profile struct {
	ctx *Context
	id  string

	mu       sync.RWMutex
	title    string
	parent   *Profile
	children []*Profile
	devices  map[deviceKey]string

	plugins *plugin.List
}

func newProfile(ctx *Context, id, title string) *Profile {
	if id == "" {
		id = uuid.NewString()
	}
	return &Profile{
		ctx:     ctx,
		id:      id,
		title:   title,
		devices: make(map[deviceKey]string),
		plugins: plugin.NewList(),
	}
}

// ID returns the profile's persistent identifier.
func (p *Profile) ID() string { return p.id }

// Title returns the display title.
func (p *Profile) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

// Rename sets the title.
func (p *Profile) Rename(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
	p.ctx.markChanged(p)
}

// Path returns the titles from the root down, joined with " / ".
func (p *Profile) Path() string {
	var parts []string
	for cur := p; cur != nil; cur = cur.Parent() {
		parts = append([]string{cur.Title()}, parts...)
	}
	return strings.Join(parts, " / ")
}

// IsGlobal reports whether p is the context's Global profile.
func (p *Profile) IsGlobal() bool {
	return p.ctx.Global() == p
}

// Parent returns the parent profile, or nil for a root.
func (p *Profile) Parent() *Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parent
}

// Children returns the child profiles in order.
func (p *Profile) Children() []*Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Profile(nil), p.children...)
}

// AddChild creates a child profile at the end of p's children.
func (p *Profile) AddChild(title string) *Profile {
	child := newProfile(p.ctx, "", title)
	p.attachChild(child)
	p.ctx.markChanged(child)
	return child
}

func (p *Profile) attachChild(child *Profile) {
	child.mu.Lock()
	child.parent = p
	child.mu.Unlock()

	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()
}

func (p *Profile) detachChild(child *Profile) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.children {
		if c == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return true
		}
	}
	return false
}

// isAncestorOf reports whether p is q or one of q's ancestors.
func (p *Profile) isAncestorOf(q *Profile) bool {
	for cur := q; cur != nil; cur = cur.Parent() {
		if cur == p {
			return true
		}
	}
	return false
}

// walk visits p and its descendants depth first.
func (p *Profile) walk(fn func(*Profile)) {
	fn(p)
	for _, c := range p.Children() {
		c.walk(fn)
	}
}

// ===== Device groups =====

// SetDeviceGroup makes the devices of providerID visible for dir and t.
// An empty providerID removes the reference so the parent's applies.
func (p *Profile) SetDeviceGroup(dir device.Direction, t device.DeviceType, providerID string) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: %q", device.ErrUnknownDirection, dir)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
	}

	p.mu.Lock()
	if providerID == "" {
		delete(p.devices, deviceKey{dir, t})
	} else {
		p.devices[deviceKey{dir, t}] = providerID
	}
	p.mu.Unlock()

	p.ctx.markChanged(p)
	return nil
}

// DeviceGroup returns p's own provider reference for dir and t.
func (p *Profile) DeviceGroup(dir device.Direction, t device.DeviceType) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.devices[deviceKey{dir, t}]
	return id, ok
}

// ResolveProvider returns the provider reference for dir and t, walking
// up the parent chain when p has none.
func (p *Profile) ResolveProvider(dir device.Direction, t device.DeviceType) (string, bool) {
	for cur := p; cur != nil; cur = cur.Parent() {
		if id, ok := cur.DeviceGroup(dir, t); ok {
			return id, true
		}
	}
	return "", false
}

// DeviceRef is one device group reference of a profile.
type DeviceRef struct {
	Direction  device.Direction  `json:"direction" yaml:"direction"`
	DeviceType device.DeviceType `json:"device_type" yaml:"device_type"`
	ProviderID string            `json:"provider_id" yaml:"provider_id"`
}

// DeviceRefs returns p's own references sorted by direction and type.
func (p *Profile) DeviceRefs() []DeviceRef {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var refs []DeviceRef
	for _, dir := range []device.Direction{device.Input, device.Output} {
		for _, t := range device.AllDeviceTypes {
			if id, ok := p.devices[deviceKey{dir, t}]; ok {
				refs = append(refs, DeviceRef{Direction: dir, DeviceType: t, ProviderID: id})
			}
		}
	}
	return refs
}

// referencedDevices returns the devices in inv that p's resolved device
// groups make visible.
func (p *Profile) referencedDevices(inv *device.Inventory) []*device.Device {
	var out []*device.Device
	for _, dir := range []device.Direction{device.Input, device.Output} {
		for _, t := range device.AllDeviceTypes {
			providerID, ok := p.ResolveProvider(dir, t)
			if !ok {
				continue
			}
			g, ok := inv.Group(dir, providerID)
			if !ok {
				continue
			}
			for _, d := range g.Devices {
				if d.Type() == t {
					out = append(out, d)
				}
			}
		}
	}
	return out
}

// ===== Behaviors =====

// Plugins returns the behaviors in list order.
func (p *Profile) Plugins() []plugin.Plugin {
	return p.plugins.Items()
}

// FindPlugin returns the behavior with the given id.
func (p *Profile) FindPlugin(id string) (plugin.Plugin, bool) {
	return p.plugins.Find(id)
}

// AddPlugin appends pl to the profile. A freshly built behavior is
// rehydrated against p; a duplicate is re-linked to p's list. A behavior
// that was removed is rejected; duplicate it instead.
func (p *Profile) AddPlugin(pl plugin.Plugin) error {
	base := pl.Core()
	if base.Attached() {
		return fmt.Errorf("%w: %s", ErrPluginAttached, base.ID())
	}
	if base.Removed() {
		return fmt.Errorf("adding plugin %s: %w", base.ID(), plugin.ErrRemoved)
	}

	if base.Loaded() {
		base.Attach(p, p.plugins)
	} else if err := base.PostLoad(p, p.plugins); err != nil {
		return fmt.Errorf("adding plugin %s: %w", base.ID(), err)
	}
	p.plugins.Append(pl)

	p.ctx.markChanged(p)
	return nil
}

// RemovePlugin detaches pl from the profile and from every device it was
// subscribed on. It reports whether pl was in p.
func (p *Profile) RemovePlugin(pl plugin.Plugin) bool {
	if !p.plugins.Contains(pl) {
		return false
	}
	pl.Core().Remove()
	p.ctx.unsubscribe(pl)
	closePlugin(pl)

	p.ctx.markChanged(p)
	return true
}

func closePlugin(pl plugin.Plugin) {
	if c, ok := pl.(interface{ Close() }); ok {
		c.Close()
	}
}

// activate runs the activation protocol for every behavior in order.
func (p *Profile) activate() plugin.Outcome {
	var out plugin.Outcome
	for _, pl := range p.plugins.Items() {
		out.Merge(plugin.Activate(pl))
	}
	return out
}

// ===== plugin.Host =====

// LocalDevice resolves b against the device groups visible to p.
func (p *Profile) LocalDevice(b *device.Binding) (*device.Device, error) {
	desc := b.Descriptor()
	dir := b.Direction()

	providerID, ok := p.ResolveProvider(dir, desc.DeviceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s in %q", ErrNoDeviceGroup, dir, desc.DeviceType, p.Title())
	}
	g, ok := p.ctx.Inventory().Group(dir, providerID)
	if !ok {
		return nil, fmt.Errorf("%w: provider %s has no %s devices", device.ErrDeviceNotFound, providerID, dir)
	}
	return g.Device(desc.DeviceType, desc.DeviceNumber)
}

// Dispatch invokes b's reaction if p is live and b's behavior is still
// attached. A panicking reaction is logged and recorded, never propagated
// into the provider's goroutine.
func (p *Profile) Dispatch(b *device.Binding, value int64) {
	owner, _ := b.Owner().(*plugin.Base)
	if owner == nil || !owner.Attached() || !p.ctx.isLive(p) {
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.ctx.logger.Error("reaction panicked",
				"profile", p.Title(),
				"plugin", owner.Title(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			p.ctx.recorder.ReactionPanicked(p.Title(), owner.Title())
		}
	}()

	b.React(value)

	desc := b.Descriptor()
	providerID, _ := p.ResolveProvider(device.Input, desc.DeviceType)
	p.ctx.recorder.InputDelivered(InputEvent{
		ProfileID:  p.id,
		Profile:    p.Title(),
		Plugin:     owner.Title(),
		Provider:   providerID,
		Descriptor: desc,
		Value:      value,
		Latency:    time.Since(start),
		Time:       start,
	})
}

// PluginChanged marks the configuration as modified.
func (p *Profile) PluginChanged() {
	p.ctx.markChanged(p)
}

// WriteFailed logs and records a provider write error.
func (p *Profile) WriteFailed(b *device.Binding, err error) {
	p.ctx.logger.Warn("output write failed",
		"profile", p.Title(),
		"binding", b.Descriptor().String(),
		"error", err,
	)
	p.ctx.recorder.OutputFailed(p.Title(), err)
}
