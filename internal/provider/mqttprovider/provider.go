// Package mqttprovider exposes devices that remote bridge agents publish
// over MQTT.
//
// A bridge announces its devices with a retained document on
// {prefix}/discovery/{bridge}, reports control values on
// {prefix}/state/{bridge}/{type}/{number} and receives output writes on
// {prefix}/command/{bridge}/{type}/{number}. Each bridge becomes one
// provider ID. Device numbers count per type in discovery order, which is
// how the device inventory numbers them too.
package mqttprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/infrastructure/mqtt"
)

// Bus is the part of *mqtt.Client the provider uses.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the subset of logging.Logger the provider uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Provider tracks discovered bridges. It implements device.Provider.
type Provider struct {
	bus    Bus
	topics mqtt.Topics
	qos    byte
	logger Logger

	mu       sync.RWMutex
	bridges  map[string]*bridge
	onChange func()
}

type bridge struct {
	id      string
	title   string
	inputs  []*remoteDevice
	outputs []*remoteDevice
}

// Option configures a Provider.
type Option func(*Provider)

// WithQoS sets the QoS for subscriptions and commands.
func WithQoS(qos byte) Option {
	return func(p *Provider) { p.qos = qos }
}

// WithLogger sets the provider logger.
func WithLogger(l Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a provider on bus. Call Start to subscribe.
func New(bus Bus, topics mqtt.Topics, opts ...Option) *Provider {
	p := &Provider{
		bus:     bus,
		topics:  topics,
		qos:     1,
		logger:  noopLogger{},
		bridges: make(map[string]*bridge),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnChange sets a callback run after a bridge appears, changes or leaves.
// The daemon uses it to rebuild the device inventory.
func (p *Provider) OnChange(fn func()) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Start subscribes to discovery and state topics.
func (p *Provider) Start() error {
	if err := p.bus.Subscribe(p.topics.AllDiscovery(), p.qos, p.handleDiscovery); err != nil {
		return fmt.Errorf("subscribing to discovery: %w", err)
	}
	if err := p.bus.Subscribe(p.topics.AllStates(), p.qos, p.handleState); err != nil {
		return fmt.Errorf("subscribing to state: %w", err)
	}
	return nil
}

// Stop unsubscribes. Known bridges are kept.
func (p *Provider) Stop() error {
	var firstErr error
	for _, topic := range []string{p.topics.AllDiscovery(), p.topics.AllStates()} {
		if err := p.bus.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Bridges returns the IDs of the known bridges.
func (p *Provider) Bridges() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.bridges))
	for id := range p.bridges {
		out = append(out, id)
	}
	return out
}

// InputList implements device.Provider.
func (p *Provider) InputList() map[string]device.ProviderReport {
	return p.report(func(b *bridge) []*remoteDevice { return b.inputs })
}

// OutputList implements device.Provider.
func (p *Provider) OutputList() map[string]device.ProviderReport {
	return p.report(func(b *bridge) []*remoteDevice { return b.outputs })
}

func (p *Provider) report(pick func(*bridge) []*remoteDevice) map[string]device.ProviderReport {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]device.ProviderReport, len(p.bridges))
	for id, b := range p.bridges {
		list := pick(b)
		if len(list) == 0 {
			continue
		}
		devices := make(map[int]device.Handle, len(list))
		for i, d := range list {
			devices[i] = d
		}
		out[id] = device.ProviderReport{ProviderID: id, Title: b.title, Devices: devices}
	}
	return out
}

// handleDiscovery registers, replaces or (on an empty payload) removes a bridge.
func (p *Provider) handleDiscovery(topic string, payload []byte) error {
	id, ok := p.topics.ParseDiscovery(topic)
	if !ok {
		return fmt.Errorf("%w: discovery topic %s", ErrInvalidPayload, topic)
	}

	p.mu.Lock()
	if len(payload) == 0 {
		_, known := p.bridges[id]
		delete(p.bridges, id)
		p.mu.Unlock()
		if known {
			p.logger.Info("mqtt bridge removed", "bridge", id)
			p.changed()
		}
		return nil
	}
	p.mu.Unlock()

	doc, err := decodeDiscovery(payload)
	if err != nil {
		return err
	}
	if doc.Title == "" {
		doc.Title = id
	}

	b := &bridge{id: id, title: doc.Title}
	b.inputs = p.buildDevices(id, device.Input, doc.Inputs)
	b.outputs = p.buildDevices(id, device.Output, doc.Outputs)

	p.mu.Lock()
	p.bridges[id] = b
	p.mu.Unlock()

	p.logger.Info("mqtt bridge discovered",
		"bridge", id,
		"inputs", len(b.inputs),
		"outputs", len(b.outputs),
	)
	p.changed()
	return nil
}

func (p *Provider) buildDevices(id string, dir device.Direction, specs []deviceSpec) []*remoteDevice {
	counts := make(map[device.DeviceType]int)
	out := make([]*remoteDevice, 0, len(specs))
	for _, s := range specs {
		out = append(out, &remoteDevice{
			p:      p,
			bridge: id,
			dir:    dir,
			typ:    s.Type,
			number: counts[s.Type],
			title:  s.Title,
		})
		counts[s.Type]++
	}
	return out
}

func (p *Provider) changed() {
	p.mu.RLock()
	fn := p.onChange
	p.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// handleState forwards control reports to the listening device.
func (p *Provider) handleState(topic string, payload []byte) error {
	addr, ok := p.topics.ParseState(topic)
	if !ok {
		return fmt.Errorf("%w: state topic %s", ErrInvalidPayload, topic)
	}
	d := p.input(addr)
	if d == nil {
		return fmt.Errorf("%w: %s/%s/%d", ErrUnknownDevice, addr.Provider, addr.DeviceType, addr.Number)
	}

	values, err := decodeState(payload)
	if err != nil {
		return err
	}
	for _, v := range values {
		d.deliver(v.Control, v.Value)
	}
	return nil
}

func (p *Provider) input(addr mqtt.DeviceAddress) *remoteDevice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bridges[addr.Provider]
	if !ok {
		return nil
	}
	for _, d := range b.inputs {
		if string(d.typ) == addr.DeviceType && d.number == addr.Number {
			return d
		}
	}
	return nil
}

// remoteDevice is one bridged device. It implements device.Handle.
type remoteDevice struct {
	p      *Provider
	bridge string
	dir    device.Direction
	typ    device.DeviceType
	number int
	title  string

	mu  sync.Mutex
	fn  func(device.Control, int64)
	gen uint64
}

func (d *remoteDevice) Title() string           { return d.title }
func (d *remoteDevice) Type() device.DeviceType { return d.typ }

func (d *remoteDevice) Listen(fn func(device.Control, int64)) (func(), error) {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.fn = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		if d.gen == gen {
			d.fn = nil
		}
		d.mu.Unlock()
	}, nil
}

func (d *remoteDevice) deliver(ctrl device.Control, value int64) {
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		fn(ctrl, value)
	}
}

// Write publishes a command for the bridge to apply.
func (d *remoteDevice) Write(ctx context.Context, ctrl device.Control, value int64) error {
	if d.dir != device.Output {
		return device.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodeCommand(ctrl, value, time.Now())
	if err != nil {
		return err
	}
	topic := d.p.topics.Command(d.bridge, string(d.typ), d.number)
	if err := d.p.bus.Publish(topic, payload, d.p.qos, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	d.p.logger.Debug("mqtt command published", "topic", topic, "value", value)
	return nil
}
