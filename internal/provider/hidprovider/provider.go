// Package hidprovider reads raw HID joysticks and gamepads.
//
// Devices on the Generic Desktop usage page with the Joystick or Game Pad
// usage are reported as input joysticks under the provider ID "hid". Reports
// are decoded generically (see diffReport); no output devices are exposed.
package hidprovider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/infrastructure/config"
)

// ProviderID is the provider ID of HID devices.
const ProviderID = "hid"

const (
	defaultReadTimeout = 50 * time.Millisecond
	reportSize         = 64
)

// Logger is the subset of logging.Logger the provider uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// reader is the part of *hid.Device the read loop uses.
type reader interface {
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Provider enumerates HID game controllers. It implements device.Provider.
type Provider struct {
	timeout time.Duration
	logger  Logger

	enumerate func(hid.EnumFunc) error
	open      func(path string) (reader, error)

	mu      sync.Mutex
	devices map[string]*hidDevice
}

// New creates a provider. Call Open before the first enumeration.
func New(cfg config.HIDProviderConfig, logger Logger) *Provider {
	timeout := time.Duration(cfg.ReadTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Provider{
		timeout: timeout,
		logger:  logger,
		enumerate: func(fn hid.EnumFunc) error {
			return hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, fn)
		},
		open: func(path string) (reader, error) {
			return hid.OpenPath(path)
		},
		devices: make(map[string]*hidDevice),
	}
}

// Open initialises the HID library.
func (p *Provider) Open() error {
	if err := hid.Init(); err != nil {
		return fmt.Errorf("initialising hid: %w", err)
	}
	return nil
}

// Close stops every read loop and releases the HID library.
func (p *Provider) Close() error {
	p.mu.Lock()
	devices := p.devices
	p.devices = make(map[string]*hidDevice)
	p.mu.Unlock()

	for _, d := range devices {
		d.stopLoop()
	}
	return hid.Exit()
}

// InputList implements device.Provider. Devices are ordered by path so
// numbering is stable while the same controllers stay plugged in.
func (p *Provider) InputList() map[string]device.ProviderReport {
	found, err := p.scan()
	if err != nil {
		p.logger.Warn("hid enumeration failed", "error", err)
		return map[string]device.ProviderReport{}
	}
	if len(found) == 0 {
		return map[string]device.ProviderReport{}
	}

	devices := make(map[int]device.Handle, len(found))
	for i, d := range found {
		devices[i] = d
	}
	return map[string]device.ProviderReport{
		ProviderID: {ProviderID: ProviderID, Title: "HID game controllers", Devices: devices},
	}
}

// OutputList implements device.Provider. HID devices are read-only.
func (p *Provider) OutputList() map[string]device.ProviderReport {
	return map[string]device.ProviderReport{}
}

// scan enumerates controllers, reusing handles for known paths.
func (p *Provider) scan() ([]*hidDevice, error) {
	var infos []hid.DeviceInfo
	err := p.enumerate(func(info *hid.DeviceInfo) error {
		if isGameController(info) {
			infos = append(infos, *info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })

	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool, len(infos))
	out := make([]*hidDevice, 0, len(infos))
	for _, info := range infos {
		if seen[info.Path] {
			continue
		}
		seen[info.Path] = true
		d, ok := p.devices[info.Path]
		if !ok {
			d = &hidDevice{p: p, path: info.Path, title: deviceTitle(&info)}
			p.devices[info.Path] = d
			p.logger.Info("hid controller found",
				"path", info.Path,
				"title", d.title,
				"vendor_id", fmt.Sprintf("0x%04X", info.VendorID),
				"product_id", fmt.Sprintf("0x%04X", info.ProductID),
			)
		}
		out = append(out, d)
	}
	for path, d := range p.devices {
		if !seen[path] {
			d.stopLoop()
			delete(p.devices, path)
		}
	}
	return out, nil
}

func isGameController(info *hid.DeviceInfo) bool {
	return info.UsagePage == usagePageGenericDesktop &&
		(info.Usage == usageJoystick || info.Usage == usageGamepad)
}

func deviceTitle(info *hid.DeviceInfo) string {
	if info.ProductStr != "" {
		return info.ProductStr
	}
	return fmt.Sprintf("HID %04X:%04X", info.VendorID, info.ProductID)
}

// hidDevice is one controller. It implements device.Handle.
type hidDevice struct {
	p     *Provider
	path  string
	title string

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

func (d *hidDevice) Title() string           { return d.title }
func (d *hidDevice) Type() device.DeviceType { return device.TypeJoystick }

// Listen opens the device and starts a read loop that runs fn for every
// decoded change. A second Listen replaces the first loop.
func (d *hidDevice) Listen(fn func(device.Control, int64)) (func(), error) {
	d.stopLoop()

	r, err := d.p.open(d.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", d.path, err)
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.done = done
	d.mu.Unlock()

	d.wg.Add(1)
	go d.readLoop(r, done, fn)

	return func() { d.stop(done) }, nil
}

// Write implements device.Handle; controllers are read-only.
func (d *hidDevice) Write(_ context.Context, _ device.Control, _ int64) error {
	return device.ErrReadOnly
}

func (d *hidDevice) readLoop(r reader, done <-chan struct{}, fn func(device.Control, int64)) {
	defer d.wg.Done()
	defer r.Close() //nolint:errcheck // Best effort on shutdown

	buf := make([]byte, reportSize)
	var prev []byte
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := r.ReadWithTimeout(buf, d.p.timeout)
		if errors.Is(err, hid.ErrTimeout) || (err == nil && n == 0) {
			continue
		}
		if err != nil {
			d.p.logger.Warn("hid read failed, stopping device", "path", d.path, "error", err)
			return
		}

		cur := append([]byte(nil), buf[:n]...)
		for _, ev := range diffReport(prev, cur) {
			fn(ev.ctrl, ev.value)
		}
		prev = cur
	}
}

// stop ends the loop started with done, if it is still the current one.
func (d *hidDevice) stop(done chan struct{}) {
	d.mu.Lock()
	if d.done != done {
		d.mu.Unlock()
		return
	}
	d.done = nil
	close(done)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *hidDevice) stopLoop() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		d.stop(done)
	}
}
