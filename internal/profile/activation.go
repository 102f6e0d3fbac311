package profile

import (
	"fmt"
	"time"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// ActivationReport is the result of ActivateProfile. Outcome lists every
// input slot of Global and the target that failed to subscribe.
type ActivationReport struct {
	ProfileID    string         `json:"profile_id"`
	Profile      string         `json:"profile"`
	Outcome      plugin.Outcome `json:"outcome"`
	DeviceErrors []string       `json:"device_errors,omitempty"`
	Duration     time.Duration  `json:"duration_ns"`
}

// OK reports whether every subscription of Global and the target succeeded.
func (r ActivationReport) OK() bool {
	return r.Outcome.OK()
}

// ActivateProfile makes p the active profile.
//
// Every device opens a staged registry, then Global and p are activated
// into it (Global once when p is Global). Only if both succeed are the
// staged registries committed, p made active, the devices referenced by
// Global and p started and every other device stopped. On failure the
// staged registries are dropped, so the previous profile keeps its
// subscriptions and stays active.
//
// The error is reserved for contract violations: a nil or foreign profile,
// or a missing Global. A failed activation is reported through the report.
//
// Reactions must not call ActivateProfile; committing waits for in-flight
// reactions to return.
func (c *Context) ActivateProfile(p *Profile) (ActivationReport, error) {
	if err := c.owns(p); err != nil {
		return ActivationReport{}, err
	}

	c.actMu.Lock()
	defer c.actMu.Unlock()
	return c.activateLocked(p)
}

func (c *Context) activateLocked(p *Profile) (ActivationReport, error) {
	global := c.Global()
	if global == nil {
		return ActivationReport{}, ErrGlobalMissing
	}

	start := time.Now()
	report := ActivationReport{ProfileID: p.ID(), Profile: p.Title()}
	inv := c.Inventory()
	devices := inv.Devices()

	for _, d := range devices {
		d.Stage()
	}

	report.Outcome.Merge(global.activate())
	if p != global {
		report.Outcome.Merge(p.activate())
	}

	if !report.OK() {
		for _, d := range devices {
			d.Discard()
		}
		report.Duration = time.Since(start)
		c.logger.Warn("profile activation failed",
			"profile", p.Title(),
			"failures", len(report.Outcome.Failures),
			"error", report.Outcome.Err(),
		)
		c.recorder.ProfileActivated(report)
		c.publish(Event{Type: EventActivationFailed, ProfileID: p.ID(), Payload: report})
		return report, nil
	}

	referenced := make(map[*device.Device]bool)
	for _, d := range global.referencedDevices(inv) {
		referenced[d] = true
	}
	for _, d := range p.referencedDevices(inv) {
		referenced[d] = true
	}

	// Swap the live set before committing so bindings of the outgoing
	// profile are gated off as soon as the registries change.
	c.live.Store(&liveSet{global: global, active: p})
	for _, d := range devices {
		d.Commit()
	}

	for _, d := range devices {
		if !referenced[d] {
			d.Deactivate()
			continue
		}
		if err := d.Activate(); err != nil {
			report.DeviceErrors = append(report.DeviceErrors, err.Error())
			c.logger.Error("device activation failed",
				"device", d.Title(),
				"error", err,
			)
		}
	}

	c.mu.Lock()
	c.active = p
	c.mu.Unlock()

	report.Duration = time.Since(start)
	c.logger.Info("profile activated",
		"profile", p.Title(),
		"devices", len(referenced),
		"duration", report.Duration,
	)
	c.recorder.ProfileActivated(report)
	c.publish(Event{Type: EventProfileActivated, ProfileID: p.ID(), Payload: report})
	return report, nil
}

// ActivateByID looks up a profile and activates it.
func (c *Context) ActivateByID(id string) (ActivationReport, error) {
	p, err := c.FindProfile(id)
	if err != nil {
		return ActivationReport{}, err
	}
	report, err := c.ActivateProfile(p)
	if err != nil {
		return report, fmt.Errorf("activating %s: %w", id, err)
	}
	return report, nil
}
