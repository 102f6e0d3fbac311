package profile

import (
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// SchemaVersion is the snapshot layout written by this release.
//
// Version 1 stores wrote every binding slot twice. Those lists are loaded
// as stored and compacted by PostLoad, which gates on the slot count rather
// than on this number, so both versions share one loader.
const SchemaVersion = 2

// Snapshot is the persisted form of a context: the profile tree flattened
// parents first, each profile's device references and behaviors.
type Snapshot struct {
	SchemaVersion int             `json:"schema_version" yaml:"schema_version"`
	ActiveProfile string          `json:"active_profile,omitempty" yaml:"active_profile,omitempty"`
	Profiles      []ProfileRecord `json:"profiles" yaml:"profiles"`
}

// ProfileRecord is one profile in a snapshot.
type ProfileRecord struct {
	ID       string         `json:"id" yaml:"id"`
	ParentID string         `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Title    string         `json:"title" yaml:"title"`
	Position int            `json:"position" yaml:"position"`
	Devices  []DeviceRef    `json:"devices,omitempty" yaml:"devices,omitempty"`
	Plugins  []PluginRecord `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// PluginRecord is one behavior in a snapshot. Inputs and Outputs hold the
// slot descriptors in slot order, exactly as stored.
type PluginRecord struct {
	ID       string              `json:"id" yaml:"id"`
	Kind     string              `json:"kind" yaml:"kind"`
	Title    string              `json:"title" yaml:"title"`
	Settings map[string]any      `json:"settings,omitempty" yaml:"settings,omitempty"`
	Inputs   []device.Descriptor `json:"inputs" yaml:"inputs"`
	Outputs  []device.Descriptor `json:"outputs" yaml:"outputs"`
}

// Snapshot captures the current configuration.
func (c *Context) Snapshot() Snapshot {
	s := Snapshot{SchemaVersion: SchemaVersion}
	if active := c.ActiveProfile(); active != nil {
		s.ActiveProfile = active.ID()
	}

	var add func(p *Profile, parentID string, position int)
	add = func(p *Profile, parentID string, position int) {
		rec := ProfileRecord{
			ID:       p.ID(),
			ParentID: parentID,
			Title:    p.Title(),
			Position: position,
			Devices:  p.DeviceRefs(),
		}
		for _, pl := range p.Plugins() {
			rec.Plugins = append(rec.Plugins, pluginRecord(pl))
		}
		s.Profiles = append(s.Profiles, rec)

		for i, child := range p.Children() {
			add(child, p.ID(), i)
		}
	}
	for i, root := range c.Profiles() {
		add(root, "", i)
	}
	return s
}

func pluginRecord(pl plugin.Plugin) PluginRecord {
	base := pl.Core()
	rec := PluginRecord{
		ID:      base.ID(),
		Kind:    pl.Kind(),
		Title:   base.Title(),
		Inputs:  base.InputDescriptors(),
		Outputs: base.OutputDescriptors(),
	}
	if cfg, ok := pl.(plugin.Configurable); ok {
		rec.Settings = maps.Clone(cfg.Settings())
	}
	return rec
}

// Restore replaces the profile tree with s.
//
// Behaviors are built through the catalog, their stored descriptors loaded
// as-is, then PostLoad runs exactly once on each. Unknown kinds and parents
// are skipped with a warning; a slot count mismatch is logged and the
// behavior kept. Nothing is activated: the caller activates
// s.ActiveProfile when it wants the saved state live.
func (c *Context) Restore(s Snapshot) error {
	if s.SchemaVersion > SchemaVersion {
		return fmt.Errorf("%w: version %d, newest known %d", ErrUnsupportedSchema, s.SchemaVersion, SchemaVersion)
	}

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

	byID := make(map[string]*Profile, len(s.Profiles))
	var roots []*Profile

	for _, rec := range sortedRecords(s.Profiles) {
		p := newProfile(c, rec.ID, rec.Title)
		for _, ref := range rec.Devices {
			if ref.Direction.Valid() && ref.DeviceType.Valid() && ref.ProviderID != "" {
				p.devices[deviceKey{ref.Direction, ref.DeviceType}] = ref.ProviderID
			}
		}
		for _, pr := range rec.Plugins {
			c.restorePlugin(p, pr)
		}

		if parent, ok := byID[rec.ParentID]; rec.ParentID != "" && ok {
			parent.attachChild(p)
		} else {
			if rec.ParentID != "" {
				c.logger.Warn("profile parent missing, restoring as root",
					"profile", rec.Title,
					"parent_id", rec.ParentID,
				)
			}
			roots = append(roots, p)
		}
		byID[p.id] = p
	}

	c.mu.Lock()
	c.roots = roots
	c.active = nil
	c.mu.Unlock()

	c.EnsureGlobal()
	c.changed.Store(false)

	c.logger.Info("configuration restored",
		"profiles", len(byID),
		"schema_version", s.SchemaVersion,
	)
	c.publish(Event{Type: EventConfigRestored})
	return nil
}

// Load restores s and activates the profile it saved as active, or Global
// when that id is empty or no longer exists. A failed activation is
// reported, not returned: the tree is restored either way.
func (c *Context) Load(s Snapshot) (ActivationReport, error) {
	if err := c.Restore(s); err != nil {
		return ActivationReport{}, err
	}

	target := c.Global()
	if s.ActiveProfile != "" {
		if p, err := c.FindProfile(s.ActiveProfile); err == nil {
			target = p
		} else {
			c.logger.Warn("saved active profile missing, activating global",
				"profile_id", s.ActiveProfile)
		}
	}
	return c.ActivateProfile(target)
}

func (c *Context) restorePlugin(p *Profile, rec PluginRecord) {
	pl, err := c.catalog.New(rec.Kind)
	if err != nil {
		c.logger.Warn("skipping plugin of unknown kind",
			"profile", p.title,
			"plugin", rec.Title,
			"kind", rec.Kind,
		)
		return
	}

	base := pl.Core()
	if rec.ID != "" {
		base.SetID(rec.ID)
	}
	base.SetTitle(rec.Title)

	if cfg, ok := pl.(plugin.Configurable); ok && rec.Settings != nil {
		if err := cfg.ApplySettings(rec.Settings); err != nil {
			c.logger.Warn("plugin settings rejected, using defaults",
				"plugin", rec.Title,
				"error", err,
			)
		}
	}

	base.Restore(rec.Inputs, rec.Outputs)
	p.plugins.Append(pl)
	if err := base.PostLoad(p, p.plugins); err != nil {
		level := c.logger.Error
		if errors.Is(err, plugin.ErrSlotCountMismatch) {
			level = c.logger.Warn
		}
		level("plugin rehydration problem",
			"profile", p.title,
			"plugin", rec.Title,
			"error", err,
		)
	}
}

// sortedRecords orders records so every parent precedes its children and
// siblings follow Position. Records whose parent never appears keep their
// relative order at the end.
func sortedRecords(records []ProfileRecord) []ProfileRecord {
	children := make(map[string][]ProfileRecord)
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.ID] = true
	}
	for _, r := range records {
		parent := r.ParentID
		if parent != "" && !known[parent] {
			parent = "\x00orphan"
		}
		children[parent] = append(children[parent], r)
	}
	for _, list := range children {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	}

	out := make([]ProfileRecord, 0, len(records))
	var visit func(parent string)
	visit = func(parent string) {
		for _, r := range children[parent] {
			out = append(out, r)
			visit(r.ID)
		}
	}
	visit("")
	for _, r := range children["\x00orphan"] {
		out = append(out, r)
		visit(r.ID)
	}
	return out
}
