package api

import (
	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
	"github.com/nerrad567/remapd/internal/profile"
)

// DeviceView is one device of a provider group.
type DeviceView struct {
	Type   device.DeviceType `json:"type"`
	Number int               `json:"number"`
	Title  string            `json:"title"`
	Active bool              `json:"active"`
}

// GroupView is the device list of one provider in one direction.
type GroupView struct {
	ProviderID string           `json:"provider_id"`
	Title      string           `json:"title"`
	Direction  device.Direction `json:"direction"`
	Devices    []DeviceView     `json:"devices"`
}

// PluginView is the editor representation of a behavior.
type PluginView struct {
	ID       string              `json:"id"`
	Kind     string              `json:"kind"`
	Title    string              `json:"title"`
	Settings map[string]any      `json:"settings,omitempty"`
	Inputs   []device.Descriptor `json:"inputs"`
	Outputs  []device.Descriptor `json:"outputs"`
	Error    string              `json:"error,omitempty"`
}

// ProfileView is the editor representation of a profile. Children are only
// filled in tree listings.
type ProfileView struct {
	ID       string              `json:"id"`
	ParentID string              `json:"parent_id,omitempty"`
	Title    string              `json:"title"`
	Path     string              `json:"path"`
	Global   bool                `json:"global"`
	Active   bool                `json:"active"`
	Devices  []profile.DeviceRef `json:"devices"`
	Plugins  []PluginView        `json:"plugins"`
	Children []ProfileView       `json:"children,omitempty"`
}

func groupViews(groups []*device.Group) []GroupView {
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		gv := GroupView{
			ProviderID: g.ProviderID,
			Title:      g.Title,
			Direction:  g.Direction,
			Devices:    make([]DeviceView, 0, len(g.Devices)),
		}
		for _, d := range g.Devices {
			gv.Devices = append(gv.Devices, DeviceView{
				Type:   d.Type(),
				Number: d.Number(),
				Title:  d.Title(),
				Active: d.IsActive(),
			})
		}
		out = append(out, gv)
	}
	return out
}

func pluginView(pl plugin.Plugin) PluginView {
	base := pl.Core()
	v := PluginView{
		ID:      base.ID(),
		Kind:    pl.Kind(),
		Title:   base.Title(),
		Inputs:  base.InputDescriptors(),
		Outputs: base.OutputDescriptors(),
	}
	if c, ok := pl.(plugin.Configurable); ok {
		v.Settings = c.Settings()
	}
	// Script behaviors report compile and runtime errors here.
	if e, ok := pl.(interface{ LastError() error }); ok {
		if err := e.LastError(); err != nil {
			v.Error = err.Error()
		}
	}
	return v
}

func profileView(p, active *profile.Profile, withChildren bool) ProfileView {
	v := ProfileView{
		ID:      p.ID(),
		Title:   p.Title(),
		Path:    p.Path(),
		Global:  p.IsGlobal(),
		Active:  p == active,
		Devices: p.DeviceRefs(),
		Plugins: make([]PluginView, 0),
	}
	if v.Devices == nil {
		v.Devices = make([]profile.DeviceRef, 0)
	}
	if parent := p.Parent(); parent != nil {
		v.ParentID = parent.ID()
	}
	for _, pl := range p.Plugins() {
		v.Plugins = append(v.Plugins, pluginView(pl))
	}
	if withChildren {
		for _, c := range p.Children() {
			v.Children = append(v.Children, profileView(c, active, true))
		}
	}
	return v
}
