package device

import (
	"fmt"
	"sort"
)

// Group is the set of devices one provider reports for one direction.
type Group struct {
	ProviderID string
	Title      string
	Direction  Direction
	Devices    []*Device
}

// Device returns the number-th device of type t in the group.
func (g *Group) Device(t DeviceType, number int) (*Device, error) {
	for _, d := range g.Devices {
		if d.id.Type == t && d.id.Number == number {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s#%d in %s", ErrDeviceNotFound, t, number, g.ProviderID)
}

// CountOf returns how many devices of type t the group holds.
func (g *Group) CountOf(t DeviceType) int {
	n := 0
	for _, d := range g.Devices {
		if d.id.Type == t {
			n++
		}
	}
	return n
}

// BuildGroups wraps provider reports into groups ordered by provider id.
// Devices keep the provider's index order; Number counts per type.
func BuildGroups(reports map[string]ProviderReport, dir Direction) []*Group {
	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make([]*Group, 0, len(ids))
	for _, id := range ids {
		report := reports[id]
		providerID := report.ProviderID
		if providerID == "" {
			providerID = id
		}

		indexes := make([]int, 0, len(report.Devices))
		for idx := range report.Devices {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		g := &Group{ProviderID: providerID, Title: report.Title, Direction: dir}
		counts := make(map[DeviceType]int)
		for _, idx := range indexes {
			h := report.Devices[idx]
			t := h.Type()
			g.Devices = append(g.Devices, NewDevice(Identity{
				ProviderID: providerID,
				Direction:  dir,
				Type:       t,
				Index:      idx,
				Number:     counts[t],
				Title:      h.Title(),
			}, h))
			counts[t]++
		}
		groups = append(groups, g)
	}
	return groups
}

// Inventory holds every device group known to the process.
// It is immutable once built; Init builds a fresh one.
type Inventory struct {
	inputs  []*Group
	outputs []*Group
}

// NewInventory enumerates p. A nil provider yields an empty inventory.
func NewInventory(p Provider) *Inventory {
	if p == nil {
		return &Inventory{}
	}
	return &Inventory{
		inputs:  BuildGroups(p.InputList(), Input),
		outputs: BuildGroups(p.OutputList(), Output),
	}
}

// Groups returns the groups for dir.
func (inv *Inventory) Groups(dir Direction) []*Group {
	if inv == nil {
		return nil
	}
	if dir == Output {
		return inv.outputs
	}
	return inv.inputs
}

// Group returns the group for providerID in dir.
func (inv *Inventory) Group(dir Direction, providerID string) (*Group, bool) {
	for _, g := range inv.Groups(dir) {
		if g.ProviderID == providerID {
			return g, true
		}
	}
	return nil, false
}

// Devices returns every device in both directions.
func (inv *Inventory) Devices() []*Device {
	if inv == nil {
		return nil
	}
	var out []*Device
	for _, groups := range [][]*Group{inv.inputs, inv.outputs} {
		for _, g := range groups {
			out = append(out, g.Devices...)
		}
	}
	return out
}
