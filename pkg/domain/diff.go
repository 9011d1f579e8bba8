package domain

import (
	"reflect"
	"sort"
)

// ModelDiff represents the changes between two model snapshots.
// Deleted entries carry the old value, since deletions are encoded from it.
type ModelDiff struct {
	AddedElements   []Element
	UpdatedElements []Element
	DeletedElements []Element

	AddedConnectors   []Connector
	UpdatedConnectors []Connector
	DeletedConnectors []Connector
}

// Diff calculates the difference between oldModel and newModel. Entities are matched by
// id; every list in the result is sorted by id.
func Diff(oldModel, newModel Model) *ModelDiff {
	d := &ModelDiff{}
	d.AddedElements, d.UpdatedElements, d.DeletedElements = diffEntities(oldModel.Elements, newModel.Elements,
		func(e Element) int { return e.ID })
	d.AddedConnectors, d.UpdatedConnectors, d.DeletedConnectors = diffEntities(oldModel.Connectors, newModel.Connectors,
		func(c Connector) int { return c.ID })
	return d
}

func diffEntities[T any](old, new []T, id func(T) int) (added, updated, deleted []T) {
	before := make(map[int]T, len(old))
	for _, v := range old {
		before[id(v)] = v
	}
	after := make(map[int]T, len(new))
	for _, v := range new {
		after[id(v)] = v
	}

	// Check for Added or Modified
	for k, newVal := range after {
		oldVal, exists := before[k]
		if !exists {
			added = append(added, newVal)
		} else if !reflect.DeepEqual(oldVal, newVal) {
			updated = append(updated, newVal)
		}
	}

	// Check for Deletions
	for k, oldVal := range before {
		if _, exists := after[k]; !exists {
			deleted = append(deleted, oldVal)
		}
	}

	byID := func(s []T) {
		sort.Slice(s, func(i, j int) bool { return id(s[i]) < id(s[j]) })
	}
	byID(added)
	byID(updated)
	byID(deleted)
	return added, updated, deleted
}

// OutgoingAdded removes and returns the added connectors whose client is elementID, so they
// can travel with the element that introduces them.
func (d *ModelDiff) OutgoingAdded(elementID int) []Connector {
	var out, rest []Connector
	for _, c := range d.AddedConnectors {
		if c.ClientID == elementID {
			out = append(out, c)
		} else {
			rest = append(rest, c)
		}
	}
	d.AddedConnectors = rest
	return out
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *ModelDiff) IsEmpty() bool {
	return len(d.AddedElements) == 0 &&
		len(d.UpdatedElements) == 0 &&
		len(d.DeletedElements) == 0 &&
		len(d.AddedConnectors) == 0 &&
		len(d.UpdatedConnectors) == 0 &&
		len(d.DeletedConnectors) == 0
}

// Len returns the number of changed entities.
func (d *ModelDiff) Len() int {
	return len(d.AddedElements) + len(d.UpdatedElements) + len(d.DeletedElements) +
		len(d.AddedConnectors) + len(d.UpdatedConnectors) + len(d.DeletedConnectors)
}
