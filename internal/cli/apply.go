package cli

import (
	"context"
	"fmt"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// Editor receives single-entity edits, as a host editor would report them.
type Editor interface {
	AddElement(ctx context.Context, e domain.Element, connectors ...domain.Connector) error
	UpdateElement(ctx context.Context, e domain.Element) error
	DeleteElement(ctx context.Context, e domain.Element) error
	AddConnector(ctx context.Context, c domain.Connector) error
	UpdateConnector(ctx context.Context, c domain.Connector) error
	DeleteConnector(ctx context.Context, c domain.Connector) error
}

// ModelWriter mirrors edits into the model used for full resynchronizations.
type ModelWriter interface {
	PutElement(e domain.Element)
	RemoveElement(id int)
	PutConnector(c domain.Connector)
	RemoveConnector(id int)
}

// ApplyDiff replays d as editor events: connector deletions first, then element
// deletions, additions (with the connectors they introduce) and updates, then the
// remaining connector additions and updates. It stops at the first failure.
// model may be nil.
func ApplyDiff(ctx context.Context, editor Editor, model ModelWriter, d *domain.ModelDiff) error {
	if model != nil {
		for _, c := range d.DeletedConnectors {
			model.RemoveConnector(c.ID)
		}
		for _, e := range d.DeletedElements {
			model.RemoveElement(e.ID)
		}
		for _, e := range append(append([]domain.Element{}, d.AddedElements...), d.UpdatedElements...) {
			model.PutElement(e)
		}
		for _, c := range append(append([]domain.Connector{}, d.AddedConnectors...), d.UpdatedConnectors...) {
			model.PutConnector(c)
		}
	}

	for _, c := range d.DeletedConnectors {
		if err := editor.DeleteConnector(ctx, c); err != nil {
			return fmt.Errorf("delete connector %d: %w", c.ID, err)
		}
	}
	for _, e := range d.DeletedElements {
		if err := editor.DeleteElement(ctx, e); err != nil {
			return fmt.Errorf("delete element %d: %w", e.ID, err)
		}
	}

	pending := *d
	pending.AddedConnectors = append([]domain.Connector(nil), d.AddedConnectors...)
	for _, e := range d.AddedElements {
		if err := editor.AddElement(ctx, e, pending.OutgoingAdded(e.ID)...); err != nil {
			return fmt.Errorf("add element %d: %w", e.ID, err)
		}
	}
	for _, e := range d.UpdatedElements {
		if err := editor.UpdateElement(ctx, e); err != nil {
			return fmt.Errorf("update element %d: %w", e.ID, err)
		}
	}
	for _, c := range pending.AddedConnectors {
		if err := editor.AddConnector(ctx, c); err != nil {
			return fmt.Errorf("add connector %d: %w", c.ID, err)
		}
	}
	for _, c := range d.UpdatedConnectors {
		if err := editor.UpdateConnector(ctx, c); err != nil {
			return fmt.Errorf("update connector %d: %w", c.ID, err)
		}
	}
	return nil
}
