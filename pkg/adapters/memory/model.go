package memory

import (
	"context"
	"sync"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// ModelSource implements ports.ModelSource over a model held in memory.
// Safe for concurrent use.
type ModelSource struct {
	mu    sync.RWMutex
	model domain.Model
}

// NewModelSource creates a source serving m.
func NewModelSource(m domain.Model) *ModelSource {
	return &ModelSource{model: m}
}

// Snapshot returns a copy of the model.
func (s *ModelSource) Snapshot(ctx context.Context) (domain.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Model{
		Elements:   append([]domain.Element(nil), s.model.Elements...),
		Connectors: append([]domain.Connector(nil), s.model.Connectors...),
	}, nil
}

// PutElement inserts e or replaces the element with the same ID.
func (s *ModelSource) PutElement(e domain.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.model.Elements {
		if s.model.Elements[i].ID == e.ID {
			s.model.Elements[i] = e
			return
		}
	}
	s.model.Elements = append(s.model.Elements, e)
}

// RemoveElement removes the element with the given ID and every connector touching it.
func (s *ModelSource) RemoveElement(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elements := s.model.Elements[:0]
	for _, e := range s.model.Elements {
		if e.ID != id {
			elements = append(elements, e)
		}
	}
	s.model.Elements = elements

	connectors := s.model.Connectors[:0]
	for _, c := range s.model.Connectors {
		if c.ClientID != id && c.SupplierID != id {
			connectors = append(connectors, c)
		}
	}
	s.model.Connectors = connectors
}

// PutConnector inserts c or replaces the connector with the same ID.
func (s *ModelSource) PutConnector(c domain.Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.model.Connectors {
		if s.model.Connectors[i].ID == c.ID {
			s.model.Connectors[i] = c
			return
		}
	}
	s.model.Connectors = append(s.model.Connectors, c)
}

// RemoveConnector removes the connector with the given ID.
func (s *ModelSource) RemoveConnector(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	connectors := s.model.Connectors[:0]
	for _, c := range s.model.Connectors {
		if c.ID != id {
			connectors = append(connectors, c)
		}
	}
	s.model.Connectors = connectors
}
