package file

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/cftbridge/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ModelSource implements ports.ModelSource by reading a YAML model export.
// The file is read again on every Snapshot so edits are picked up by the next full resync.
//
//	elements:
//	  - {id: 7, name: Pump, stereotype: FT}
//	connectors:
//	  - {id: 20, stereotype: FailurePropagation, client_id: 8, supplier_id: 7}
type ModelSource struct {
	Path string
}

// NewModelSource reads the model at path.
func NewModelSource(path string) *ModelSource {
	return &ModelSource{Path: path}
}

// Snapshot parses the model file.
func (m *ModelSource) Snapshot(ctx context.Context) (domain.Model, error) {
	return LoadModel(m.Path)
}

// LoadModel parses a YAML model file.
func LoadModel(path string) (domain.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Model{}, fmt.Errorf("failed to read model file: %w", err)
	}

	var model domain.Model
	if err := yaml.Unmarshal(data, &model); err != nil {
		return domain.Model{}, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}

	seen := make(map[int]bool, len(model.Elements))
	for _, e := range model.Elements {
		if seen[e.ID] {
			return domain.Model{}, fmt.Errorf("model file %s: duplicate element id %d", path, e.ID)
		}
		seen[e.ID] = true
	}
	return model, nil
}
