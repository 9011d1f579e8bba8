package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/cftbridge/pkg/adapters/memory"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEditor struct {
	calls  []string
	failOn string
}

func (r *recordingEditor) record(call string) error {
	r.calls = append(r.calls, call)
	if call == r.failOn {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingEditor) AddElement(_ context.Context, e domain.Element, connectors ...domain.Connector) error {
	call := fmt.Sprintf("add-element %d", e.ID)
	for _, c := range connectors {
		call += fmt.Sprintf(" +%d", c.ID)
	}
	return r.record(call)
}

func (r *recordingEditor) UpdateElement(_ context.Context, e domain.Element) error {
	return r.record(fmt.Sprintf("update-element %d", e.ID))
}

func (r *recordingEditor) DeleteElement(_ context.Context, e domain.Element) error {
	return r.record(fmt.Sprintf("delete-element %d", e.ID))
}

func (r *recordingEditor) AddConnector(_ context.Context, c domain.Connector) error {
	return r.record(fmt.Sprintf("add-connector %d", c.ID))
}

func (r *recordingEditor) UpdateConnector(_ context.Context, c domain.Connector) error {
	return r.record(fmt.Sprintf("update-connector %d", c.ID))
}

func (r *recordingEditor) DeleteConnector(_ context.Context, c domain.Connector) error {
	return r.record(fmt.Sprintf("delete-connector %d", c.ID))
}

func testModels() (domain.Model, domain.Model) {
	before := domain.Model{
		Elements: []domain.Element{
			{ID: 1, Name: "Top", Stereotype: "CFT"},
			{ID: 2, Name: "Gate", Stereotype: "FTOR", ParentID: 1},
			{ID: 3, Name: "Old", Stereotype: "FTBasicEvent", ParentID: 1},
		},
		Connectors: []domain.Connector{
			{ID: 10, Stereotype: "FailurePropagation", ClientID: 3, SupplierID: 2},
			{ID: 11, Stereotype: "FailurePropagation", ClientID: 2, SupplierID: 1},
		},
	}
	after := domain.Model{
		Elements: []domain.Element{
			{ID: 1, Name: "Top", Stereotype: "CFT"},
			{ID: 2, Name: "Gate", Stereotype: "FTAND", ParentID: 1},
			{ID: 4, Name: "New", Stereotype: "FTBasicEvent", ParentID: 1},
		},
		Connectors: []domain.Connector{
			{ID: 11, Stereotype: "FailurePropagation", ClientID: 2, SupplierID: 4},
			{ID: 12, Stereotype: "FailurePropagation", ClientID: 4, SupplierID: 2},
			{ID: 13, Stereotype: "FailurePropagation", ClientID: 1, SupplierID: 2},
		},
	}
	return before, after
}

func TestApplyDiff(t *testing.T) {
	ctx := context.Background()

	t.Run("replays changes in editor order", func(t *testing.T) {
		before, after := testModels()
		editor := &recordingEditor{}

		err := ApplyDiff(ctx, editor, nil, domain.Diff(before, after))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"delete-connector 10",
			"delete-element 3",
			"add-element 4 +12",
			"update-element 2",
			"add-connector 13",
			"update-connector 11",
		}, editor.calls)
	})

	t.Run("mirrors changes into the model", func(t *testing.T) {
		before, after := testModels()
		model := memory.NewModelSource(before)

		err := ApplyDiff(ctx, &recordingEditor{}, model, domain.Diff(before, after))
		require.NoError(t, err)

		got, err := model.Snapshot(ctx)
		require.NoError(t, err)
		assert.True(t, domain.Diff(after, got).IsEmpty(), "model should match the new snapshot")
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		before, after := testModels()
		editor := &recordingEditor{failOn: "delete-element 3"}

		err := ApplyDiff(ctx, editor, nil, domain.Diff(before, after))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete element 3")
		assert.Len(t, editor.calls, 2)
	})

	t.Run("leaves the diff untouched", func(t *testing.T) {
		before, after := testModels()
		d := domain.Diff(before, after)

		require.NoError(t, ApplyDiff(ctx, &recordingEditor{}, nil, d))
		assert.Len(t, d.AddedConnectors, 2)
	})
}
