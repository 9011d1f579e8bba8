package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSettingsStoreContract runs a suite of tests to verify that a SettingsStore
// implementation adheres to the defined interface contract.
func RunSettingsStoreContract(t *testing.T, store SettingsStore) {
	ctx := context.Background()
	projectID := "contract-project-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		settings := domain.NewSettings(projectID, "/var/lib/cft")
		settings.ContinuousAnalysis = true
		settings.MarkUpdated(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

		require.NoError(t, store.Save(ctx, settings), "Save should not return error")

		loaded, err := store.Load(ctx, projectID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, settings.ProjectID, loaded.ProjectID)
		assert.Equal(t, settings.DataDir, loaded.DataDir)
		assert.Equal(t, settings.LastUpdate, loaded.LastUpdate)
		assert.True(t, loaded.ContinuousUpdate)
		assert.True(t, loaded.ContinuousAnalysis)
		assert.False(t, loaded.NeverSynced())
	})

	t.Run("Overwrite", func(t *testing.T) {
		settings := domain.NewSettings(projectID, "/var/lib/cft")
		settings.ContinuousUpdate = false
		require.NoError(t, store.Save(ctx, settings))

		loaded, err := store.Load(ctx, projectID)
		require.NoError(t, err)
		assert.False(t, loaded.ContinuousUpdate)
		assert.True(t, loaded.NeverSynced())
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+projectID)
		assert.ErrorIs(t, err, domain.ErrSettingsNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSettings(projectID, "/tmp")))

		require.NoError(t, store.Delete(ctx, projectID), "Delete should not return error")

		_, err := store.Load(ctx, projectID)
		assert.ErrorIs(t, err, domain.ErrSettingsNotFound, "Load after Delete should return ErrSettingsNotFound")

		assert.NoError(t, store.Delete(ctx, projectID), "Deleting twice should be harmless")
	})

	t.Run("List", func(t *testing.T) {
		id1 := projectID + "-1"
		id2 := projectID + "-2"
		_ = store.Save(ctx, domain.NewSettings(id1, "/tmp"))
		_ = store.Save(ctx, domain.NewSettings(id2, "/tmp"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		projects, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, projects, id1)
		assert.Contains(t, projects, id2)
	})
}
