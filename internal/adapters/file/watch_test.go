package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("elements:\n  - {id: 1, name: Pump, stereotype: CFT}\n"), 0644))

	initial, err := LoadModel(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var diffs []*domain.ModelDiff

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := NewModelWatcher(path, WithDebounce(20*time.Millisecond))
	go func() {
		done <- w.Watch(ctx, initial, func(_ domain.Model, d *domain.ModelDiff) {
			mu.Lock()
			diffs = append(diffs, d)
			mu.Unlock()
		})
	}()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(diffs)
	}

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)

	t.Run("Reports Changes", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(
			"elements:\n  - {id: 1, name: Pump, stereotype: CFT}\n  - {id: 2, name: Leak, stereotype: FTBasicEvent}\n"), 0644))

		require.Eventually(t, func() bool { return count() == 1 }, 3*time.Second, 10*time.Millisecond)
		mu.Lock()
		d := diffs[0]
		mu.Unlock()
		require.Len(t, d.AddedElements, 1)
		assert.Equal(t, 2, d.AddedElements[0].ID)
	})

	t.Run("Skips Invalid Versions", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("elements: [unclosed"), 0644))
		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, 1, count())

		require.NoError(t, os.WriteFile(path, []byte("elements:\n  - {id: 1, name: Pump, stereotype: CFT}\n"), 0644))
		require.Eventually(t, func() bool { return count() == 2 }, 3*time.Second, 10*time.Millisecond)
		mu.Lock()
		d := diffs[1]
		mu.Unlock()
		require.Len(t, d.DeletedElements, 1)
		assert.Equal(t, "Leak", d.DeletedElements[0].Name)
	})

	t.Run("Ignores Other Files", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 2, count())
	})
}
