package middleware

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/ports"
)

type relativeDataDir struct {
	next ports.SettingsStore
	base string
}

// NewRelativeDataDir stores data directories below base relative to it, so saved settings
// stay valid when the workspace moves or is shared between machines. Loaded settings always
// carry an absolute path.
func NewRelativeDataDir(base string) Middleware {
	return func(next ports.SettingsStore) ports.SettingsStore {
		return &relativeDataDir{next: next, base: filepath.Clean(base)}
	}
}

func (m *relativeDataDir) Save(ctx context.Context, settings *domain.Settings) error {
	// Clone so the caller's settings keep the absolute path.
	cloned := settings.Clone()
	if filepath.IsAbs(cloned.DataDir) {
		rel, err := filepath.Rel(m.base, cloned.DataDir)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			cloned.DataDir = filepath.ToSlash(rel)
		}
	}
	return m.next.Save(ctx, cloned)
}

func (m *relativeDataDir) Load(ctx context.Context, projectID string) (*domain.Settings, error) {
	settings, err := m.next.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if settings.DataDir != "" && !filepath.IsAbs(settings.DataDir) {
		settings.DataDir = filepath.Join(m.base, filepath.FromSlash(settings.DataDir))
	}
	return settings, nil
}

func (m *relativeDataDir) Delete(ctx context.Context, projectID string) error {
	return m.next.Delete(ctx, projectID)
}

func (m *relativeDataDir) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
