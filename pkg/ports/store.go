package ports

import (
	"context"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// SettingsStore persists synchronization settings keyed by project identifier.
type SettingsStore interface {
	// Load retrieves the settings of a project.
	// Returns domain.ErrSettingsNotFound if nothing was saved for it yet.
	Load(ctx context.Context, projectID string) (*domain.Settings, error)

	// Save persists the settings under settings.ProjectID.
	Save(ctx context.Context, settings *domain.Settings) error

	// Delete removes the settings of a project. Deleting a missing project is not an error.
	Delete(ctx context.Context, projectID string) error

	// List returns the identifiers of every project with saved settings.
	List(ctx context.Context) ([]string, error)
}
