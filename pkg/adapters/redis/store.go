package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/mitchellh/mapstructure"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.SettingsStore using one Redis hash per project.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for settings.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "cftbridge:settings:",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(projectID string) string {
	return s.prefix + projectID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save writes the settings as a hash and indexes the project.
func (s *Store) Save(ctx context.Context, settings *domain.Settings) error {
	fields := make(map[string]any)
	if err := mapstructure.Decode(settings, &fields); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(settings.ProjectID))
	pipe.HSet(ctx, s.key(settings.ProjectID), fields)
	pipe.SAdd(ctx, s.indexKey(), settings.ProjectID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load reads the settings hash. Redis returns every field as a string, so the decoder
// runs with weakly typed input to restore the flags.
func (s *Store) Load(ctx context.Context, projectID string) (*domain.Settings, error) {
	fields, err := s.client.HGetAll(ctx, s.key(projectID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSettingsNotFound
	}

	var settings domain.Settings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &settings, nil
}

// Delete removes the settings.
func (s *Store) Delete(ctx context.Context, projectID string) error {
	pipe := s.client.TxPipeline()

	pipe.Del(ctx, s.key(projectID))
	pipe.SRem(ctx, s.indexKey(), projectID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the indexed projects in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	projects, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	sort.Strings(projects)
	return projects, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
