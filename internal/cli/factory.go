package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/cftbridge"
	"github.com/aretw0/cftbridge/internal/adapters/file"
	"github.com/aretw0/cftbridge/pkg/adapters/memory"
	"github.com/aretw0/cftbridge/pkg/adapters/redis"
	"github.com/aretw0/cftbridge/pkg/channel"
	"github.com/aretw0/cftbridge/pkg/persistence/middleware"
	"github.com/aretw0/cftbridge/pkg/ports"
)

// Store backends selectable with --store.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Options holds the flags shared by every command.
type Options struct {
	Dir           string
	Debug         bool
	LogLevel      string
	LogJSON       bool
	Store         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Lock guards open projects with a Redis lock. Requires the redis store.
	Lock bool

	BindAddress    string
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
}

// NewStore builds the settings store selected by opts. Data directories inside the
// workspace are stored relative to it. The returned close function is never nil.
func NewStore(opts Options) (ports.SettingsStore, ports.DistributedLocker, func() error, error) {
	noop := func() error { return nil }
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, noop, fmt.Errorf("invalid path: %w", err)
	}
	relative := middleware.NewRelativeDataDir(absDir)

	switch opts.Store {
	case "", StoreFile:
		return relative(file.New(filepath.Join(absDir, cftbridge.SettingsDir))), nil, noop, nil

	case StoreMemory:
		return relative(memory.NewStore()), nil, noop, nil

	case StoreRedis:
		if opts.RedisAddr == "" {
			return nil, nil, noop, fmt.Errorf("--redis-addr is required for the redis store")
		}
		store := redis.New(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		var locker ports.DistributedLocker
		if opts.Lock {
			locker = redis.NewLocker(store.Client(), "cftbridge:")
		}
		return relative(store), locker, store.Close, nil
	}
	return nil, nil, noop, fmt.Errorf("unknown store %q (want %s, %s or %s)", opts.Store, StoreFile, StoreRedis, StoreMemory)
}

// NewBridge initializes a Bridge with standard CLI conventions.
func NewBridge(opts Options, logger *slog.Logger, extra ...cftbridge.Option) (*cftbridge.Bridge, func() error, error) {
	store, locker, closeStore, err := NewStore(opts)
	if err != nil {
		return nil, closeStore, err
	}

	var channelOpts []channel.Option
	if opts.BindAddress != "" {
		channelOpts = append(channelOpts, channel.WithBindAddress(opts.BindAddress))
	}
	if opts.ConnectTimeout > 0 {
		channelOpts = append(channelOpts, channel.WithConnectTimeout(opts.ConnectTimeout))
	}
	if opts.AckTimeout > 0 {
		channelOpts = append(channelOpts, channel.WithAckTimeout(opts.AckTimeout))
	}

	bridgeOpts := []cftbridge.Option{
		cftbridge.WithLogger(logger),
		cftbridge.WithSettingsStore(store),
		cftbridge.WithChannelOptions(channelOpts...),
	}
	if locker != nil {
		bridgeOpts = append(bridgeOpts, cftbridge.WithLocker(locker))
	}
	bridgeOpts = append(bridgeOpts, extra...)

	bridge, err := cftbridge.New(opts.Dir, bridgeOpts...)
	if err != nil {
		_ = closeStore()
		return nil, func() error { return nil }, fmt.Errorf("error initializing bridge: %w", err)
	}
	return bridge, closeStore, nil
}
