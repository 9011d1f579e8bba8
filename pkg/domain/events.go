package domain

import (
	"context"
	"time"
)

// ErrorCategory groups reported errors the way the host presents them.
type ErrorCategory string

const (
	CategoryConnection ErrorCategory = "ConnectionError"
	CategoryUpdate     ErrorCategory = "UpdateError"
	CategorySettings   ErrorCategory = "SettingsError"
)

// ErrorReport is handed to a ports.ErrorReporter whenever an operation fails.
type ErrorReport struct {
	ProjectID string
	Category  ErrorCategory
	Kind      Kind
	Message   string
	Err       error
}

// MessageEvent describes one message written to the worker.
type MessageEvent struct {
	SessionID string
	Command   string
	Bytes     int
	Records   int
}

// AckEvent describes one acknowledgment wait.
type AckEvent struct {
	SessionID string
	Command   string
	Wait      time.Duration
	Err       error
}

// FlushEvent describes the end of a flush.
type FlushEvent struct {
	ProjectID  string
	FullResync bool
	Records    int
	Messages   int
	Duration   time.Duration
	Err        error
}

// LifecycleHooks defines callbacks for synchronization observability.
// Every field is optional.
type LifecycleHooks struct {
	OnStateChange func(ctx context.Context, projectID string, from, to State)
	OnMessage     func(ctx context.Context, e *MessageEvent)
	OnAck         func(ctx context.Context, e *AckEvent)
	OnFlush       func(ctx context.Context, e *FlushEvent)
	OnPending     func(ctx context.Context, projectID string, pending int)
}
