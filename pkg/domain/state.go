package domain

import "time"

// State is the lifecycle state of a synchronization coordinator.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFlushing
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFlushing:
		return "flushing"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Status is a point-in-time view of a coordinator, safe to hand to other goroutines.
type Status struct {
	ProjectID      string    `json:"project_id"`
	SessionID      string    `json:"session_id,omitempty"`
	State          string    `json:"state"`
	Pending        int       `json:"pending"`
	RunningTask    string    `json:"running_task,omitempty"`
	QueuedTasks    int       `json:"queued_tasks"`
	LastUpdate     string    `json:"last_update"`
	DataDir        string    `json:"data_dir"`
	ContinuousSync bool      `json:"continuous_update"`
	Analysis       bool      `json:"continuous_analysis"`
	LastError      string    `json:"last_error,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}
