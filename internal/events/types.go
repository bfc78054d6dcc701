package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskName() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypePhaseAttempt  = "task.phase_attempt"
	EventTypeProxyRotated  = "task.proxy_rotated"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeRunProgress   = "run.progress"
)

// TaskStartedEvent is published when a task's state machine starts.
type TaskStartedEvent struct {
	Name       string
	ProductIDs []uint64
	PriceLimit uint64
	Timestamp  time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskName() string  { return e.Name }

// PhaseAttemptEvent is published after every single phase attempt,
// successful or not.
type PhaseAttemptEvent struct {
	Name      string
	Phase     string
	Attempt   int
	Err       error // nil on success
	Detail    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e PhaseAttemptEvent) EventType() string { return EventTypePhaseAttempt }
func (e PhaseAttemptEvent) TaskName() string  { return e.Name }

// ProxyRotatedEvent is published when a task switches egress proxy.
type ProxyRotatedEvent struct {
	Name      string
	Proxy     string // host:port, credentials stripped
	Timestamp time.Time
}

func (e ProxyRotatedEvent) EventType() string { return EventTypeProxyRotated }
func (e ProxyRotatedEvent) TaskName() string  { return e.Name }

// TaskCompletedEvent is published when an order was created.
type TaskCompletedEvent struct {
	Name      string
	Order     string // Raw order response
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskName() string  { return e.Name }

// TaskFailedEvent is published when a task's unit of work ends without an order.
type TaskFailedEvent struct {
	Name      string
	Err       error
	Crashed   bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskName() string  { return e.Name }

// RunProgressEvent is published whenever a task finishes.
type RunProgressEvent struct {
	Total     int
	Succeeded int
	Failed    int
	Running   int
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskName() string  { return "" }
