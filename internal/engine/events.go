package engine

import (
	"syscall"
	"time"
)

// EventType captures high level lifecycle notifications emitted by
// supervisors and the session.
type EventType string

const (
	EventTypeSpawned    EventType = "spawned"
	EventTypeEscalating EventType = "escalating"
	EventTypeRestarted  EventType = "restarted"
	EventTypeOomKilled  EventType = "oom_killed"
	EventTypeExited     EventType = "exited"
	EventTypeFailed     EventType = "failed"
	EventTypeSummary    EventType = "summary"
)

// Restart and failure reasons attached to events.
const (
	ReasonOomKill       = "oom_kill"
	ReasonSegfault      = "segfault"
	ReasonBusError      = "bus_error"
	ReasonSpawnFailed   = "spawn_failed"
	ReasonWaitExhausted = "wait_exhausted"
)

// Event represents a single lifecycle notification.
type Event struct {
	Timestamp time.Time
	Stressor  string
	Instance  uint32
	Type      EventType
	Message   string
	Reason    string
	Pid       int
	Signal    syscall.Signal
	Status    int
	Err       error
}

func sendEvent(events chan<- Event, evt Event) {
	if events == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	events <- evt
}
