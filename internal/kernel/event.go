// internal/kernel/event.go

package kernel

import (
	"time"
)

// StatusKind represents the type of kernel event
type StatusKind int

const (
	StatusTick StatusKind = iota
	StatusCreate
	StatusActivate
	StatusTerminate
	StatusWait
	StatusWake
	StatusDispatch
	StatusMutexGrant
	StatusMutexBlock
	StatusMutexRelease
	StatusRejected
)

// StatusEvent is emitted every tick and on every state change. Events are
// delivered from kernel-call context; observers must not call back into
// the kernel.
type StatusEvent struct {
	Time     time.Time
	Tick     uint64
	Kind     StatusKind
	TaskID   TaskID
	TaskName string
	Prev     TaskID // outgoing task of a dispatch
	Mutex    MutexID
	Priority uint8
	Err      error
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusTick:
		return "Tick"
	case StatusCreate:
		return "Create"
	case StatusActivate:
		return "Activate"
	case StatusTerminate:
		return "Terminate"
	case StatusWait:
		return "Wait"
	case StatusWake:
		return "Wake"
	case StatusDispatch:
		return "Dispatch"
	case StatusMutexGrant:
		return "MutexGrant"
	case StatusMutexBlock:
		return "MutexBlock"
	case StatusMutexRelease:
		return "MutexRelease"
	case StatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// emit stamps and forwards an event to the observer, if any.
func (k *Kernel) emit(ev StatusEvent) {
	if k.observer == nil {
		return
	}
	ev.Time = time.Now()
	ev.Tick = k.ticks
	if ev.TaskID != NoTask && int(ev.TaskID) < len(k.tasks) {
		ev.TaskName = k.tasks[ev.TaskID].Name.String()
		ev.Priority = k.tasks[ev.TaskID].Priority
	}
	k.observer(ev)
}

func (k *Kernel) taskEvent(kind StatusKind, id TaskID) StatusEvent {
	return StatusEvent{Kind: kind, TaskID: id, Prev: NoTask, Mutex: NoMutex}
}
