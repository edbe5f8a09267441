package kernel

import (
	"github.com/pkg/errors"
)

// MutexID is a stable handle into the kernel's mutex arena.
type MutexID int

// NoMutex is the empty handle.
const NoMutex MutexID = -1

// Ceiling configures priority-ceiling promotion for a mutex holder.
type Ceiling struct {
	Enabled  bool
	Priority uint8
}

// MutexConfig is what firmware declares for a mutex at boot.
type MutexConfig struct {
	Name    string
	Payload []byte // guarded data, never interpreted by the kernel
	Ceiling Ceiling
}

// Mutex is a two-party lock: one holder and at most one pending user.
type Mutex struct {
	ID      MutexID
	Name    Label
	Payload []byte
	Holder  TaskID
	Waiter  TaskID
	Ceiling Ceiling
}

// CreateMutex registers a mutex. Like tasks, mutexes are declared before
// Start and live for the life of the kernel.
func (k *Kernel) CreateMutex(mc MutexConfig) (id MutexID, err error) {
	id = NoMutex
	k.port.Interrupt(func() {
		if k.running {
			err = errors.Wrapf(ErrKernelStarted, "create mutex %q", mc.Name)
			return
		}
		m := &Mutex{
			ID:      MutexID(len(k.mutexes)),
			Name:    NewLabel(mc.Name),
			Payload: mc.Payload,
			Holder:  NoTask,
			Waiter:  NoTask,
			Ceiling: Ceiling{Enabled: mc.Ceiling.Enabled, Priority: mc.Ceiling.Priority},
		}
		k.mutexes = append(k.mutexes, m)
		id = m.ID
	})
	return id, err
}

// AcquireMutex requests m for task id. A free mutex is granted at once
// (granted is true). A held mutex records the task as its single pending
// user and suspends it until ReleaseMutex hands the mutex over (granted is
// false). A second pending user, or the holder asking again, is refused.
func (k *Kernel) AcquireMutex(id TaskID, mid MutexID) (granted bool, err error) {
	k.trap(CallAcquireMutex, func() bool {
		t, m := k.mustTask(id), k.mustMutex(mid)

		switch {
		case m.Holder == NoTask:
			m.Holder = id
			granted = true
			ev := k.taskEvent(StatusMutexGrant, id)
			ev.Mutex = mid
			k.emit(ev)
			// a promoted holder must outrank its band right away
			return k.applyCeilings(t)

		case m.Holder == id:
			err = errors.Wrapf(ErrMutexAlreadyAcquired, "task %d, mutex %q", id, m.Name)
			k.reject(id, mid, err)
			return false

		case m.Waiter == NoTask:
			m.Waiter = id
			t.State = Suspended
			ev := k.taskEvent(StatusMutexBlock, id)
			ev.Mutex = mid
			k.emit(ev)
			return true

		default:
			err = errors.Wrapf(ErrMutexCapacityExceeded, "task %d, mutex %q held by %d, pending %d",
				id, m.Name, m.Holder, m.Waiter)
			k.reject(id, mid, err)
			return false
		}
	})
	return granted, err
}

// ReleaseMutex gives up m. The holder drops back to the highest of its
// base priority and the ceilings it still holds, in whatever order the
// mutexes are released; a pending user becomes the holder and runnable.
// Releasing a free mutex does nothing.
func (k *Kernel) ReleaseMutex(mid MutexID) {
	k.trap(CallReleaseMutex, func() bool {
		m := k.mustMutex(mid)
		if m.Holder == NoTask {
			return false
		}

		holder := k.tasks[m.Holder]
		m.Holder, m.Waiter = m.Waiter, NoTask
		restored := k.applyCeilings(holder)
		ev := k.taskEvent(StatusMutexRelease, holder.ID)
		ev.Mutex = mid
		k.emit(ev)

		if m.Holder == NoTask {
			return restored
		}

		w := k.tasks[m.Holder]
		w.State = Waiting
		k.applyCeilings(w)

		ev = k.taskEvent(StatusMutexGrant, w.ID)
		ev.Mutex = mid
		k.emit(ev)
		return true
	})
}

// applyCeilings sets t's priority to the highest of its base priority and
// the ceilings of the mutexes it holds, and reports whether it changed.
func (k *Kernel) applyCeilings(t *Task) bool {
	prio := t.Base
	for _, m := range k.mutexes {
		if m.Holder == t.ID && m.Ceiling.Enabled && m.Ceiling.Priority < prio {
			prio = m.Ceiling.Priority
		}
	}
	changed := prio != t.Priority
	t.Priority = prio
	return changed
}

// pendingOn returns the mutex the task is queued on, or NoMutex.
func (k *Kernel) pendingOn(id TaskID) MutexID {
	for _, m := range k.mutexes {
		if m.Waiter == id {
			return m.ID
		}
	}
	return NoMutex
}

func (k *Kernel) reject(id TaskID, mid MutexID, err error) {
	k.metrics.reject(errors.Cause(err).Error())
	ev := k.taskEvent(StatusRejected, id)
	ev.Mutex = mid
	ev.Err = err
	k.emit(ev)
	k.log.WithError(err).Warn("mutex request refused")
}

func (k *Kernel) mustMutex(id MutexID) *Mutex {
	if id < 0 || int(id) >= len(k.mutexes) {
		panic(errors.Wrapf(ErrUnknownMutex, "mutex %d", id))
	}
	return k.mutexes[id]
}

// Mutex returns a copy of a mutex's state.
func (k *Kernel) Mutex(id MutexID) Mutex {
	var m Mutex
	k.inspect(func() { m = *k.mustMutex(id) })
	return m
}

// LookupMutex finds a mutex by name.
func (k *Kernel) LookupMutex(name string) (MutexID, bool) {
	id := NoMutex
	k.inspect(func() {
		for _, m := range k.mutexes {
			if m.Name.Equal(name) {
				id = m.ID
				return
			}
		}
	})
	return id, id != NoMutex
}
