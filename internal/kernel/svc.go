package kernel

import (
	"github.com/sirupsen/logrus"
)

// Call identifies a kernel-call kind. The values are the trap numbers a
// hardware port decodes.
type Call uint8

const (
	CallActivate Call = iota
	CallTerminate
	CallWaitExpired
	CallAcquireMutex
	CallReleaseMutex
)

func (c Call) String() string {
	switch c {
	case CallActivate:
		return "activate"
	case CallTerminate:
		return "terminate"
	case CallWaitExpired:
		return "wait-expired"
	case CallAcquireMutex:
		return "acquire-mutex"
	case CallReleaseMutex:
		return "release-mutex"
	default:
		return "unknown"
	}
}

// trap enters kernel-call context through the port and runs the request.
// The request reports whether the scheduling state changed enough to need
// the dispatcher.
func (k *Kernel) trap(call Call, request func() bool) {
	k.port.Trap(call, func() {
		if request() {
			k.dispatch(call)
		}
	})
}

// dispatch is the single serialization point: every call, from a task or
// from the tick, rebuilds the table and queue and, once the kernel runs
// anything but the idle task, decides the next task and pends the switch.
func (k *Kernel) dispatch(call Call) {
	k.metrics.call(call)
	k.rebuild()

	if k.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		k.log.WithFields(logrus.Fields{
			"call":    call.String(),
			"current": k.current,
			"ready":   k.ready.ids(),
		}).Debug("kernel call")
	}

	if k.running && k.current != k.idle {
		k.decideNext()
		k.port.PendSwitch(k.contextSwitch)
	}
}

// contextSwitch is the body of the switch exception: the outgoing task's
// registers already sit on its own stack at SP, so only the handle moves.
func (k *Kernel) contextSwitch() {
	if k.next == NoTask {
		return
	}
	prev, next := k.current, k.next
	k.next = NoTask
	k.current = next
	if prev == next {
		return
	}

	k.metrics.switched()
	ev := k.taskEvent(StatusDispatch, next)
	ev.Prev = prev
	k.emit(ev)
	k.log.WithFields(logrus.Fields{"from": prev, "to": next}).Debug("context switch")
}
