package kernel

import "sync"

// Port is the hardware boundary: the privilege trap, the timer interrupt
// entry and the deferred context switch. Trap and Interrupt share one
// serialization domain; a pended switch must complete before the
// outermost of them returns.
type Port interface {
	// Trap runs fn in kernel-call context on behalf of a task request.
	Trap(call Call, fn func())
	// Interrupt runs fn in the same context on behalf of the timer.
	Interrupt(fn func())
	// PendSwitch requests a context switch; perform saves the outgoing
	// task and adopts the decided next one.
	PendSwitch(perform func())
}

// LockPort is the host port: one mutex plays the role of the masked
// exception level, and the pended switch runs as the context unwinds.
type LockPort struct {
	mu      sync.Mutex
	pending func()
}

func (p *LockPort) Trap(_ Call, fn func()) { p.enter(fn) }

func (p *LockPort) Interrupt(fn func()) { p.enter(fn) }

// PendSwitch must be called from inside Trap or Interrupt.
func (p *LockPort) PendSwitch(perform func()) { p.pending = perform }

func (p *LockPort) enter(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn()
	if perform := p.pending; perform != nil {
		p.pending = nil
		perform()
	}
}
