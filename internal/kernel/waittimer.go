package kernel

// Wait blocks a task for the given number of ticks. The task is Suspended
// until the ticks-th following tick, then becomes Waiting. Zero ticks
// blocks nothing: the task stays runnable and the scheduler re-runs.
func (k *Kernel) Wait(id TaskID, ticks uint32) {
	if ticks == 0 {
		k.trap(CallActivate, func() bool {
			t := k.mustTask(id)
			if t.State == Suspended {
				t.State = Waiting
			}
			return true
		})
		return
	}

	k.trap(CallTerminate, func() bool {
		t := k.mustTask(id)
		t.Timer = WaitTimer{Enabled: true, Ticks: ticks}
		t.State = Suspended
		k.emit(k.taskEvent(StatusWait, id))
		return true
	})
}

// updateWaitTimers runs once per tick, already in kernel context. Each
// expiry goes through the dispatcher so the woken task reaches the table.
func (k *Kernel) updateWaitTimers() {
	// the dispatcher re-sorts the table, so walk a snapshot of it
	for _, v := range k.table.Values() {
		t := k.tasks[v.(TaskID)]
		if t.State != Suspended || !t.Timer.Enabled {
			continue
		}
		t.Timer.Ticks--
		if t.Timer.Ticks > 0 {
			continue
		}
		t.Timer.Enabled = false
		t.State = Waiting
		k.metrics.woke()
		k.emit(k.taskEvent(StatusWake, t.ID))
		k.dispatch(CallWaitExpired)
	}
}
