package kernel

import (
	"testing"
)

func startWith(t *testing.T, k *Kernel, ids ...TaskID) {
	t.Helper()
	for _, id := range ids {
		k.Activate(id)
	}
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}
}

func TestWaitExpiresAfterExactTicks(t *testing.T) {
	for _, ticks := range []uint32{1, 2, 3, 7} {
		var wakes int
		k := newTestKernel(t, WithObserver(func(ev StatusEvent) {
			if ev.Kind == StatusWake {
				wakes++
			}
		}))
		a := mkTask(t, k, "a", 3)
		startWith(t, k, a)
		k.Tick()
		if k.Current() != a {
			t.Fatalf("current = %d, want a", k.Current())
		}

		k.Wait(a, ticks)
		if k.Current() != k.Idle() {
			t.Fatalf("ticks=%d: current = %d after Wait, want idle", ticks, k.Current())
		}
		for i := uint32(1); i < ticks; i++ {
			k.Tick()
			if s := k.Task(a).State; s != Suspended {
				t.Fatalf("ticks=%d: state after %d ticks = %v, want Suspended", ticks, i, s)
			}
		}

		k.Tick()
		tk := k.Task(a)
		if tk.Timer.Enabled {
			t.Errorf("ticks=%d: timer still enabled", ticks)
		}
		if k.Current() != a || tk.State != Running {
			t.Fatalf("ticks=%d: current = %d state %v, want a Running", ticks, k.Current(), tk.State)
		}

		for i := 0; i < 10; i++ {
			k.Tick()
		}
		if wakes != 1 {
			t.Errorf("ticks=%d: %d wake events, want 1", ticks, wakes)
		}
	}
}

func TestWaitZeroDoesNotBlock(t *testing.T) {
	k := newTestKernel(t)
	a := mkTask(t, k, "a", 3)
	startWith(t, k, a)
	k.Tick()

	k.Wait(a, 0)
	tk := k.Task(a)
	if tk.State == Suspended || tk.Timer.Enabled {
		t.Fatalf("Wait(0) blocked the task: %+v", tk.Timer)
	}
	if k.Current() != a {
		t.Fatalf("current = %d, want a", k.Current())
	}
}

func TestTerminateCancelsWait(t *testing.T) {
	k := newTestKernel(t)
	a := mkTask(t, k, "a", 3)
	startWith(t, k, a)
	k.Tick()

	k.Wait(a, 2)
	k.Terminate(a)
	for i := 0; i < 5; i++ {
		k.Tick()
	}
	if s := k.Task(a).State; s != Suspended {
		t.Fatalf("terminated task woke up: %v", s)
	}
}

func TestWaitingTaskSharesBandOnWake(t *testing.T) {
	k := newTestKernel(t)
	a := mkTask(t, k, "a", 3)
	b := mkTask(t, k, "b", 3)
	startWith(t, k, a, b)
	k.Tick() // a
	k.Wait(a, 2)
	if k.Current() != b {
		t.Fatalf("current = %d, want b", k.Current())
	}

	k.Tick() // a: 1 tick left, b keeps running
	if k.Current() != b {
		t.Fatalf("current = %d, want b", k.Current())
	}
	k.Tick() // a wakes into b's band
	seen := map[TaskID]bool{}
	for i := 0; i < 4; i++ {
		seen[k.Current()] = true
		k.Tick()
	}
	if !seen[a] || !seen[b] || seen[k.Idle()] {
		t.Fatalf("after wake ran %v", seen)
	}
}

// Two wake-ups in the same tick while a preempted task is pending must
// not lose the higher priority task.
func TestWakeDuringTickKeepsHigherPriority(t *testing.T) {
	k := newTestKernel(t)
	low := mkTask(t, k, "low", 5)
	high := mkTask(t, k, "high", 1)
	startWith(t, k, low, high)
	k.Tick()
	if k.Current() != high {
		t.Fatalf("current = %d, want high", k.Current())
	}
	k.Wait(high, 1)
	if k.Current() != low {
		t.Fatalf("current = %d, want low", k.Current())
	}
	k.Tick()
	if k.Current() != high {
		t.Fatalf("after wake current = %d, want high", k.Current())
	}
	k.Tick()
	if k.Current() != high {
		t.Fatalf("high lost the CPU to %d", k.Current())
	}
	if s := k.Task(low).State; s != Waiting {
		t.Errorf("low state = %v, want Waiting", s)
	}
}
