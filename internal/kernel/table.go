package kernel

import (
	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/emirpasic/gods/utils"
	"github.com/pkg/errors"
)

// byPriority orders handles by ascending priority, then by creation order.
// It is a total order, so the insertion sort below is stable for free.
func (k *Kernel) byPriority(a, b interface{}) int {
	ta, tb := k.tasks[a.(TaskID)], k.tasks[b.(TaskID)]
	if c := utils.UInt8Comparator(ta.Priority, tb.Priority); c != 0 {
		return c
	}
	return utils.IntComparator(int(ta.ID), int(tb.ID))
}

// sortTable insertion-sorts the scheduling table in place. The table is
// nearly sorted between rebuilds, which is the insertion sort's best case.
func sortTable(table *arraylist.List, cmp utils.Comparator) {
	for i := 1; i < table.Size(); i++ {
		for j := i; j > 0; j-- {
			prev, _ := table.Get(j - 1)
			cur, _ := table.Get(j)
			if cmp(prev, cur) <= 0 {
				break
			}
			table.Swap(j-1, j)
		}
	}
}

// rebuild re-sorts the scheduling table and refills the ready queue with
// the leading priority band: every runnable task sharing the priority of
// the first runnable entry. Runnable tasks behind the band wait for it to
// drain.
func (k *Kernel) rebuild() {
	sortTable(k.table, k.byPriority)
	k.ready.drain()

	band := -1
	it := k.table.Iterator()
	for it.Next() {
		t := k.tasks[it.Value().(TaskID)]
		if !t.runnable() {
			continue
		}
		if band < 0 {
			band = int(t.Priority)
		}
		if int(t.Priority) != band {
			t.State = Waiting
			continue
		}
		k.mustPush(t.ID)
		t.State = Ready
	}
	k.metrics.readyDepth(k.ready.len())
}

// outgoing is the task a new decision replaces: the pending next task if a
// switch is still in flight, the current one otherwise.
func (k *Kernel) outgoing() TaskID {
	if k.next != NoTask {
		return k.next
	}
	return k.current
}

// decideNext picks the task the next context switch adopts. It only moves
// handles between the ready queue and the next slot and retags states.
func (k *Kernel) decideNext() {
	out := k.outgoing()

	if k.ready.len() == 0 {
		if out == NoTask || !k.tasks[out].runnable() {
			panic(errors.Wrap(ErrQueueEmpty, "no runnable task to dispatch"))
		}
		// round-robin continuation: nobody else is ready, keep the CPU
		k.mustPush(out)
		k.tasks[out].State = Running
		k.next = out
		return
	}

	next := k.mustPop()
	nt := k.tasks[next]
	nt.State = Running

	if out != NoTask && out != next {
		ot := k.tasks[out]
		if ot.runnable() {
			if ot.Priority == nt.Priority {
				if !k.ready.contains(out) {
					k.mustPush(out)
				}
				ot.State = Ready
			} else {
				ot.State = Waiting
			}
		}
	}
	k.next = next
	k.metrics.readyDepth(k.ready.len())
}

func (k *Kernel) mustPush(id TaskID) {
	if err := k.ready.push(id); err != nil {
		panic(errors.Wrapf(err, "enqueue task %d", id))
	}
}

func (k *Kernel) mustPop() TaskID {
	id, err := k.ready.pop()
	if err != nil {
		panic(err)
	}
	return id
}
