package kernel

import (
	"github.com/emirpasic/gods/queues/circularbuffer"
	"github.com/pkg/errors"
)

// readyQueue is a bounded FIFO of task handles. It is only touched from
// kernel-call context, so it carries no lock of its own.
type readyQueue struct {
	buf *circularbuffer.Queue
}

func newReadyQueue(capacity int) (*readyQueue, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrReadyQueueInit, "capacity %d", capacity)
	}
	return &readyQueue{buf: circularbuffer.New(capacity)}, nil
}

// push refuses to overwrite: the underlying buffer would silently drop the
// oldest entry.
func (q *readyQueue) push(id TaskID) error {
	if q.buf.Full() {
		return ErrQueueFull
	}
	q.buf.Enqueue(id)
	return nil
}

func (q *readyQueue) pop() (TaskID, error) {
	v, ok := q.buf.Dequeue()
	if !ok {
		return NoTask, ErrQueueEmpty
	}
	return v.(TaskID), nil
}

func (q *readyQueue) len() int { return q.buf.Size() }

func (q *readyQueue) drain() { q.buf.Clear() }

func (q *readyQueue) contains(id TaskID) bool {
	for _, v := range q.buf.Values() {
		if v.(TaskID) == id {
			return true
		}
	}
	return false
}

func (q *readyQueue) ids() []TaskID {
	vals := q.buf.Values()
	out := make([]TaskID, len(vals))
	for i, v := range vals {
		out[i] = v.(TaskID)
	}
	return out
}
