// internal/kernel/kernel.go

package kernel

import (
	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tickrtos/internal/logging"
)

// Kernel owns all scheduler state: the task arena, the scheduling table,
// the ready queue and the mutexes. It is created once at boot and every
// mutation happens inside its Port.
type Kernel struct {
	cfg  Config
	port Port

	tasks   []*Task         // arena, indexed by TaskID
	mutexes []*Mutex        // arena, indexed by MutexID
	table   *arraylist.List // scheduling table of TaskIDs
	ready   *readyQueue     // leading priority band
	stacks  stackAllocator  // task stack carving
	idle    TaskID

	current TaskID
	next    TaskID // decided, switch still pending
	running bool
	ticks   uint64

	observer func(StatusEvent)
	metrics  *Metrics
	log      *logrus.Entry
}

// Option customizes a kernel at boot.
type Option func(*Kernel)

// WithPort replaces the default LockPort.
func WithPort(p Port) Option {
	return func(k *Kernel) { k.port = p }
}

// WithObserver receives every StatusEvent.
func WithObserver(fn func(StatusEvent)) Option {
	return func(k *Kernel) { k.observer = fn }
}

// WithMetrics records kernel activity into m.
func WithMetrics(m *Metrics) Option {
	return func(k *Kernel) { k.metrics = m }
}

// WithLogger replaces the default "kernel" log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(k *Kernel) { k.log = l }
}

// New boots a kernel: it lays out the main stack, creates the ready queue
// and registers the idle task. Firmware creates its own tasks next and
// then calls Start.
func New(cfg Config, opts ...Option) (*Kernel, error) {
	ready, err := newReadyQueue(cfg.MaxTasks)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:     cfg,
		port:    &LockPort{},
		tasks:   make([]*Task, 0, cfg.MaxTasks),
		table:   arraylist.New(),
		ready:   ready,
		stacks:  newStackAllocator(cfg),
		idle:    NoTask,
		current: NoTask,
		next:    NoTask,
		log:     logging.For("kernel"),
	}
	for _, opt := range opts {
		opt(k)
	}

	idle, err := k.createTask(TaskConfig{
		Name:      IdleTaskName,
		StackSize: cfg.IdleStackSize,
		Entry:     idleLoop,
	}, IdlePriority)
	if err != nil {
		return nil, errors.Wrap(err, "create idle task")
	}
	k.idle = idle

	k.log.WithFields(logrus.Fields{
		"main_stack": [2]uint32{k.stacks.mainHigh, k.stacks.mainLow},
		"max_tasks":  cfg.MaxTasks,
	}).Debug("kernel initialized")
	return k, nil
}

// idleLoop runs whenever nothing else is runnable. Hosts have no
// wait-for-event instruction, so it just spins.
func idleLoop() {}

// CreateTask carves the task's stack, prepares its first frame and adds it
// to the scheduling table in the Suspended state. A failed creation leaves
// the kernel untouched.
func (k *Kernel) CreateTask(tc TaskConfig) (TaskID, error) {
	if tc.Priority > MaxPriority {
		tc.Priority = MaxPriority
	}
	return k.createTask(tc, tc.Priority)
}

func (k *Kernel) createTask(tc TaskConfig, priority uint8) (id TaskID, err error) {
	id = NoTask
	k.port.Interrupt(func() {
		switch {
		case k.running:
			err = errors.Wrapf(ErrKernelStarted, "create task %q", tc.Name)
			return
		case tc.Entry == nil:
			err = errors.Wrapf(ErrNilEntry, "create task %q", tc.Name)
			return
		case len(k.tasks) >= k.cfg.MaxTasks:
			err = errors.Wrapf(ErrTaskTableFull, "create task %q (max %d)", tc.Name, k.cfg.MaxTasks)
			return
		}

		high, low, rerr := k.stacks.reserve(tc.StackSize)
		if rerr != nil {
			err = errors.Wrapf(rerr, "create task %q", tc.Name)
			return
		}
		k.stacks.commit(low)

		t := newTask(TaskID(len(k.tasks)), tc)
		t.Priority, t.Base = priority, priority
		t.StackHigh, t.StackLow = high, low
		initFrame(t)

		k.tasks = append(k.tasks, t)
		k.table.Add(t.ID)
		id = t.ID
		k.emit(k.taskEvent(StatusCreate, id))
	})
	if err != nil {
		k.log.WithError(err).Warn("task creation failed")
	}
	return id, err
}

// Start makes the idle task current, activates it and lets the tick run
// the scheduler. The caller then runs the idle task's entry.
func (k *Kernel) Start() error {
	var err error
	k.port.Interrupt(func() {
		if k.running {
			err = ErrKernelStarted
			return
		}
		k.running = true
		k.current = k.idle
	})
	if err != nil {
		return err
	}
	k.Activate(k.idle)
	k.log.WithField("tasks", len(k.tasks)).Info("kernel started")
	return nil
}

// Activate moves a suspended task to Waiting so the next rebuild admits it.
// Activating a blocked task cancels its wait. A task pending on a mutex
// stays suspended until the mutex is handed to it.
func (k *Kernel) Activate(id TaskID) {
	k.trap(CallActivate, func() bool {
		t := k.mustTask(id)
		if mid := k.pendingOn(id); mid != NoMutex {
			k.log.WithFields(logrus.Fields{"task": id, "mutex": mid}).Debug("activate ignored, task pends on mutex")
			return false
		}
		t.Timer = WaitTimer{}
		if t.State == Suspended {
			t.State = Waiting
		}
		k.emit(k.taskEvent(StatusActivate, id))
		return true
	})
}

// Terminate suspends a task until someone activates it again.
func (k *Kernel) Terminate(id TaskID) {
	k.trap(CallTerminate, func() bool {
		t := k.mustTask(id)
		t.Timer = WaitTimer{}
		t.State = Suspended
		k.emit(k.taskEvent(StatusTerminate, id))
		return true
	})
}

// Tick is the periodic timer interrupt.
func (k *Kernel) Tick() {
	k.port.Interrupt(k.sysTick)
}

func (k *Kernel) sysTick() {
	k.ticks++
	k.metrics.tick()
	k.emit(k.taskEvent(StatusTick, NoTask))

	k.updateWaitTimers()

	if !k.running {
		return
	}
	k.decideNext()
	k.port.PendSwitch(k.contextSwitch)
}

func (k *Kernel) mustTask(id TaskID) *Task {
	if id < 0 || int(id) >= len(k.tasks) {
		panic(errors.Wrapf(ErrUnknownTask, "task %d", id))
	}
	return k.tasks[id]
}

// inspect runs a read-only fn in kernel context.
func (k *Kernel) inspect(fn func()) {
	k.port.Interrupt(fn)
}

// Current returns the task holding the CPU, or NoTask before Start.
func (k *Kernel) Current() TaskID {
	id := NoTask
	k.inspect(func() { id = k.current })
	return id
}

// Idle returns the idle task's handle.
func (k *Kernel) Idle() TaskID { return k.idle }

// Running reports whether Start has been called.
func (k *Kernel) Running() bool {
	var running bool
	k.inspect(func() { running = k.running })
	return running
}

// Ticks returns the number of ticks handled so far.
func (k *Kernel) Ticks() uint64 {
	var n uint64
	k.inspect(func() { n = k.ticks })
	return n
}

// Task returns a copy of a task control block.
func (k *Kernel) Task(id TaskID) Task {
	var t Task
	k.inspect(func() { t = *k.mustTask(id) })
	return t
}

// Tasks returns copies of all task control blocks in creation order.
func (k *Kernel) Tasks() []Task {
	var out []Task
	k.inspect(func() {
		out = make([]Task, len(k.tasks))
		for i, t := range k.tasks {
			out[i] = *t
		}
	})
	return out
}

// Lookup finds a task by name.
func (k *Kernel) Lookup(name string) (TaskID, bool) {
	id := NoTask
	k.inspect(func() {
		for _, t := range k.tasks {
			if t.Name.Equal(name) {
				id = t.ID
				return
			}
		}
	})
	return id, id != NoTask
}

// ReadyQueue returns the queued handles, head first.
func (k *Kernel) ReadyQueue() []TaskID {
	var ids []TaskID
	k.inspect(func() { ids = k.ready.ids() })
	return ids
}

// Table returns the scheduling table as of the last rebuild.
func (k *Kernel) Table() []TaskID {
	var ids []TaskID
	k.inspect(func() {
		ids = make([]TaskID, 0, k.table.Size())
		it := k.table.Iterator()
		for it.Next() {
			ids = append(ids, it.Value().(TaskID))
		}
	})
	return ids
}

// MainStack returns the kernel's reserved stack region [high, low).
func (k *Kernel) MainStack() (high, low uint32) {
	return k.stacks.mainHigh, k.stacks.mainLow
}
