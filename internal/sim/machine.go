// internal/sim/machine.go

package sim

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tickrtos/internal/job"
	"tickrtos/internal/kernel"
	"tickrtos/internal/logging"
)

// Machine is a host board: it boots a kernel from a firmware image, gives
// the CPU to the current task one slice at a time and fires the timer
// interrupt between slices. Kernel events are streamed to a consumer on
// the goroutine that called Run.
type Machine struct {
	k        *kernel.Kernel
	programs map[string]*job.Program

	interval time.Duration
	realtime bool
	metrics  *kernel.Metrics
	tracer   *Tracer
	hook     func(kernel.StatusEvent)

	statusCh   chan kernel.StatusEvent
	backlog    []kernel.StatusEvent // boot events, before Run
	started    bool
	dispatches []kernel.TaskID
	err        error

	log *logrus.Entry
}

// Option customizes a machine at boot.
type Option func(*Machine)

// WithRealtime paces ticks with a SysTick timer at the configured tick_ms
// instead of running them back to back.
func WithRealtime(on bool) Option {
	return func(m *Machine) { m.realtime = on }
}

// WithTracer prints (and optionally records) every event.
func WithTracer(t *Tracer) Option {
	return func(m *Machine) { m.tracer = t }
}

// WithMetrics records kernel activity.
func WithMetrics(km *kernel.Metrics) Option {
	return func(m *Machine) { m.metrics = km }
}

// WithEventHook sees every event on the consumer side.
func WithEventHook(fn func(kernel.StatusEvent)) Option {
	return func(m *Machine) { m.hook = fn }
}

// Boot creates the kernel, declares the firmware's mutexes and tasks,
// binds each task's program and activates the tasks marked for it, in
// that order. The kernel is not started yet.
func Boot(cfg kernel.Config, fw Firmware, opts ...Option) (*Machine, error) {
	if err := fw.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		programs: make(map[string]*job.Program, len(fw.Tasks)),
		interval: time.Duration(cfg.TickMS) * time.Millisecond,
		statusCh: make(chan kernel.StatusEvent, 256), // buffered channel for status events
		log:      logging.For("sim"),
	}
	for _, opt := range opts {
		opt(m)
	}

	kopts := []kernel.Option{kernel.WithObserver(m.emit)}
	if m.metrics != nil {
		kopts = append(kopts, kernel.WithMetrics(m.metrics))
	}
	k, err := kernel.New(cfg, kopts...)
	if err != nil {
		return nil, errors.Wrap(err, "boot kernel")
	}
	m.k = k

	mutexes := make(map[string]kernel.MutexID, len(fw.Mutexes))
	for _, ms := range fw.Mutexes {
		mc := kernel.MutexConfig{Name: ms.Name, Payload: []byte(ms.Payload)}
		if ms.Ceiling != nil {
			mc.Ceiling = kernel.Ceiling{Enabled: true, Priority: *ms.Ceiling}
		}
		id, err := k.CreateMutex(mc)
		if err != nil {
			return nil, err
		}
		mutexes[ms.Name] = id
	}

	tasks := make(map[string]kernel.TaskID, len(fw.Tasks))
	for _, ts := range fw.Tasks {
		prog := job.NewProgram(ts.Program)
		id, err := k.CreateTask(kernel.TaskConfig{
			Name:      ts.Name,
			Priority:  ts.Priority,
			StackSize: ts.StackSize,
			Entry:     prog.Step,
		})
		if err != nil {
			return nil, err
		}
		tasks[ts.Name] = id
		m.programs[ts.Name] = prog
	}

	for _, ts := range fw.Tasks {
		if err := m.programs[ts.Name].Bind(k, tasks[ts.Name], tasks, mutexes); err != nil {
			return nil, errors.Wrapf(err, "task %q", ts.Name)
		}
	}
	for _, ts := range fw.Tasks {
		if ts.Activate {
			k.Activate(tasks[ts.Name])
		}
	}

	m.log.WithFields(logrus.Fields{
		"tasks":   len(fw.Tasks),
		"mutexes": len(fw.Mutexes),
	}).Info("firmware loaded")
	return m, nil
}

// Kernel exposes the booted kernel.
func (m *Machine) Kernel() *kernel.Kernel { return m.k }

// Program returns the program bound to the named task.
func (m *Machine) Program(name string) *job.Program { return m.programs[name] }

// Dispatches lists the tasks switched to, in order. Valid after Run.
func (m *Machine) Dispatches() []kernel.TaskID { return m.dispatches }

// Run starts the kernel and executes ticks slices (0 = until ctx is done,
// which requires realtime pacing). It returns once the event stream has
// been drained.
func (m *Machine) Run(ctx context.Context, ticks uint64) error {
	if ticks == 0 && !m.realtime {
		return errors.New("unbounded run needs realtime pacing")
	}

	m.started = true
	go m.loop(ctx, ticks)

	// consume events
	for _, ev := range m.backlog {
		m.handleEvent(ev)
	}
	m.backlog = nil
	for ev := range m.statusCh {
		m.handleEvent(ev)
	}

	if err := m.tracer.Close(); err != nil && m.err == nil {
		m.err = err
	}
	return m.err
}

// loop is the CPU: the current task runs until the timer fires, then the
// tick handler picks who runs next.
func (m *Machine) loop(ctx context.Context, ticks uint64) {
	defer close(m.statusCh)

	if err := m.k.Start(); err != nil {
		m.err = err
		return
	}

	var clock *SysTick
	if m.realtime {
		clock = NewSysTick(m.interval)
		clock.Start()
		defer func() {
			clock.Stop()
			if n := clock.Overruns(); n > 0 {
				m.log.WithField("overruns", n).Warn("tick handler fell behind the timer")
			}
		}()
	}

	for n := uint64(0); ticks == 0 || n < ticks; n++ {
		m.runSlice()

		if clock != nil {
			select {
			case <-ctx.Done():
				return
			case <-clock.C():
			}
		} else if ctx.Err() != nil {
			return
		}
		m.k.Tick()
	}
}

// runSlice runs the current task's body outside kernel context, the way
// thread mode code runs between exceptions.
func (m *Machine) runSlice() {
	t := m.k.Task(m.k.Current())
	t.Entry()
}

// emit is the kernel observer. Before Run there is no consumer yet, so
// boot events queue up in the backlog.
func (m *Machine) emit(ev kernel.StatusEvent) {
	if !m.started {
		m.backlog = append(m.backlog, ev)
		return
	}
	m.statusCh <- ev
}

func (m *Machine) handleEvent(ev kernel.StatusEvent) {
	if ev.Kind == kernel.StatusDispatch {
		m.dispatches = append(m.dispatches, ev.TaskID)
	}
	if m.hook != nil {
		m.hook(ev)
	}
	m.tracer.Handle(ev)
}
