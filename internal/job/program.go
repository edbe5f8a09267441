package job

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tickrtos/internal/kernel"
	"tickrtos/internal/logging"
)

// Op names one step of a task program.
type Op string

const (
	OpSpin      Op = "spin"      // burn the slice; Ticks slices in a row
	OpWait      Op = "wait"      // block for Ticks ticks
	OpAcquire   Op = "acquire"   // take Mutex, blocking if it is held
	OpRelease   Op = "release"   // give Mutex back
	OpActivate  Op = "activate"  // make Task runnable
	OpTerminate Op = "terminate" // suspend self until activated again
)

// Step is one instruction of a program, as written in a firmware image.
type Step struct {
	Op    Op     `yaml:"op"`
	Ticks uint32 `yaml:"ticks,omitempty"`
	Mutex string `yaml:"mutex,omitempty"`
	Task  string `yaml:"task,omitempty"`
}

// Syscalls is the slice of the kernel API a task body may use.
type Syscalls interface {
	Activate(kernel.TaskID)
	Terminate(kernel.TaskID)
	Wait(kernel.TaskID, uint32)
	AcquireMutex(kernel.TaskID, kernel.MutexID) (bool, error)
	ReleaseMutex(kernel.MutexID)
}

// Program is a scripted task body. The host runs Step once per slice the
// task holds the CPU; steps loop forever, and an empty program just spins.
type Program struct {
	steps []Step
	pc    int
	spun  uint32

	sys     Syscalls
	self    kernel.TaskID
	tasks   map[string]kernel.TaskID
	mutexes map[string]kernel.MutexID

	slices atomic.Uint64
	log    *logrus.Entry
}

// NewProgram returns an unbound program; Bind it before the kernel starts.
func NewProgram(steps []Step) *Program {
	return &Program{
		steps: steps,
		self:  kernel.NoTask,
		log:   logging.For("job"),
	}
}

// Validate checks the ops and their operands without resolving names.
func Validate(steps []Step) error {
	for i, s := range steps {
		switch s.Op {
		case OpSpin, OpTerminate:
		case OpWait:
			if s.Ticks == 0 {
				return errors.Errorf("step %d: wait needs ticks > 0", i)
			}
		case OpAcquire, OpRelease:
			if s.Mutex == "" {
				return errors.Errorf("step %d: %s needs a mutex", i, s.Op)
			}
		case OpActivate:
			if s.Task == "" {
				return errors.Errorf("step %d: activate needs a task", i)
			}
		default:
			return errors.Errorf("step %d: unknown op %q", i, s.Op)
		}
	}
	return nil
}

// Bind attaches the program to its task and resolves the names its steps
// refer to.
func (p *Program) Bind(sys Syscalls, self kernel.TaskID, tasks map[string]kernel.TaskID, mutexes map[string]kernel.MutexID) error {
	if err := Validate(p.steps); err != nil {
		return err
	}
	for i, s := range p.steps {
		if s.Mutex != "" {
			if _, ok := mutexes[s.Mutex]; !ok {
				return errors.Errorf("step %d: unknown mutex %q", i, s.Mutex)
			}
		}
		if s.Task != "" {
			if _, ok := tasks[s.Task]; !ok {
				return errors.Errorf("step %d: unknown task %q", i, s.Task)
			}
		}
	}
	p.sys, p.self, p.tasks, p.mutexes = sys, self, tasks, mutexes
	p.log = p.log.WithField("task", self)
	return nil
}

// Slices returns how many slices the program has been given.
func (p *Program) Slices() uint64 { return p.slices.Load() }

// Step runs one slice of the program. It is the task's entry.
func (p *Program) Step() {
	p.slices.Add(1)
	if len(p.steps) == 0 || p.sys == nil {
		return
	}

	s := p.steps[p.pc]
	switch s.Op {
	case OpSpin:
		p.spun++
		if p.spun < s.Ticks {
			return
		}
		p.spun = 0

	case OpWait:
		p.advance()
		p.sys.Wait(p.self, s.Ticks)
		return

	case OpAcquire:
		_, err := p.sys.AcquireMutex(p.self, p.mutexes[s.Mutex])
		if errors.Cause(err) == kernel.ErrMutexCapacityExceeded {
			// retry the same step on the next slice
			p.log.WithError(err).Debug("mutex busy")
			return
		}
		// granted, or queued: a queued task resumes here once the
		// mutex is handed over. A re-acquire is harmless.

	case OpRelease:
		p.sys.ReleaseMutex(p.mutexes[s.Mutex])

	case OpActivate:
		p.sys.Activate(p.tasks[s.Task])

	case OpTerminate:
		p.advance()
		p.sys.Terminate(p.self)
		return
	}
	p.advance()
}

// advance moves to the next step before any call that may switch the task
// out, so it resumes after that step.
func (p *Program) advance() {
	p.pc = (p.pc + 1) % len(p.steps)
}
