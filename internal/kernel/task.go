package kernel

// TaskID is a stable handle into the kernel's task arena. Handles are
// assigned in creation order, so they double as the insertion order the
// scheduling table falls back on for equal priorities.
type TaskID int

// NoTask is the empty handle.
const NoTask TaskID = -1

// Priorities: 0 is the highest. 255 belongs to the idle task alone.
const (
	MinPriority  uint8 = 0
	MaxPriority  uint8 = 254
	IdlePriority uint8 = 255
)

// IdleTaskName is the label of the task created at boot.
const IdleTaskName = "IdleTask"

// State is a task lifecycle state.
type State uint8

const (
	Suspended State = iota // not runnable: created, terminated or blocked
	Waiting                // runnable, admitted on the next rebuild
	Ready                  // in the ready queue
	Running                // holds the CPU
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "Suspended"
	case Waiting:
		return "Waiting"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// WaitTimer counts ticks down while its task is blocked in Wait.
type WaitTimer struct {
	Enabled bool
	Ticks   uint32
}

// TaskConfig is what firmware declares for a task at boot.
type TaskConfig struct {
	Name      string
	Priority  uint8  // 0 - 254, where 0 is the highest priority
	StackSize uint32 // bytes
	Entry     func() // body of the task's main loop
}

// Task is the task control block.
type Task struct {
	ID        TaskID
	Name      Label
	Priority  uint8 // effective priority, raised while holding ceiling mutexes
	Base      uint8 // priority the task was created with
	Entry     func()
	StackSize uint32

	// Stack region [StackHigh, StackLow), growing down. Not entered by the user.
	StackHigh uint32
	StackLow  uint32
	SP        uint32 // saved stack pointer while the task is switched out
	Frame     Frame  // synthetic register image the first switch restores

	State State
	Timer WaitTimer
}

// newTask clamps a user priority within the legal region.
func newTask(id TaskID, tc TaskConfig) *Task {
	if tc.Priority > MaxPriority {
		tc.Priority = MaxPriority
	}
	return &Task{
		ID:        id,
		Name:      NewLabel(tc.Name),
		Priority:  tc.Priority,
		Base:      tc.Priority,
		Entry:     tc.Entry,
		StackSize: tc.StackSize,
		State:     Suspended,
	}
}

// runnable reports whether the task may be placed into the ready queue.
func (t *Task) runnable() bool {
	return t.State != Suspended
}
