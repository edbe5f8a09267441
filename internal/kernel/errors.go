package kernel

import "github.com/pkg/errors"

// Kernel status codes. Callers match them with errors.Cause.
var (
	ErrReadyQueueInit        = errors.New("ready queue init failed")
	ErrStackSizeExceeded     = errors.New("task stack exceeds memory floor")
	ErrMutexAlreadyAcquired  = errors.New("mutex already acquired by caller")
	ErrMutexCapacityExceeded = errors.New("mutex already has a pending user")

	ErrTaskTableFull = errors.New("task table full")
	ErrKernelStarted = errors.New("kernel already started")
	ErrNilEntry      = errors.New("task entry is nil")
	ErrUnknownTask   = errors.New("unknown task")
	ErrUnknownMutex  = errors.New("unknown mutex")

	ErrQueueFull  = errors.New("ready queue full")
	ErrQueueEmpty = errors.New("ready queue empty")
)
