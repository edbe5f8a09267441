package kernel

import (
	"reflect"

	"github.com/pkg/errors"
)

const (
	stackGap   = 8  // bytes left between neighbouring stacks
	frameWords = 16 // xPSR, PC, LR, R12, R0-R3 (hardware) + R4-R11 (software)
	frameSize  = frameWords * 4

	framePSR uint32 = 0x01000000 // Thumb bit set
	frameLR  uint32 = 0xFFFFFFFD // exception return: thread mode, process stack
)

// Frame is the register image a task's first context switch restores.
type Frame struct {
	XPSR uint32
	PC   uintptr
	LR   uint32
	R    [13]uint32 // R0-R12
}

// stackAllocator bump-allocates task stacks downward from just below the
// main (kernel) stack.
type stackAllocator struct {
	mainHigh uint32
	mainLow  uint32
	cursor   uint32 // high boundary of the next task stack
	floor    uint32
}

func newStackAllocator(cfg Config) stackAllocator {
	a := stackAllocator{
		mainHigh: cfg.StackTop,
		floor:    cfg.HeapEnd,
	}
	a.mainLow = sub(cfg.StackTop, cfg.MainStackSize)
	a.cursor = sub(a.mainLow, stackGap)
	return a
}

// reserve computes the region for a stack of size bytes without touching
// the cursor. The region must hold the initial frame and end strictly
// above the floor.
func (a *stackAllocator) reserve(size uint32) (high, low uint32, err error) {
	if size < frameSize {
		return 0, 0, errors.Wrapf(ErrStackSizeExceeded,
			"%d bytes cannot hold the %d-byte initial frame", size, frameSize)
	}
	high = a.cursor
	if size > high || high-size <= a.floor {
		return 0, 0, errors.Wrapf(ErrStackSizeExceeded,
			"%d bytes from 0x%08X crosses floor 0x%08X", size, high, a.floor)
	}
	return high, high - size, nil
}

// commit moves the cursor below a reserved region.
func (a *stackAllocator) commit(low uint32) {
	a.cursor = sub(low, stackGap)
}

// initFrame lays the synthetic exception frame on top of the task's stack
// and points its saved SP at the bottom of it.
func initFrame(t *Task) {
	t.Frame = Frame{
		XPSR: framePSR,
		PC:   entryAddr(t.Entry),
		LR:   frameLR,
	}
	t.SP = t.StackHigh - frameSize
}

func entryAddr(fn func()) uintptr {
	if fn == nil {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}

func sub(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}
