// internal/sim/tickclock.go

package sim

import (
	"sync"
	"sync/atomic"
	"time"
)

// SysTick plays the hardware tick timer. It fires at a fixed period
// whether or not anyone is listening; like the real pending bit, at most
// one tick can be pending, and ticks that fire while one is still pending
// are counted as overruns.
type SysTick struct {
	period   time.Duration
	pending  chan struct{}
	fired    atomic.Int64
	overruns atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSysTick creates a stopped timer with the given period.
func NewSysTick(period time.Duration) *SysTick {
	if period <= 0 {
		period = time.Millisecond
	}
	return &SysTick{
		period:  period,
		pending: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Start enables the counter.
func (s *SysTick) Start() {
	ticker := time.NewTicker(s.period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.fired.Add(1)
				select {
				case s.pending <- struct{}{}:
				default:
					s.overruns.Add(1)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// C delivers pending ticks.
func (s *SysTick) C() <-chan struct{} { return s.pending }

// Stop disables the counter. It is safe to call more than once.
func (s *SysTick) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Fired returns how many times the timer has expired.
func (s *SysTick) Fired() int64 { return s.fired.Load() }

// Overruns returns how many expirations were lost to an already pending tick.
func (s *SysTick) Overruns() int64 { return s.overruns.Load() }
