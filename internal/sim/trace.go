// internal/sim/trace.go

package sim

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"tickrtos/internal/kernel"
)

// Tracer prints kernel events one per line and optionally records them as
// CSV. It keeps per-task tick totals from the dispatch stream. A nil
// *Tracer ignores everything.
type Tracer struct {
	out       io.Writer
	colors    map[kernel.StatusKind]*color.Color
	current   kernel.TaskID
	ticks     uint64
	ranTotals map[kernel.TaskID]int64 // cumulative ticks per task

	// logging-related
	csvFile   *os.File
	csvWriter *csv.Writer
}

// NewTracer writes to out; colored selects ANSI colors per event kind.
func NewTracer(out io.Writer, colored bool) *Tracer {
	t := &Tracer{
		out:       out,
		current:   kernel.NoTask,
		ranTotals: make(map[kernel.TaskID]int64),
		colors: map[kernel.StatusKind]*color.Color{
			kernel.StatusDispatch:     color.New(color.FgGreen, color.Bold),
			kernel.StatusWait:         color.New(color.FgYellow),
			kernel.StatusWake:         color.New(color.FgCyan),
			kernel.StatusMutexGrant:   color.New(color.FgBlue),
			kernel.StatusMutexBlock:   color.New(color.FgMagenta),
			kernel.StatusMutexRelease: color.New(color.FgBlue),
			kernel.StatusRejected:     color.New(color.FgRed, color.Bold),
		},
	}
	for _, c := range t.colors {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (t *Tracer) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create csv log")
	}
	w := csv.NewWriter(f)

	// write header
	w.Write([]string{"timestamp", "tick", "event", "task_id", "task", "priority", "mutex", "ran_ticks", "error"})
	w.Flush()
	t.csvFile = f
	t.csvWriter = w
	return nil
}

// RanTicks returns how many ticks the task held the CPU.
func (t *Tracer) RanTicks(id kernel.TaskID) int64 {
	if t == nil {
		return 0
	}
	return t.ranTotals[id]
}

// Handle consumes one event.
func (t *Tracer) Handle(ev kernel.StatusEvent) {
	if t == nil {
		return
	}

	// if we received a tick event which periodically occurs,
	// we only account it and do not log it for the brevity of output.
	if ev.Kind == kernel.StatusTick {
		t.ticks = ev.Tick
		if t.current != kernel.NoTask {
			t.ranTotals[t.current]++
		}
		return
	}
	if ev.Kind == kernel.StatusDispatch {
		t.current = ev.TaskID
	}

	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := int(float64(width-len(str)) / 2)
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
	}
	kind := center(ev.Kind.String(), 14)
	if c, ok := t.colors[ev.Kind]; ok {
		kind = c.Sprint(kind)
	}

	msg := fmt.Sprintf("%s = Tick: %07d [%s] => Task: %-12s prio %3d, ran %05d ticks",
		ev.Time.Format("Jan 02 15:04:05.000"),
		ev.Tick,
		kind,
		ev.TaskName,
		ev.Priority,
		t.ranTotals[ev.TaskID],
	)
	if ev.Mutex != kernel.NoMutex {
		msg += fmt.Sprintf(", mutex %d", ev.Mutex)
	}
	if ev.Err != nil {
		msg += ": " + ev.Err.Error()
	}
	fmt.Fprintln(t.out, msg)

	// CSV output
	if t.csvWriter != nil {
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			strconv.FormatUint(ev.Tick, 10),
			ev.Kind.String(),
			strconv.Itoa(int(ev.TaskID)),
			ev.TaskName,
			strconv.Itoa(int(ev.Priority)),
			strconv.Itoa(int(ev.Mutex)),
			strconv.FormatInt(t.ranTotals[ev.TaskID], 10),
			errText,
		}
		t.csvWriter.Write(rec)
		t.csvWriter.Flush()
	}
}

// Close flushes and closes the CSV log, if any.
func (t *Tracer) Close() error {
	if t == nil || t.csvFile == nil {
		return nil
	}
	t.csvWriter.Flush()
	if err := t.csvWriter.Error(); err != nil {
		t.csvFile.Close()
		return errors.Wrap(err, "flush csv log")
	}
	return t.csvFile.Close()
}
