package sim

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"tickrtos/internal/kernel"
	"tickrtos/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const referenceFirmware = `
tasks:
  - name: TASK1
    priority: 3
    stack_size: 1024
    activate: true
  - name: TASK2
    priority: 3
    stack_size: 1024
    activate: true
  - name: TASK3
    priority: 3
    stack_size: 1024
    activate: true
`

const mutexFirmware = `
mutexes:
  - name: uart
tasks:
  - name: P
    priority: 2
    stack_size: 512
    activate: true
    program:
      - {op: acquire, mutex: uart}
      - {op: spin, ticks: 3}
      - {op: release, mutex: uart}
      - {op: wait, ticks: 2}
  - name: Q
    priority: 2
    stack_size: 512
    activate: true
    program:
      - {op: acquire, mutex: uart}
      - {op: spin, ticks: 1}
      - {op: release, mutex: uart}
`

func mustParse(t *testing.T, src string) Firmware {
	t.Helper()
	fw, err := ParseFirmware([]byte(src))
	if err != nil {
		t.Fatalf("ParseFirmware: %v", err)
	}
	return fw
}

func TestReferenceFirmwareRoundRobin(t *testing.T) {
	var out bytes.Buffer
	m, err := Boot(kernel.DefaultConfig(), mustParse(t, referenceFirmware), WithTracer(NewTracer(&out, false)))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	k := m.Kernel()
	t1, _ := k.Lookup("TASK1")
	t2, _ := k.Lookup("TASK2")
	t3, _ := k.Lookup("TASK3")
	want := []kernel.TaskID{t1, t2, t3, t1, t2, t3, t1, t2, t3, t1}
	if got := m.Dispatches(); !reflect.DeepEqual(got, want) {
		t.Fatalf("dispatches = %v, want %v", got, want)
	}
	for _, name := range []string{"TASK1", "TASK2", "TASK3"} {
		if n := m.Program(name).Slices(); n != 3 {
			t.Errorf("%s ran %d slices, want 3", name, n)
		}
	}
	if k.Ticks() != 10 {
		t.Errorf("ticks = %d", k.Ticks())
	}
	if !strings.Contains(out.String(), "Dispatch") || !strings.Contains(out.String(), "TASK2") {
		t.Errorf("trace output missing dispatches:\n%s", out.String())
	}
}

func TestMutexFirmwareKeepsExclusion(t *testing.T) {
	type use struct {
		kind kernel.StatusKind
		task kernel.TaskID
	}
	var uses []use
	var rejected int
	hook := func(ev kernel.StatusEvent) {
		switch ev.Kind {
		case kernel.StatusMutexGrant, kernel.StatusMutexRelease:
			uses = append(uses, use{ev.Kind, ev.TaskID})
		case kernel.StatusRejected:
			rejected++
		}
	}

	m, err := Boot(kernel.DefaultConfig(), mustParse(t, mutexFirmware), WithEventHook(hook))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background(), 60); err != nil {
		t.Fatal(err)
	}

	if rejected != 0 {
		t.Errorf("%d rejected requests", rejected)
	}
	holders := map[kernel.TaskID]bool{}
	for i, u := range uses {
		wantKind := kernel.StatusMutexGrant
		if i%2 == 1 {
			wantKind = kernel.StatusMutexRelease
			if u.task != uses[i-1].task {
				t.Fatalf("use %d: released by %d, granted to %d", i, u.task, uses[i-1].task)
			}
		}
		if u.kind != wantKind {
			t.Fatalf("use %d: %v, want %v (uses %v)", i, u.kind, wantKind, uses)
		}
		holders[u.task] = true
	}
	if len(holders) != 2 {
		t.Fatalf("mutex held by %v, want both tasks", holders)
	}
}

func TestCeilingFirmwareBoots(t *testing.T) {
	fw := mustParse(t, `
mutexes:
  - name: bus
    ceiling: 1
    payload: "sensor frame"
tasks:
  - name: A
    priority: 4
    stack_size: 256
    activate: true
    program:
      - {op: acquire, mutex: bus}
      - {op: release, mutex: bus}
`)
	m, err := Boot(kernel.DefaultConfig(), fw)
	if err != nil {
		t.Fatal(err)
	}
	k := m.Kernel()
	id, ok := k.LookupMutex("bus")
	if !ok {
		t.Fatal("mutex bus not registered")
	}
	mx := k.Mutex(id)
	if !mx.Ceiling.Enabled || mx.Ceiling.Priority != 1 || string(mx.Payload) != "sensor frame" {
		t.Fatalf("mutex = %+v", mx)
	}
	if err := m.Run(context.Background(), 20); err != nil {
		t.Fatal(err)
	}
	a, _ := k.Lookup("A")
	if p := k.Task(a).Priority; p != 1 && p != 4 {
		t.Fatalf("priority = %d", p)
	}
}

func TestBootFailsOverStackBudget(t *testing.T) {
	fw := mustParse(t, `
tasks:
  - name: big
    priority: 1
    stack_size: 1000000
    activate: true
`)
	_, err := Boot(kernel.DefaultConfig(), fw)
	if errors.Cause(err) != kernel.ErrStackSizeExceeded {
		t.Fatalf("err = %v, want ErrStackSizeExceeded", err)
	}
}

func TestParseFirmwareRejects(t *testing.T) {
	tests := map[string]string{
		"no tasks":        `tasks: []`,
		"duplicate task":  "tasks:\n  - {name: a, stack_size: 64}\n  - {name: a, stack_size: 64}\n",
		"no stack":        "tasks:\n  - {name: a}\n",
		"unknown mutex":   "tasks:\n  - name: a\n    stack_size: 64\n    program:\n      - {op: acquire, mutex: m}\n",
		"unknown task":    "tasks:\n  - name: a\n    stack_size: 64\n    program:\n      - {op: activate, task: b}\n",
		"bad op":          "tasks:\n  - name: a\n    stack_size: 64\n    program:\n      - {op: fly}\n",
		"duplicate mutex": "mutexes:\n  - {name: m}\n  - {name: m}\ntasks:\n  - {name: a, stack_size: 64}\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFirmware([]byte(src)); err == nil {
				t.Fatal("accepted")
			}
		})
	}
}

func TestRunNeedsBound(t *testing.T) {
	m, err := Boot(kernel.DefaultConfig(), mustParse(t, referenceFirmware))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background(), 0); err == nil {
		t.Fatal("unbounded virtual run accepted")
	}
}

func TestRealtimeRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := Boot(kernel.DefaultConfig(), mustParse(t, referenceFirmware),
		WithRealtime(true), WithMetrics(kernel.NewMetrics(reg)))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Run(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if n := m.Kernel().Ticks(); n != 5 {
		t.Fatalf("ticks = %d, want 5", n)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Fatal("no metrics gathered")
	}
}

func TestSysTick(t *testing.T) {
	c := NewSysTick(time.Millisecond)
	c.Start()
	for i := 0; i < 3; i++ {
		select {
		case <-c.C():
		case <-time.After(2 * time.Second):
			t.Fatal("no tick")
		}
	}
	c.Stop()
	c.Stop()
	if c.Fired() < 3 {
		t.Fatalf("fired = %d", c.Fired())
	}
}

func TestSysTickCountsOverruns(t *testing.T) {
	c := NewSysTick(time.Millisecond)
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for c.Overruns() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no overrun while nobody consumed ticks")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if c.Fired() < 2 {
		t.Fatalf("fired = %d", c.Fired())
	}
}

func TestTracerCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.csv")
	var out bytes.Buffer
	tr := NewTracer(&out, false)
	if err := tr.EnableCSVLogging(path); err != nil {
		t.Fatal(err)
	}

	tr.Handle(kernel.StatusEvent{Kind: kernel.StatusDispatch, TaskID: 1, TaskName: "TASK1", Priority: 3, Prev: 0, Mutex: kernel.NoMutex})
	tr.Handle(kernel.StatusEvent{Kind: kernel.StatusTick, Tick: 1, TaskID: kernel.NoTask, Mutex: kernel.NoMutex})
	tr.Handle(kernel.StatusEvent{Kind: kernel.StatusTick, Tick: 2, TaskID: kernel.NoTask, Mutex: kernel.NoMutex})
	tr.Handle(kernel.StatusEvent{Kind: kernel.StatusRejected, Tick: 2, TaskID: 1, TaskName: "TASK1", Mutex: 0,
		Err: kernel.ErrMutexCapacityExceeded})
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	if tr.RanTicks(1) != 2 {
		t.Errorf("ran ticks = %d, want 2", tr.RanTicks(1))
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 (ticks are not logged)", len(rows))
	}
	if rows[1][2] != "Dispatch" || rows[2][2] != "Rejected" || rows[2][8] == "" {
		t.Fatalf("rows = %v", rows)
	}
	if strings.Count(out.String(), "\n") != 2 {
		t.Errorf("printed:\n%s", out.String())
	}
}
