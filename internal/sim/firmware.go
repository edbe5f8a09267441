package sim

import (
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"tickrtos/internal/job"
)

// Firmware mirrors a firmware image: the mutexes and tasks the board
// declares before starting the kernel.
type Firmware struct {
	Mutexes []MutexSpec `yaml:"mutexes"`
	Tasks   []TaskSpec  `yaml:"tasks"`
}

// MutexSpec declares one mutex. A nil Ceiling disables priority ceiling.
type MutexSpec struct {
	Name    string `yaml:"name"`
	Ceiling *uint8 `yaml:"ceiling,omitempty"`
	Payload string `yaml:"payload,omitempty"`
}

// TaskSpec declares one task and the program it runs.
type TaskSpec struct {
	Name      string     `yaml:"name"`
	Priority  uint8      `yaml:"priority"`
	StackSize uint32     `yaml:"stack_size"`
	Activate  bool       `yaml:"activate"`
	Program   []job.Step `yaml:"program,omitempty"`
}

// LoadFirmware reads and validates a YAML firmware image.
func LoadFirmware(path string) (Firmware, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Firmware{}, errors.Wrap(err, "read firmware")
	}
	fw, err := ParseFirmware(data)
	if err != nil {
		return Firmware{}, errors.Wrapf(err, "firmware %s", path)
	}
	return fw, nil
}

// ParseFirmware decodes and validates a YAML firmware image.
func ParseFirmware(data []byte) (Firmware, error) {
	var fw Firmware
	if err := yaml.Unmarshal(data, &fw); err != nil {
		return Firmware{}, errors.Wrap(err, "decode firmware")
	}
	if err := fw.Validate(); err != nil {
		return Firmware{}, err
	}
	return fw, nil
}

// Validate checks names and programs. Stack budgets are left to the
// kernel, which owns the memory layout.
func (fw Firmware) Validate() error {
	if len(fw.Tasks) == 0 {
		return errors.New("firmware declares no tasks")
	}
	mutexes := make(map[string]bool, len(fw.Mutexes))
	for _, m := range fw.Mutexes {
		if m.Name == "" {
			return errors.New("mutex without a name")
		}
		if mutexes[m.Name] {
			return errors.Errorf("duplicate mutex %q", m.Name)
		}
		mutexes[m.Name] = true
	}
	tasks := make(map[string]bool, len(fw.Tasks))
	for _, t := range fw.Tasks {
		if t.Name == "" {
			return errors.New("task without a name")
		}
		if tasks[t.Name] {
			return errors.Errorf("duplicate task %q", t.Name)
		}
		if t.StackSize == 0 {
			return errors.Errorf("task %q: stack_size is required", t.Name)
		}
		tasks[t.Name] = true
	}
	for _, t := range fw.Tasks {
		if err := job.Validate(t.Program); err != nil {
			return errors.Wrapf(err, "task %q", t.Name)
		}
		for _, s := range t.Program {
			if s.Mutex != "" && !mutexes[s.Mutex] {
				return errors.Errorf("task %q: unknown mutex %q", t.Name, s.Mutex)
			}
			if s.Task != "" && !tasks[s.Task] {
				return errors.Errorf("task %q: unknown task %q", t.Name, s.Task)
			}
		}
	}
	return nil
}
