// internal/kernel/config.go

package kernel

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	yaml "github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// Config mirrors kernel.yml (or kernel.toml). Addresses describe the
// target's RAM: the main stack sits just below StackTop, task stacks are
// carved downward from there and must never reach below HeapEnd.
type Config struct {
	MaxTasks      int    `yaml:"max_tasks" toml:"max_tasks"`             // 100 (by default), also the ready queue capacity
	StackTop      uint32 `yaml:"stack_top" toml:"stack_top"`             // 0x20005000 (by default)
	MainStackSize uint32 `yaml:"main_stack_size" toml:"main_stack_size"` // 3072 (by default)
	HeapEnd       uint32 `yaml:"heap_end" toml:"heap_end"`               // 0x20000800 (by default)
	IdleStackSize uint32 `yaml:"idle_stack_size" toml:"idle_stack_size"` // 300 (by default)
	TickMS        int    `yaml:"tick_ms" toml:"tick_ms"`                 // 1 (by default)
	LogLevel      string `yaml:"log_level" toml:"log_level"`             // info (by default)
}

// DefaultConfig describes a Cortex-M3 part with 20 KiB of SRAM and a
// 1 ms SysTick.
func DefaultConfig() Config {
	return Config{
		MaxTasks:      100,
		StackTop:      0x20005000,
		MainStackSize: 3072,
		HeapEnd:       0x20000800,
		IdleStackSize: 300,
		TickMS:        1,
		LogLevel:      "info",
	}
}

// LoadConfig reads YAML or TOML (by extension) over the defaults; an empty
// path yields the defaults only.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read kernel config")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	}

	// sanity clamps. max_tasks is left alone: a bad value must surface as
	// ErrReadyQueueInit at boot.
	if cfg.TickMS <= 0 {
		cfg.TickMS = 1
	}
	if cfg.IdleStackSize == 0 {
		cfg.IdleStackSize = 300
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}
