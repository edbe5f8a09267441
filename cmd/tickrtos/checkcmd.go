package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"tickrtos/internal/sim"
)

// CheckCommand validates a firmware image by booting it without running,
// then prints the resulting memory layout.
var CheckCommand = cli.Command{
	Name:      "check",
	Usage:     "boot a firmware image without running it and print the stack layout",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		firmwareFlag,
		configFlag,
		logLevelFlag,
	},
	Action: check,
}

func check(ctx *cli.Context) error {
	cfg, fw, err := loadImage(ctx)
	if err != nil {
		return err
	}
	m, err := sim.Boot(cfg, fw)
	if err != nil {
		return err
	}
	k := m.Kernel()

	high, low := k.MainStack()
	fmt.Printf("%-30s 0x%08x..0x%08x\n", "main stack", low, high)
	for _, t := range k.Tasks() {
		fmt.Printf("%-30s 0x%08x..0x%08x  sp 0x%08x  prio %3d  %s\n",
			t.Name.String(), t.StackLow, t.StackHigh, t.SP, t.Priority, t.State)
	}
	fmt.Printf("%-30s 0x%08x\n", "heap end", cfg.HeapEnd)

	for _, ms := range fw.Mutexes {
		id, ok := k.LookupMutex(ms.Name)
		if !ok {
			return errors.Errorf("mutex %q not registered", ms.Name)
		}
		mx := k.Mutex(id)
		ceiling := "none"
		if mx.Ceiling.Enabled {
			ceiling = fmt.Sprintf("%d", mx.Ceiling.Priority)
		}
		fmt.Printf("mutex %-24s id %d  ceiling %s  payload %d bytes\n",
			mx.Name.String(), mx.ID, ceiling, len(mx.Payload))
	}
	return nil
}
