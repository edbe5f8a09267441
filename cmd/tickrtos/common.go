package main

import (
	"github.com/urfave/cli"

	"tickrtos/internal/kernel"
	"tickrtos/internal/logging"
	"tickrtos/internal/sim"
)

// loadImage reads the kernel configuration and the firmware named on the
// command line and applies the log level.
func loadImage(ctx *cli.Context) (kernel.Config, sim.Firmware, error) {
	cfg := kernel.DefaultConfig()
	if path := ctx.String("config"); path != "" {
		var err error
		if cfg, err = kernel.LoadConfig(path); err != nil {
			return cfg, sim.Firmware{}, err
		}
	}
	if lvl := ctx.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return cfg, sim.Firmware{}, err
	}

	fw, err := sim.LoadFirmware(ctx.String("firmware"))
	return cfg, fw, err
}
