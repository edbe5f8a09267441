package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"tickrtos/internal/kernel"
	"tickrtos/internal/logging"
	"tickrtos/internal/sim"
)

// RunCommand boots a firmware image and runs it.
var RunCommand = cli.Command{
	Name:      "run",
	Usage:     "boot a firmware image and run it",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		firmwareFlag,
		configFlag,
		logLevelFlag,
		cli.Uint64Flag{
			Name:  "ticks, n",
			Usage: "number of ticks to run (0 = until interrupted, needs --realtime)",
			Value: 100,
		},
		cli.BoolFlag{
			Name:  "realtime",
			Usage: "pace ticks at tick_ms instead of running them back to back",
		},
		cli.StringFlag{
			Name:  "csv",
			Usage: "also record events to this CSV file",
		},
		cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve Prometheus metrics on this address (e.g. :2112)",
		},
		cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colored trace output",
		},
	},
	Action: run,
}

func run(ctx *cli.Context) error {
	cfg, fw, err := loadImage(ctx)
	if err != nil {
		return err
	}
	log := logging.For("main")

	if ctx.Bool("no-color") {
		color.NoColor = true
	}
	tracer := sim.NewTracer(os.Stdout, !color.NoColor)
	if path := ctx.String("csv"); path != "" {
		if err := tracer.EnableCSVLogging(path); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	metrics := kernel.NewMetrics(reg)
	if addr := ctx.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.WithField("addr", addr).Info("serving metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	m, err := sim.Boot(cfg, fw,
		sim.WithTracer(tracer),
		sim.WithMetrics(metrics),
		sim.WithRealtime(ctx.Bool("realtime")),
	)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := m.Run(sigCtx, ctx.Uint64("ticks")); err != nil {
		return err
	}

	k := m.Kernel()
	fmt.Printf("\n%d ticks\n", k.Ticks())
	for _, t := range k.Tasks() {
		fmt.Printf("  %-30s prio %3d  %-9s ran %6d ticks\n",
			t.Name.String(), t.Priority, t.State, tracer.RanTicks(t.ID))
	}
	return nil
}
