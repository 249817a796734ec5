// Package cmd implements the fleetd command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flocklink/fleetd/app"
	"github.com/flocklink/fleetd/config"
	coremetrics "github.com/flocklink/fleetd/core/metrics"
	"github.com/flocklink/fleetd/infra/logger"
	"github.com/flocklink/fleetd/infra/metrics"
	"github.com/flocklink/fleetd/infra/mqtt"
	"github.com/flocklink/fleetd/sim"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "fleetd",
	Short: "UAV fleet coordination server",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Console)
	log := logger.New("main")

	sink := buildMetricsSink(cfg.Metrics, log)

	server := app.New(app.Options{
		Version:      Version,
		Commands:     cfg.Commands,
		StatusWindow: time.Duration(cfg.RateLimit.WindowMS) * time.Millisecond,
		Metrics:      sink,
		Log:          logger.New("server"),
	})

	channel, err := mqtt.NewChannel(cfg.MQTT, server.Clients(), server, server)
	if err != nil {
		return fmt.Errorf("mqtt channel: %w", err)
	}
	defer channel.Close()

	collector := metrics.NewCollector(server.Bus(), sink, logger.New("metrics"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { collector.Run(ctx); return nil })
	if cfg.Metrics.PrometheusEnabled {
		g.Go(func() error {
			if err := metrics.StartPromServer(cfg.Metrics.PrometheusPort); err != nil {
				log.Errorf("prom server: %v", err)
			}
			return nil
		})
	}
	if cfg.Sim.Enabled {
		driver := sim.NewDriver(
			server.Commands(),
			time.Duration(cfg.Sim.CommandDelayMS)*time.Millisecond,
			logger.New("sim"),
		)
		provider := sim.NewProvider(cfg.Sim, server, driver, logger.New("sim"))
		g.Go(func() error { return provider.Run(ctx) })
	}

	log.Infof("fleetd %s listening on %s", Version, cfg.MQTT.Broker)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func buildMetricsSink(cfg coremetrics.Config, log logger.Logger) coremetrics.Sink {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg)
		if err != nil {
			log.Errorf("prom sink: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg, logger.New("influx")))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}
	case 1:
		return sinks[0]
	default:
		return metrics.NewMultiSink(sinks...)
	}
}
