package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tpeyrard/hivefuzz/internal/logger"
	"github.com/tpeyrard/hivefuzz/internal/telemetry"
	"github.com/tpeyrard/hivefuzz/pkg/api"
	"github.com/tpeyrard/hivefuzz/pkg/binaries"
	"github.com/tpeyrard/hivefuzz/pkg/broker"
	"github.com/tpeyrard/hivefuzz/pkg/config"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
	"github.com/tpeyrard/hivefuzz/pkg/journal"
	"github.com/tpeyrard/hivefuzz/pkg/metrics"
	"github.com/tpeyrard/hivefuzz/pkg/report"
	"github.com/tpeyrard/hivefuzz/pkg/transport"
	"github.com/tpeyrard/hivefuzz/pkg/workspace"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the broker",
	Long: `Start the broker over the configured campaign.

The broker loads the defect report and the binary index, reopens the
workspace (reloading any previous seed corpus), and then accepts fuzzing
clients until every alert is validated or the operator stops it.

This build drives the in-process loopback transport; deployments link a
wire transport against the transport.Transport contract.

Examples:
  # Start with the default config location
  hivefuzz start

  # Start with a custom config
  hivefuzz start --config /etc/hivefuzz/config.yaml

  # Override the log level
  HIVEFUZZ_LOGGING_LEVEL=DEBUG hivefuzz start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Campaign.Report == "" {
		return fmt.Errorf("no campaign configured\n\nInitialize a configuration first:\n  hivefuzz init")
	}

	ws, err := workspace.Open(cfg.Campaign.Workspace)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Tee:    ws.BrokerLogPath(),
	}); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	shutdownProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() { _ = shutdownProfiling() }()

	rep, err := report.Load(cfg.Campaign.Report)
	if err != nil {
		return err
	}

	bins, err := binaries.NewRegistry(cfg.Campaign.Binaries)
	if err != nil {
		return err
	}
	if bins.Count() == 0 {
		logger.Warn("no usable binaries found, every client will be unassignable", "dir", cfg.Campaign.Binaries)
	}

	var jrnl *journal.Journal
	if cfg.Campaign.Journal.Enabled {
		jrnl, err = journal.Open(cfg.Campaign.Journal.Path)
		if err != nil {
			return err
		}
		defer func() { _ = jrnl.Close() }()
	}

	mode, err := broker.ParseBrokingMode(cfg.Campaign.Mode)
	if err != nil {
		return err
	}
	checkMode, err := fuzzing.ParseCheckMode(cfg.Campaign.CheckMode)
	if err != nil {
		return err
	}
	engineArgs := make(map[fuzzing.Engine]string, len(cfg.Campaign.EngineArgs))
	for name, extra := range cfg.Campaign.EngineArgs {
		// Viper lowercases map keys; engine names are upper case.
		engine, err := fuzzing.ParseEngine(strings.ToUpper(name))
		if err != nil {
			return fmt.Errorf("engine_args: %w", err)
		}
		engineArgs[engine] = extra
	}

	tr := transport.NewMemoryTransport()

	b, err := broker.New(broker.Options{
		Workspace:  ws,
		Report:     rep,
		Binaries:   bins,
		Transport:  tr,
		Journal:    jrnl,
		Metrics:    metrics.NewBrokerMetrics(),
		Mode:       mode,
		CheckMode:  checkMode,
		InjectLoc:  fuzzing.InjectStdin,
		Argv:       cfg.Campaign.Argv,
		EngineArgs: engineArgs,
	})
	if err != nil {
		return err
	}

	go func() { _ = tr.Run(ctx) }()

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API, b)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("control API stopped", "error", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	return b.Run(ctx)
}
