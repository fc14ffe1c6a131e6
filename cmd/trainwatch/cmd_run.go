package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trainwatch/internal/config"
	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/sink"
	"github.com/danielpatrickdp/trainwatch/internal/store"
	"github.com/danielpatrickdp/trainwatch/internal/trainer"
)

// #region command
type runOptions struct {
	configPath  string
	db          string
	remote      string
	metricsAddr string
	quiet       bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured pipeline over a synthetic workload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTraining(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "trainwatch.yaml", "pipeline configuration")
	cmd.Flags().StringVar(&opts.db, "db", "", "SQLite database for runs, metrics and dispatches (overrides "+config.EnvDB+")")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "MetricSink gRPC address (overrides "+config.EnvRemoteAddr+")")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "do not log every metric value")
	return cmd
}
// #endregion command

// #region run
func runTraining(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := config.Load(opts.configPath, func(c *config.Config) {
		if opts.db != "" {
			c.Sinks.SQLite = opts.db
		}
		if opts.remote != "" {
			c.Sinks.Remote = opts.remote
		}
		if opts.metricsAddr != "" {
			c.Sinks.MetricsAddr = opts.metricsAddr
		}
		if opts.quiet {
			c.Sinks.Quiet = true
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	var (
		sinks []hooks.Sink
		loop  *trainer.Loop
		deps  = config.Deps{Logger: logger, RunID: uuid.New().String()}
	)
	if !cfg.Sinks.Quiet {
		sinks = append(sinks, sink.NewSlog(logger))
	}

	if cfg.Sinks.SQLite != "" {
		st, err := store.NewStore(cfg.Sinks.SQLite)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		run, err := st.CreateRun(string(cfgJSON))
		if err != nil {
			return err
		}
		deps.RunID = run.RunID
		deps.DB = st.DB()
		sinks = append(sinks, sink.NewStore(st, run.RunID, func() int64 {
			if loop == nil {
				return 0
			}
			return loop.GlobalStep()
		}, logger))
	}

	if cfg.Sinks.MetricsAddr != "" {
		prom, shutdown, err := serveMetrics(cfg.Sinks.MetricsAddr, deps.RunID, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		sinks = append(sinks, prom)
	}

	if cfg.Sinks.Remote != "" {
		remote, err := sink.NewRemote(cfg.Sinks.Remote, deps.RunID, logger)
		if err != nil {
			return err
		}
		defer remote.Close()
		sinks = append(sinks, remote)
	}

	deps.Sinks = sinks
	p, err := config.Build(cfg, deps)
	if err != nil {
		return err
	}
	loop = p.Loop

	logger.Info("run started",
		"run_id", deps.RunID,
		"epochs", cfg.Run.Epochs,
		"batches_per_epoch", cfg.Run.BatchesPerEpoch,
		"watchers", len(p.Watchers),
		"dispatchers", len(p.Dispatchers),
	)
	if err := p.Loop.Run(ctx, cfg.Workload()); err != nil {
		return fmt.Errorf("run %s: %w", deps.RunID, err)
	}

	printBests(cmd, deps.RunID, p)
	return nil
}
// #endregion run

// #region metrics-server
func serveMetrics(addr, runID string, logger *slog.Logger) (*sink.Prometheus, func(), error) {
	reg := prometheus.NewRegistry()
	pcfg := sink.DefaultPrometheusConfig()
	pcfg.Registry = reg
	pcfg.ConstLabels = prometheus.Labels{"run_id": runID}
	prom, err := sink.NewPrometheus(pcfg)
	if err != nil {
		return nil, nil, err
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", lis.Addr().String())

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return prom, shutdown, nil
}
// #endregion metrics-server

// #region output
func printBests(cmd *cobra.Command, runID string, p *config.Pipeline) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run: %s\n\n", runID)
	fmt.Fprintf(out, "%-20s| %-6s| %-12s| %s\n", "Metric", "Mode", "Best", "Epoch")
	fmt.Fprintf(out, "%-20s+%-7s+%-13s+%s\n", "--------------------", "-------", "-------------", "------")
	for _, w := range p.Watchers {
		v, epoch, ok := w.Best()
		if !ok {
			fmt.Fprintf(out, "%-20s| %-6s| %-12s| %s\n", w.Metric(), "", "-", "-")
			continue
		}
		fmt.Fprintf(out, "%-20s| %-6s| %-12.6g| %d\n", w.Metric(), w.Mode(), v, epoch)
	}
	if len(p.Dispatchers) > 0 {
		fmt.Fprintln(out)
	}
	for _, d := range p.Dispatchers {
		fmt.Fprintf(out, "%s fired %d time(s)\n", d, d.Fired())
	}
}
// #endregion output
