package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/trainwatch/internal/sink"
	"github.com/danielpatrickdp/trainwatch/internal/store"
)

// #region command
type collectOptions struct {
	listen string
	db     string
}

func newCollectCmd() *cobra.Command {
	opts := &collectOptions{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Serve the MetricSink gRPC service that run --remote ships to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollector(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", ":7070", "gRPC listen address")
	cmd.Flags().StringVar(&opts.db, "db", "", "store received values in this SQLite database")
	return cmd
}
// #endregion command

// #region collector
// collector stores each Record call under the sender's run ID. A run's
// batches are numbered in arrival order and the number is stored as the step.
type collector struct {
	mu     sync.Mutex
	store  *store.Store // nil logs only
	seq    map[string]int64
	logger *slog.Logger
}

func newCollector(st *store.Store, logger *slog.Logger) *collector {
	return &collector{store: st, seq: make(map[string]int64), logger: logger}
}

func (c *collector) Record(_ context.Context, runID string, points []sink.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.seq[runID]
	c.seq[runID] = seq + 1
	c.logger.Info("record received", "run_id", runID, "batch", seq, "points", len(points))
	if c.store == nil {
		return nil
	}
	if err := c.store.EnsureRun(runID); err != nil {
		return err
	}
	for _, p := range points {
		if err := c.store.LogMetric(runID, seq, p.Name, p.Value); err != nil {
			return fmt.Errorf("store %s: %w", p.Name, err)
		}
	}
	return nil
}

func runCollector(cmd *cobra.Command, opts *collectOptions) error {
	logger := slog.Default()
	var st *store.Store
	if opts.db != "" {
		var err error
		st, err = store.NewStore(opts.db)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	lis, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.listen, err)
	}
	srv := grpc.NewServer()
	sink.RegisterRemoteServer(srv, newCollector(st, logger).Record)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("collector listening", "addr", lis.Addr().String(), "db", opts.db)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.GracefulStop()
		return nil
	})
	return g.Wait()
}
// #endregion collector
