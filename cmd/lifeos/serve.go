package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/lifeos/internal/pipeline"
	"github.com/mohammad-safakhou/lifeos/internal/queue/streams"
	"github.com/mohammad-safakhou/lifeos/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the stale-capture sweeper and, in inline mode, the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if addr != "" {
				cfg.Server.Address = addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var inline *pipeline.Inline
			switch cfg.Pipeline.Mode {
			case "queue":
				if err := streams.EnsureGroup(ctx, a.rdb, streams.StreamCaptures, streams.DefaultConsumerGroup); err != nil {
					return err
				}
				pub := streams.NewPublisher(a.rdb, a.registry,
					streams.WithMaxLenApprox(100_000), streams.WithPublisherMetrics(a.metrics))
				a.pipeline.UseLauncher(pipeline.NewStream(pub))
			default:
				inline = pipeline.NewInline(a.pipeline, cfg.Pipeline.MaxConcurrent, logger.Named("launcher"))
				a.pipeline.UseLauncher(inline)
			}

			sweeper, err := a.sweeper()
			if err != nil {
				return err
			}
			srv := server.New(cfg.Server, cfg.Telemetry, server.Deps{
				Ingestor: a.pipeline,
				Records:  a.store,
				Search:   a.index,
				Metrics:  a.metrics,
				Logger:   logger.Named("http"),
				Health:   a.health,
			})

			logger.Info("lifeos starting", zap.String("mode", cfg.Pipeline.Mode), zap.String("addr", cfg.Server.Address))
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			g.Go(func() error { return sweeper.Start(gctx) })
			err = g.Wait()

			if inline != nil {
				drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Pipeline.EnrichmentTimeout+30*time.Second)
				defer drainCancel()
				if cerr := inline.Close(drainCtx); cerr != nil {
					logger.Warn("in-flight captures cancelled on shutdown", zap.Error(cerr))
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return cmd
}
