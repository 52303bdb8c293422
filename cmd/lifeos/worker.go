package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/lifeos/internal/queue/streams"
	"github.com/mohammad-safakhou/lifeos/internal/worker"
)

func workerCMD(cfgPath *string) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume capture.ingested events and run the pipeline (pipeline.mode=queue)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if cfg.Pipeline.Mode != "queue" {
				return fmt.Errorf("worker requires pipeline.mode=queue, got %q", cfg.Pipeline.Mode)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := streams.EnsureGroup(ctx, a.rdb, streams.StreamCaptures, group); err != nil {
				return err
			}
			name := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(a.rdb, a.registry, group, name, logger.Named("consumer"), a.metrics)
			proc := worker.NewProcessor(logger.Named("worker"), a.pipeline, consumer, streams.StreamCaptures,
				worker.WithMetrics(a.metrics), worker.WithClaimIdle(cfg.Pipeline.EnrichmentTimeout+cfg.Pipeline.StaleAfter/2))
			return proc.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&group, "group", streams.DefaultConsumerGroup, "consumer group name")
	return cmd
}
