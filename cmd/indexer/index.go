package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/entityindexer/internal/blocksource"
	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/events"
	"github.com/rpattn/entityindexer/internal/metrics"
	"github.com/rpattn/entityindexer/internal/processor"
	"github.com/rpattn/entityindexer/internal/server"
)

var (
	indexFile  string
	indexServe bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index blocks from a JSON-lines file",
	Long: `Replays every block in --file above the last indexed block. With --serve
the ops HTTP server (/healthz, /status, /metrics, /entities) runs during the
replay and keeps running until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, conn, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		publisher, closePublisher, err := newPublisher()
		if err != nil {
			return err
		}
		defer closePublisher()

		m := metrics.New()
		p := processor.New(store, registry(),
			processor.WithLogger(logger),
			processor.WithMetrics(m),
			processor.WithPublisher(publisher))
		source := blocksource.NewFileSource(indexFile, logger)

		if !indexServe {
			_, err := source.Replay(ctx, p)
			return err
		}

		srv := server.New(cfg.Ops.Addr, server.NewRouter(p, store, server.Options{
			AllowedOrigins: cfg.Ops.AllowedOrigins,
			Metrics:        m,
			Logger:         logger,
		}), logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error {
			if _, err := source.Replay(gctx, p); err != nil {
				return err
			}
			logger.Info("replay complete, serving until interrupted")
			return nil
		})
		return g.Wait()
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexFile, "file", "", "JSON-lines block file")
	indexCmd.Flags().BoolVar(&indexServe, "serve", false, "run the ops HTTP server")
	_ = indexCmd.MarkFlagRequired("file")
}

// newPublisher builds the change event feed from configuration.
func newPublisher() (events.Publisher, func(), error) {
	if !cfg.Events.Enabled {
		return events.Nop{}, func() {}, nil
	}

	bus := events.NewBusPublisher(nil)
	err := bus.Bus().Subscribe(events.TopicEntityChanged, func(event domain.ChangeEvent) {
		logger.Debug("entity changed",
			zap.String("event_id", event.ID.String()),
			zap.String("entity_type", string(event.EntityType)),
			zap.Int64("entity_id", event.EntityID),
			zap.String("action", string(event.Action)))
	})
	if err != nil {
		return nil, nil, err
	}
	publishers := events.Multi{bus}

	if cfg.Events.RedisAddr == "" {
		return publishers, func() {}, nil
	}
	client, err := events.NewRedisClient(events.RedisConfig{
		Addr:     cfg.Events.RedisAddr,
		Password: cfg.Events.RedisPassword,
		DB:       cfg.Events.RedisDB,
		Stream:   cfg.Events.RedisStream,
		MaxLen:   cfg.Events.RedisMaxLen,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable, stream publishing will fail until it recovers", zap.Error(err))
	}
	publishers = append(publishers, events.NewRedisPublisher(client, cfg.Events.RedisStream, cfg.Events.RedisMaxLen))
	return publishers, func() { _ = client.Close() }, nil
}
