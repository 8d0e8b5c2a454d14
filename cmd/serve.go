package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vote-ledger/api"
	"vote-ledger/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voting HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8080, "HTTP port")
	flags.Int("batch", 1, "votes per block; 1 seals every vote synchronously")
	flags.Bool("require-signatures", true, "reject ballots without a valid signature")
	flags.String("admin-token", "", "token required in the "+api.AdminTokenHeader+" header for operator routes")
	flags.Int("queue-size", 256, "capacity of the vote submission queue")

	for _, key := range []string{"port", "batch", "require-signatures", "admin-token", "queue-size"} {
		viper.BindPFlag(configKey(key), flags.Lookup(key))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	if cfg.AdminToken == "" {
		log.Warn("No admin token configured, operator routes are disabled")
	}

	queue := service.NewQueueProcessor(a.service, cfg.QueueSize, log.Named("queue"))
	queue.Start()

	server := api.NewServer(a.service, a.session, a.voters, queue,
		api.Config{AdminToken: cfg.AdminToken, Gatherer: a.metrics}, log.Named("api"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", zap.Int("port", cfg.Port), zap.Int("difficulty", cfg.Difficulty),
			zap.Int("batch", cfg.BatchSize), zap.Int("blocks", a.chain.Len()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		queue.Stop()

		if _, sealErr := a.service.SealPending(shutdownCtx); sealErr != nil {
			log.Error("Failed to seal pending votes on shutdown", zap.Error(sealErr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server shutdown completed")
	return nil
}
