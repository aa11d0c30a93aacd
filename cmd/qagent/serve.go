package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/cartridge/qagent/internal/checkpoint"
	"github.com/cartridge/qagent/internal/config"
	"github.com/cartridge/qagent/internal/estimator"
	"github.com/cartridge/qagent/internal/events"
	"github.com/cartridge/qagent/internal/httpapi"
	"github.com/cartridge/qagent/internal/learner"
	"github.com/cartridge/qagent/internal/metrics"
	"github.com/cartridge/qagent/internal/rpc"
	"github.com/cartridge/qagent/internal/service"
	"github.com/cartridge/qagent/internal/storage"
	"github.com/cartridge/qagent/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent over gRPC and HTTP",
	Example: `  qagent serve --state-dims position,velocity --action-dims force
  QAGENT_STORAGE_DRIVER=sqlite QAGENT_STORAGE_DSN=file:agent.db qagent serve --config qagent.yaml`,
	RunE: runServe,
}

func init() {
	d := config.Default()
	f := serveCmd.Flags()

	// Agent settings
	f.StringSlice("state-dims", nil, "Ordered state dimension names")
	f.StringSlice("action-dims", nil, "Ordered action dimension names")
	f.Float64("learning-rate", d.Agent.LearningRate, "Learning rate, also the exploration probability")
	f.Float64("accuracy", d.Agent.Accuracy, "Action search accuracy in (0,1)")
	f.Float64("default-q", d.Agent.DefaultQ, "Value assumed where nothing has been learned")
	f.Int("k", d.Agent.K, "Neighbour count of the estimator")
	f.Int("capacity", d.Agent.Capacity, "Maximum stored points (0 for unlimited)")
	f.Int64("seed", d.Agent.Seed, "Exploration seed (0 seeds from the clock)")

	// Server settings
	f.String("grpc-addr", d.Server.GRPCAddr, "gRPC listen address (empty disables)")
	f.String("http-addr", d.Server.HTTPAddr, "HTTP listen address (empty disables)")

	// Storage settings
	f.String("storage-driver", d.Storage.Driver, "Snapshot store (memory, sqlite, postgres)")
	f.String("storage-dsn", d.Storage.DSN, "Snapshot store data source name")
	f.Bool("restore", d.Storage.RestoreOnStart, "Restore the latest snapshot on start")

	// Events
	f.Bool("nats", d.NATS.Enabled, "Publish agent events to NATS")
	f.String("nats-url", d.NATS.URL, "NATS server URL")

	// Checkpoints
	f.Duration("checkpoint-interval", d.Checkpoint.Interval, "Interval between snapshots (0 disables)")
	f.Int("checkpoint-keep", d.Checkpoint.Keep, "Snapshots retained after each checkpoint (0 keeps all)")

	for _, b := range []struct{ flag, key string }{
		{"state-dims", "agent.state_dims"},
		{"action-dims", "agent.action_dims"},
		{"learning-rate", "agent.learning_rate"},
		{"accuracy", "agent.accuracy"},
		{"default-q", "agent.default_q"},
		{"k", "agent.k"},
		{"capacity", "agent.capacity"},
		{"seed", "agent.seed"},
		{"grpc-addr", "server.grpc_addr"},
		{"http-addr", "server.http_addr"},
		{"storage-driver", "storage.driver"},
		{"storage-dsn", "storage.dsn"},
		{"restore", "storage.restore_on_start"},
		{"nats", "nats.enabled"},
		{"nats-url", "nats.url"},
		{"checkpoint-interval", "checkpoint.interval"},
		{"checkpoint-keep", "checkpoint.keep"},
	} {
		if err := v.BindPFlag(b.key, f.Lookup(b.flag)); err != nil {
			panic(err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := newLearner(cfg.Agent, logger)
	if err != nil {
		return fmt.Errorf("create learner: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("failed to close snapshot store")
		}
	}()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.Enabled {
		nc, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		publisher = nc
	}

	collector := metrics.NewCollector(logger)
	agent := service.NewAgent(l, store, publisher, collector, &logger)

	if cfg.Storage.RestoreOnStart {
		record, err := agent.RestoreLatest(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			logger.Info().Msg("no snapshot to restore, starting fresh")
		case err != nil:
			return fmt.Errorf("restore latest snapshot: %w", err)
		default:
			logger.Info().Str("snapshot_id", record.ID).Int("points", record.Points).Msg("resumed from snapshot")
		}
	}

	errCh := make(chan error, 2)

	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddr, err)
		}
		grpcServer = rpc.NewGRPCServer(agent, logger)
		go func() {
			logger.Info().Str("addr", lis.Addr().String()).Msg("agent gRPC server starting")
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           httpapi.NewServer(agent, collector, &logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("agent HTTP server starting")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	var runner *checkpoint.Runner
	runnerDone := make(chan struct{})
	runnerCtx, stopRunner := context.WithCancel(ctx)
	defer stopRunner()
	if cfg.Checkpoint.Interval > 0 {
		runner = checkpoint.NewRunner(agent, checkpoint.Config{
			Interval: cfg.Checkpoint.Interval,
			Keep:     cfg.Checkpoint.Keep,
		}, logger.With().Str("component", "checkpoint").Logger())
		go func() {
			runner.Start(runnerCtx)
			close(runnerDone)
		}()
	} else {
		close(runnerDone)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("server failed")
	}

	stopRunner()
	<-runnerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful HTTP shutdown failed")
		}
	}
	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer, logger)
	}
	if runner != nil {
		if err := runner.Checkpoint(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("final checkpoint failed")
		}
	}

	logger.Info().Msg("agent stopped")
	return serveErr
}

// newLearner builds a learner with a kNN estimator and applies the agent
// settings in one step.
func newLearner(cfg config.AgentConfig, logger zerolog.Logger) (*learner.Learner, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	est := estimator.NewKNN(estimator.WithCapacity(cfg.Capacity))
	l, err := learner.New(cfg.StateDims, cfg.ActionDims, est,
		learner.WithRand(rand.New(rand.NewSource(seed))),
		learner.WithLogger(logger.With().Str("component", "learner").Logger()),
	)
	if err != nil {
		return nil, err
	}

	k := cfg.K
	settings := types.Settings{
		LearningRate:   &cfg.LearningRate,
		DiscountFactor: &cfg.DiscountFactor,
		Accuracy:       &cfg.Accuracy,
		DefaultQ:       &cfg.DefaultQ,
		K:              &k,
	}
	if err := l.Configure(settings); err != nil {
		return nil, err
	}
	return l, nil
}

// stopGRPC drains in-flight calls, forcing a stop once ctx expires.
func stopGRPC(ctx context.Context, server *grpc.Server, logger zerolog.Logger) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		logger.Warn().Msg("shutdown timeout exceeded, forcing gRPC stop")
		server.Stop()
	case <-stopped:
		logger.Info().Msg("gRPC server stopped gracefully")
	}
}
