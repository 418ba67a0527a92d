package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/foundrysync/mimic/internal/logger"
	"github.com/foundrysync/mimic/internal/telemetry"
	"github.com/foundrysync/mimic/pkg/auth"
	authjwt "github.com/foundrysync/mimic/pkg/auth/jwt"
	authstatic "github.com/foundrysync/mimic/pkg/auth/static"
	"github.com/foundrysync/mimic/pkg/coldstorage"
	coldmemory "github.com/foundrysync/mimic/pkg/coldstorage/memory"
	coldpostgres "github.com/foundrysync/mimic/pkg/coldstorage/postgres"
	"github.com/foundrysync/mimic/pkg/config"
	"github.com/foundrysync/mimic/pkg/connection"
	"github.com/foundrysync/mimic/pkg/document"
	"github.com/foundrysync/mimic/pkg/hotstorage"
	hotbadger "github.com/foundrysync/mimic/pkg/hotstorage/badger"
	hotmemory "github.com/foundrysync/mimic/pkg/hotstorage/memory"
	"github.com/foundrysync/mimic/pkg/metrics"
	_ "github.com/foundrysync/mimic/pkg/metrics/prometheus"
	"github.com/foundrysync/mimic/pkg/model"
	"github.com/foundrysync/mimic/pkg/registry"
	"github.com/foundrysync/mimic/pkg/schema/jsonmerge"
	"github.com/foundrysync/mimic/pkg/sharding"
	"github.com/foundrysync/mimic/pkg/transport/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document synchronization server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.L(ctx).Warn("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := metrics.InitRegistry()
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	coldStore, err := buildColdStorage(cfg.Storage.ColdStorage)
	if err != nil {
		return fmt.Errorf("build cold storage: %w", err)
	}
	hotStore, err := buildHotStorage(cfg.Storage.HotStorage)
	if err != nil {
		return fmt.Errorf("build hot storage: %w", err)
	}
	authProvider, err := buildAuth(cfg.Auth)
	if err != nil {
		return fmt.Errorf("build auth provider: %w", err)
	}
	applier := jsonmerge.New()

	docMetrics := metrics.NewDocumentMetrics()
	registryMetrics := metrics.NewRegistryMetrics()
	presenceMetrics := metrics.NewPresenceMetrics()
	shardingMetrics := metrics.NewShardingMetrics()

	factory := func(documentID string) document.Config {
		return document.Config{
			DocumentID:                   documentID,
			ColdStore:                    coldStore,
			HotStore:                     hotStore,
			Applier:                      applier,
			MaxIdleTime:                  cfg.Document.MaxIdleTime,
			MaxTransactionHistory:        cfg.Document.MaxTransactionHistory,
			SnapshotInterval:             cfg.Document.SnapshotInterval,
			SnapshotTransactionThreshold: cfg.Document.SnapshotTransactionThreshold,
			BroadcastBufferSize:          cfg.Broadcast.BufferSize,
			OverflowPolicy:               document.OverflowPolicy(cfg.Broadcast.OverflowPolicy),
			StorageCallTimeout:           cfg.Document.StorageCallTimeout,
			Sharded:                      cfg.Sharding.Enabled,
			Metrics:                      docMetrics,
		}
	}

	reg := registry.New(factory, cfg.Document.MaxIdleTime, cfg.Document.GCInterval, presenceMetrics, registryMetrics)
	defer reg.Shutdown(context.Background())

	var shardRouter *sharding.Router
	if cfg.Sharding.Enabled {
		localHandler := sharding.NewLocalHandler(cfg.Sharding.NodeID, reg, cfg.Sharding.MailboxCapacity, shardingMetrics)
		defer localHandler.Close()

		grpcSrv, err := startShardListener(cfg.Sharding.ListenAddr, localHandler)
		if err != nil {
			return fmt.Errorf("start shard rpc listener: %w", err)
		}
		defer grpcSrv.GracefulStop()
		logger.L(ctx).Info("shard rpc listening", "addr", cfg.Sharding.ListenAddr, "node_id", cfg.Sharding.NodeID)

		ring := sharding.NewRing()
		for nodeID := range cfg.Sharding.Members {
			ring.Add(nodeID, cfg.Sharding.VirtualNodes)
		}
		members := sharding.NewStaticMemberList(cfg.Sharding.NodeID, cfg.Sharding.Members)
		shardRouter = sharding.NewRouter(cfg.Sharding.NodeID, ring, members, localHandler, shardingMetrics)
	}

	wsConfig := ws.Config{
		BasePath:          cfg.Server.BasePath,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Server.HeartbeatTimeout,
		Presence:          connection.PresenceConfig{Enabled: cfg.Document.PresenceEnabled},
	}
	var wsServer *ws.Server
	if shardRouter != nil {
		wsServer = ws.New(wsConfig, reg, authProvider, applier, shardRouter)
	} else {
		wsServer = ws.New(wsConfig, reg, authProvider, applier)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: wsServer.Router(metricsHandler),
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.L(ctx).Info("listening", "addr", cfg.Server.ListenAddr, "base_path", cfg.Server.BasePath)
		err := httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		serverDone <- err
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L(ctx).Info("shutdown signal received", "signal", sig.String())
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("listener error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.L(ctx).Warn("http shutdown error", logger.KeyError, err)
	}
	return nil
}

func buildColdStorage(cfg config.ColdStorageConfig) (coldstorage.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return coldmemory.New(), nil
	case "postgres":
		return coldpostgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown cold storage driver %q", cfg.Driver)
	}
}

func buildHotStorage(cfg config.HotStorageConfig) (hotstorage.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return hotmemory.New(), nil
	case "badger":
		return hotbadger.Open(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown hot storage driver %q", cfg.Driver)
	}
}

func buildAuth(cfg config.AuthConfig) (auth.Provider, error) {
	switch cfg.Driver {
	case "", "static":
		tokens := make(map[string]authstatic.Identity, len(cfg.Static.Tokens))
		for token, id := range cfg.Static.Tokens {
			tokens[token] = authstatic.Identity{UserID: id.UserID, Permission: model.Permission(id.Permission)}
		}
		return authstatic.New(tokens), nil
	case "jwt":
		if cfg.JWT.HMACSecret != "" {
			return authjwt.NewHMAC([]byte(cfg.JWT.HMACSecret)), nil
		}
		if cfg.JWT.RSAPublicKey != "" {
			pemBytes, err := os.ReadFile(cfg.JWT.RSAPublicKey)
			if err != nil {
				return nil, fmt.Errorf("read rsa public key: %w", err)
			}
			key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
			if err != nil {
				return nil, fmt.Errorf("parse rsa public key: %w", err)
			}
			return authjwt.NewRSA(key), nil
		}
		return nil, fmt.Errorf("jwt auth driver requires hmac_secret or rsa_public_key_path")
	default:
		return nil, fmt.Errorf("unknown auth driver %q", cfg.Driver)
	}
}

