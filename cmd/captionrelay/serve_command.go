package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/cwrk-planet/caption-relay/config"
	"github.com/cwrk-planet/caption-relay/internal/gate"
	"github.com/cwrk-planet/caption-relay/internal/logger"
	"github.com/cwrk-planet/caption-relay/internal/relay"
	grpcx "github.com/cwrk-planet/caption-relay/internal/transport/grpc"
	httpx "github.com/cwrk-planet/caption-relay/internal/transport/http"
	"github.com/cwrk-planet/caption-relay/internal/transport/ws"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(sigCtx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Init(cfg.LoggerConfig())
	log.Info("starting caption-relay",
		"env", cfg.Logging.Env,
		"version", cfg.Logging.Version,
		"storage", cfg.Storage.Driver)

	// --- storage ---
	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close store", "err", err)
		}
	}()

	g, err := gate.New(cfg.GateConfig())
	if err != nil {
		return err
	}
	log.Info("access gate", "mode", g.Mode())

	manager := relay.NewManager(store, cfg.RelayConfig(), log)

	// --- WS & HTTP ---
	wsServer := ws.NewServer(manager, g, cfg.WSConfig(), log)
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(manager),
		WS:             wsServer,
		Gate:           g,
		Log:            log,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	readTimeout, writeTimeout, idleTimeout, shutdownTimeout := cfg.HTTPTimeouts()
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// --- gRPC ---
	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
	)
	if cfg.GRPC.Addr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(log, cfg.GRPCCallTimeout())),
			grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor(log)),
		)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return manager.Run(egCtx)
	})

	eg.Go(func() error {
		log.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcServer != nil {
		healthSrv := grpcx.Register(grpcServer, grpcx.NewServer(manager, g))
		eg.Go(func() error {
			log.Info("grpc listen", "addr", cfg.GRPC.Addr)
			return grpcServer.Serve(grpcLis)
		})
		eg.Go(func() error {
			<-egCtx.Done()
			healthSrv.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	// --- graceful shutdown ---
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info("shutting down", "cause", context.Cause(egCtx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "err", err)
		}
		wsServer.Shutdown()
		manager.Close()
		return nil
	})

	err = eg.Wait()
	log.Info("stopped")
	return err
}
