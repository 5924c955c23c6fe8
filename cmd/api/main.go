package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"coralrefuge.org/internal/app"
	"coralrefuge.org/internal/config"
	"coralrefuge.org/internal/httpapi"
	"coralrefuge.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const healthInterval = 10 * time.Second

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build services")
	}
	defer func() { _ = svc.Close() }()

	probe := httpapi.ReadyProbe{DB: svc.DB}
	api := httpapi.New(probe, httpapi.Options{
		Version:        version,
		Catalog:        svc.Catalog,
		Store:          svc.Store,
		Checkout:       svc.Checkout,
		Fulfiller:      svc.Fulfiller,
		Partners:       svc.Partners,
		Feed:           svc.Feed,
		Tokens:         svc.Tokens,
		Admin:          svc.Admin,
		WebhookSecret:  cfg.StripeWebhookSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		RateBurst:      cfg.RateBurst,
		RatePerSecond:  cfg.RatePerSecond,
	})

	// WriteTimeout stays unset: /v1/feed holds its response open.
	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting coral-refuge-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	health := httpapi.NewHealthServer(probe)
	go health.Run(ctx, healthInterval)

	var grpcSrv *grpc.Server
	if cfg.GRPCListenAddress != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListenAddress)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.GRPCListenAddress).Msg("grpc listen")
		}
		grpcSrv = grpc.NewServer()
		health.Register(grpcSrv)
		go func() {
			log.Info().Str("addr", cfg.GRPCListenAddress).Msg("starting grpc health")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Msg("grpc serve")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Info().Msg("stopped")
}
