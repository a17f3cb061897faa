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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// Logger
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := LoadConfig()
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Str("db", cfg.DBPath).
		Bool("events", cfg.RabbitURL != "").
		Msg("starting storefront service")

	// Repo
	repo, err := NewRepository(cfg.DBPath)
	must(err)
	defer repo.Close()

	if cfg.SeedOnStart {
		seeded, err := repo.Seed(context.Background())
		must(err)
		if seeded {
			log.Info().Str("user", demoEmail).Msg("seeded catalog and demo user")
		}
	}

	// Rabbit
	rabbit, err := NewRabbit(cfg.RabbitURL, cfg.RabbitExchange, cfg.ServiceName)
	if err != nil {
		log.Warn().Err(err).Msg("RabbitMQ not available, continuing without events")
		rabbit = nil
	}
	defer rabbit.Close()
	consumeCtx, cancelConsume := context.WithCancel(context.Background())
	defer cancelConsume()
	if err := rabbit.ConsumeTopic(consumeCtx, cfg.StockQueue, []string{EvStockSet}, stockHandler(repo)); err != nil {
		log.Warn().Err(err).Msg("stock consumer not started")
	}

	// gRPC: health + reflection
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err)
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	hs.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
		}
	}()

	// HTTP
	srv := NewServer(repo, rabbit, log.Logger, cfg.SessionTTL)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Señales para apagado limpio
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Warn().Msg("shutting down...")
		hs.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
		grpcSrv.GracefulStop()
	}()

	log.Info().Msg("http listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http serve")
	}
	<-done
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
