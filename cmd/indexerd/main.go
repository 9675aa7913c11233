// Command indexerd serves indexed village records over gRPC and WebSocket for development.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/villagekeeper/internal/config"
	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/migrate"
	"github.com/and161185/villagekeeper/internal/repository/postgres"
	grpcserver "github.com/and161185/villagekeeper/internal/server/grpc"
	wsserver "github.com/and161185/villagekeeper/internal/server/ws"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, optionally seeds records and serves until signalled.
func main() {
	fs := flag.NewFlagSet("indexerd", flag.ExitOnError)
	seed := fs.String("seed", "", "JSON file of records to upsert at startup")
	cfg, err := config.ParseIndexer(fs, os.Args[1:])

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddr),
		zap.String("wsAddr", cfg.WSAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN, int32(cfg.MaxConns))
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	entities := postgres.NewEntityRepo(db)
	subs := postgres.NewSubscriptionRepo(db)

	if *seed != "" {
		f, err := os.Open(*seed)
		if err != nil {
			logger.Fatal("open seed", zap.Error(err))
		}
		n, err := indexer.Seed(ctx, entities, f, logger)
		_ = f.Close()
		if err != nil {
			logger.Fatal("seed", zap.Error(err))
		}
		logger.Info("seed complete", zap.Int("records", n))
	}

	local := indexer.NewLocal(entities, cfg.PollInterval, logger.Named("poll"))
	key := []byte(cfg.JWTKey)
	if len(key) == 0 {
		logger.Warn("no jwt key; serving without authentication")
	}

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(key),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.LoggingStream(logger),
			grpcserver.AuthStream(key),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)

	app := grpcserver.New(indexer.Combine(local, indexer.Audited(local, subs, "grpc", logger)), logger)
	grpcserver.RegisterIndexerServer(s, app)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	var hsrv *http.Server
	if cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", wsserver.New(indexer.Audited(local, subs, "ws", logger), key, cfg.Origins, logger))
		hsrv = &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: wsserver.HandshakeTimeout}
		go func() {
			logger.Info("websocket listening", zap.String("addr", cfg.WSAddr))
			var err error
			if cfg.TLSCert != "" {
				err = hsrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			} else {
				err = hsrv.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		hs.Shutdown()
		if hsrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = hsrv.Shutdown(sctx)
			cancel()
		}
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
