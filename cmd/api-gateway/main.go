package main

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/gateway"
	"github.com/radieske/tournament-mirror-poc/internal/shared/config"
	"github.com/radieske/tournament-mirror-poc/internal/shared/logger"
	"github.com/radieske/tournament-mirror-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// /api/mirror/* -> mirror-service, /api/chain/* -> relayer/indexer
	h, err := gateway.New([]gateway.Route{
		{Prefix: "/api/mirror", Target: cfg.MirrorURL},
		{Prefix: "/api/chain", Target: cfg.RelayerURL},
	}, cfg.AllowedOrigins, log)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, nil)
	log.Info("metrics/health listening", zap.String("addr", msrv.Addr))

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	log.Info("api-gateway listening", zap.String("addr", srv.Addr),
		zap.String("mirror", cfg.MirrorURL), zap.String("chain", cfg.RelayerURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
