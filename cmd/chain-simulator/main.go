package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/chain-simulator/ledger"
	"github.com/radieske/tournament-mirror-poc/internal/chain-simulator/relayer"
	"github.com/radieske/tournament-mirror-poc/internal/shared/config"
	"github.com/radieske/tournament-mirror-poc/internal/shared/kafka"
	"github.com/radieske/tournament-mirror-poc/internal/shared/logger"
	"github.com/radieske/tournament-mirror-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Atualizações de entidade vão para o mesmo tópico consumido pelo espelho
	updates := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEntityUpdates)
	defer updates.Close()

	s := &relayer.Server{
		Ledger:     ledger.New(cfg.ERC721Tokens...),
		Index:      relayer.NewIndexer(),
		Pub:        &relayer.KafkaPublisher{W: updates, Source: cfg.ServiceName},
		Metrics:    relayer.NewMetrics(reg),
		Log:        log,
		AcceptRate: cfg.AcceptRate,
		BlockDelay: cfg.BlockDelay,
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, nil)
	log.Info("chain simulator (metrics) running", zap.String("addr", msrv.Addr), zap.String("paths", "/healthz,/metrics"))

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("chain simulator (public) running",
			zap.String("addr", srv.Addr),
			zap.String("paths", "/execute,/entities/{id},/tournaments/count"),
			zap.Float64("accept_rate", cfg.AcceptRate),
			zap.Duration("block_delay", cfg.BlockDelay),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("public server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("chain simulator stopped")
}
