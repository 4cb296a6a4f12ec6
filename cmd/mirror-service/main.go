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
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/actions"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/chain"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/consumer"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/feed"
	httpapi "github.com/radieske/tournament-mirror-poc/internal/mirror/http"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/notify"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/poller"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/pubsub"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/reconciler"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/remote"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/repo"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/telemetry"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tracker"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/ws"
	sharedcache "github.com/radieske/tournament-mirror-poc/internal/shared/cache"
	"github.com/radieske/tournament-mirror-poc/internal/shared/config"
	"github.com/radieske/tournament-mirror-poc/internal/shared/db"
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

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Métricas Prometheus num registry próprio
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := telemetry.New(reg)

	// Feed assíncrono: os assinantes rodam fora dos locks do núcleo
	em := feed.NewEmitter(feed.WithBuffer(4096), feed.WithLogger(log))

	// Núcleo: store confirmado, overlay otimista, tracker de transações
	st := store.New()
	ov := overlay.New(st, overlay.WithLogger(log), overlay.WithOnChange(em.Views))
	tr := tracker.New(ov, tracker.WithRetention(cfg.TxRetention), tracker.WithLogger(log))
	tr.OnTransition = func(tx model.TxID, _, to tracker.State) {
		m.Transition(string(to), to.Terminal())
		em.Emit(feed.Change{Kind: feed.KindTransaction, Tx: tx, State: string(to)})
	}

	fetcher := remote.New(cfg.IndexerURL, remote.WithLogger(log))
	rec := reconciler.New(st, ov, tr,
		reconciler.WithFetcher(fetcher),
		reconciler.WithFeed(em),
		reconciler.WithMetrics(m),
		reconciler.WithLogger(log),
	)

	// Persistência da view confirmada (warm start + auditoria)
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal("persistence init", zap.String("backend", cfg.Persistence), zap.Error(err))
	}
	var persister *repo.Persister
	if backend != nil {
		defer backend.Close()
		persister = &repo.Persister{Backend: backend, Store: st, Log: log}
		n, err := persister.Warm(ctx)
		if err != nil {
			log.Warn("warm start failed", zap.Error(err))
		}
		log.Info("warm start", zap.String("backend", cfg.Persistence), zap.Int("entities", n))
		persister.Attach(em)
	}

	// Redis Pub/Sub: view de cada instância chega ao WebSocket de todas
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()
	relay := &pubsub.Relay{Pub: pubsub.NewRedisBroadcaster(redisClient), Views: ov, Channel: cfg.RedisPubSubChannel, Log: log}
	relay.Attach(em)
	hub := ws.NewHub(allowOrigin(cfg.AllowedOrigins), log)
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	// Kafka: desfechos de transação, atualizações de entidade e DLQ
	outcomes := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTxOutcomes)
	defer outcomes.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEntityUpdatesDLQ)
	defer dlq.Close()
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicEntityUpdates, cfg.ConsumerGroup)
	defer reader.Close()

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		DLQ:        dlq,
		Reconciler: rec,
		OnConsumed: func() { m.Update("kafka") },
		OnError:    m.ConsumeError,
	}

	svc := actions.New(tr, ov, chain.New(cfg.RelayerURL, cfg.Account),
		actions.Config{TournamentAddress: cfg.TournamentAddress, Account: cfg.Account},
		actions.WithSink(notify.Multi{notify.LogSink{Log: log}, notify.NewKafkaSink(outcomes, log)}),
		actions.WithRefresher(rec),
		actions.WithMetrics(m),
		actions.WithLogger(log),
	)

	// Leitura periódica das entidades que esperam eco e limpeza de órfãos
	poll := poller.New(rec, ov.Awaiting, poller.Config{
		Interval:  cfg.PollInterval,
		PerSecond: cfg.PollRatePerSec,
		Workers:   cfg.PollWorkers,
	}, log)
	janitor := &poller.Janitor{
		Sweeper:   tr,
		Expirer:   ov,
		Interval:  cfg.JanitorInterval,
		OrphanAge: cfg.OrphanAge,
		OnOrphaned: func(txs []model.TxID) {
			m.OrphanedN(len(txs))
			log.Warn("optimistic mutations expired without remote echo", zap.Int("transactions", len(txs)))
		},
		Log: log,
	}

	api := &httpapi.API{Actions: svc, WS: hub.HandleWS, Log: log, ActionTimeout: cfg.ActionTimeout}
	if persister != nil {
		api.History = persister
	}
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router(), ReadHeaderTimeout: 5 * time.Second}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, health(redisClient, backend))
	log.Info("metrics/health listening", zap.String("addr", msrv.Addr))

	var wg conc.WaitGroup
	wg.Go(func() { em.Run(ctx) })
	wg.Go(func() { poll.Run(ctx) })
	wg.Go(func() { janitor.Run(ctx) })
	wg.Go(func() {
		if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("consumer stopped with error", zap.Error(err))
			cancel()
		}
	})
	wg.Go(func() {
		log.Info("mirror-service listening", zap.String("addr", srv.Addr),
			zap.String("tournament", cfg.TournamentAddress), zap.String("account", cfg.Account))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	})

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	wg.Wait()
	log.Info("mirror-service stopped")
}

func openBackend(ctx context.Context, cfg config.Config) (repo.Backend, error) {
	switch cfg.Persistence {
	case "postgres":
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		r := repo.NewPostgres(pg)
		if err := r.EnsureSchema(ctx); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	case "leveldb":
		return repo.NewLevelDB(cfg.LevelDBPath)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence)
	}
}

func health(r *redis.Client, backend repo.Backend) metrics.HealthFunc {
	return func(ctx context.Context) error {
		if err := r.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		if pg, ok := backend.(*repo.Postgres); ok {
			if err := pg.DB.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		return nil
	}
}

func allowOrigin(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		if allowed["*"] {
			return true
		}
		return allowed[r.Header.Get("Origin")]
	}
}
