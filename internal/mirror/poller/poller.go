// Package poller dirige as leituras periódicas no indexador e a limpeza
// de transações e mutações antigas.
package poller

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// Refresher lê e reconcilia uma entidade (implementado pelo Reconciler)
type Refresher interface {
	Refresh(ctx context.Context, ids ...model.ID) error
}

// Poller relê, a cada intervalo, as entidades devolvidas por IDs.
// O limiter protege o indexador; o pool limita as leituras simultâneas.
type Poller struct {
	refresher Refresher
	ids       func() []model.ID
	interval  time.Duration
	limiter   *rate.Limiter
	workers   int
	log       *zap.Logger
}

type Config struct {
	Interval  time.Duration
	PerSecond float64
	Burst     int
	Workers   int
}

func New(r Refresher, ids func() []model.ID, cfg Config, log *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		refresher: r,
		ids:       ids,
		interval:  cfg.Interval,
		limiter:   rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst),
		workers:   cfg.Workers,
		log:       log,
	}
}

// Run executa Tick a cada intervalo até ctx terminar
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Tick(ctx)
			if err != nil && ctx.Err() == nil {
				p.log.Warn("poll tick finished with errors", zap.Int("entities", n), zap.Error(err))
			}
		}
	}
}

// Tick relê todas as entidades uma vez. Devolve quantas foram disparadas.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	ids := p.ids()
	wp := pool.New().WithErrors().WithMaxGoroutines(p.workers)
	n := 0
	var waitErr error
	for _, id := range ids {
		if waitErr = p.limiter.Wait(ctx); waitErr != nil {
			break
		}
		n++
		wp.Go(func() error {
			return p.refresher.Refresh(ctx, id)
		})
	}
	err := wp.Wait()
	if err == nil {
		err = waitErr
	}
	return n, err
}
