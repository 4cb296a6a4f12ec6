// Package reconciler aplica a verdade remota no espelho local e aposenta as mutações
// otimistas que ela já reflete.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/feed"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/telemetry"
)

// Confirmer leva transações a Confirmed (implementado pelo Tracker)
type Confirmer interface {
	MarkConfirmed(tx model.TxID) bool
}

// Fetcher lê uma entidade direto da origem remota.
// Deve devolver model.ErrNotFound quando a entidade não existe.
type Fetcher interface {
	Fetch(ctx context.Context, id model.ID) (model.Payload, model.Version, error)
}

// Outcome resume o efeito de um Reconcile
type Outcome struct {
	Changed bool
	Stale   bool
	Retired []model.TxID
}

type Reconciler struct {
	store     *store.Store
	overlay   *overlay.Overlay
	confirmer Confirmer
	fetcher   Fetcher
	feed      *feed.Emitter
	metrics   *telemetry.Metrics
	log       *zap.Logger
	workers   int
	locks     *keyedMutex
}

// Option configura o Reconciler
type Option func(*Reconciler)

func WithFetcher(f Fetcher) Option { return func(r *Reconciler) { r.fetcher = f } }

func WithFeed(e *feed.Emitter) Option { return func(r *Reconciler) { r.feed = e } }

func WithMetrics(m *telemetry.Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(r *Reconciler) { r.log = l } }

// WithWorkers limita a concorrência de ReconcileBatch e Refresh
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

func New(s *store.Store, o *overlay.Overlay, c Confirmer, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     s,
		overlay:   o,
		confirmer: c,
		log:       zap.NewNop(),
		workers:   runtime.GOMAXPROCS(0),
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile faz o merge versionado da leitura remota. Leituras antigas não têm efeito.
// Quando o Store muda, as mutações superadas são aposentadas no mesmo passo e
// as transações que ficaram sem pendências vão para Confirmed.
func (r *Reconciler) Reconcile(ctx context.Context, id model.ID, payload model.Payload, version model.Version) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if id == "" {
		return Outcome{}, errors.New("reconcile: empty entity id")
	}

	unlock := r.locks.Lock(id)
	completed, changed := r.overlay.Absorb(id, func() bool {
		return r.store.Merge(id, payload, version)
	}, payload)
	unlock()

	r.metrics.Merge(changed)
	if !changed {
		r.log.Debug("stale remote read ignored",
			zap.String("entity", string(id)), zap.Uint64("version", uint64(version)))
		return Outcome{Stale: true}, nil
	}

	if r.feed != nil {
		r.feed.Emit(feed.Change{Kind: feed.KindConfirmed, Entity: id, Version: version, Payload: payload.Clone()})
	}

	retired := make([]model.TxID, 0, len(completed))
	for _, tx := range completed {
		if r.confirmer != nil && r.confirmer.MarkConfirmed(tx) {
			r.log.Info("transaction confirmed by remote echo", zap.String("tx", string(tx)), zap.String("entity", string(id)))
		}
		retired = append(retired, tx)
	}
	r.metrics.RetiredN(len(retired))

	return Outcome{Changed: true, Retired: retired}, nil
}

// ReconcileBatch processa atualizações em paralelo entre entidades,
// mantendo a ordem de chegada dentro de cada entidade.
func (r *Reconciler) ReconcileBatch(ctx context.Context, updates []model.Update) ([]Outcome, error) {
	out := make([]Outcome, len(updates))
	groups := make(map[model.ID][]int)
	order := make([]model.ID, 0)
	for i, u := range updates {
		if _, ok := groups[u.ID]; !ok {
			order = append(order, u.ID)
		}
		groups[u.ID] = append(groups[u.ID], i)
	}

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(r.workers)
	for _, id := range order {
		idxs := groups[id]
		p.Go(func(ctx context.Context) error {
			for _, i := range idxs {
				u := updates[i]
				res, err := r.Reconcile(ctx, u.ID, u.Payload, u.Version)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", u.ID, err)
				}
				out[i] = res
			}
			return nil
		})
	}
	err := p.Wait()
	return out, err
}

// Refresh lê as entidades direto na origem remota e reconcilia o resultado.
// Entidades inexistentes são ignoradas.
func (r *Reconciler) Refresh(ctx context.Context, ids ...model.ID) error {
	if r.fetcher == nil {
		return errors.New("refresh: no fetcher configured")
	}

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(r.workers)
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			payload, version, err := r.fetcher.Fetch(ctx, id)
			if errors.Is(err, model.ErrNotFound) {
				r.metrics.Fetch("not_found")
				return nil
			}
			if err != nil {
				r.metrics.Fetch("error")
				return fmt.Errorf("fetch %s: %w", id, err)
			}
			r.metrics.Fetch("ok")
			_, err = r.Reconcile(ctx, id, payload, version)
			return err
		})
	}
	return p.Wait()
}
