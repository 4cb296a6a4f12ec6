package repo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/feed"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
)

// Persister grava no Backend cada versão confirmada e cada transição de transação.
// Roda como assinante do feed assíncrono.
type Persister struct {
	Backend Backend
	Store   *store.Store
	Log     *zap.Logger
	Timeout time.Duration
	Now     func() time.Time
}

// Attach assina o feed
func (p *Persister) Attach(e *feed.Emitter) {
	e.Subscribe(feed.KindConfirmed, p.confirmed)
	e.Subscribe(feed.KindTransaction, p.transition)
}

// Warm carrega os registros persistidos no Store. Devolve quantos foram aceitos.
func (p *Persister) Warm(ctx context.Context) (int, error) {
	recs, err := p.Backend.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return p.Store.Seed(recs), nil
}

// confirmed grava o registro carregado na mudança. Reler o Store aqui perderia a
// versão quando um commit eager chega entre o merge e a entrega.
func (p *Persister) confirmed(c feed.Change) {
	// sem versão não é verdade remota
	if c.Entity == "" || c.Version == 0 {
		return
	}
	rec := store.Record{
		ID:        c.Entity,
		Payload:   c.Payload.Clone(),
		Version:   c.Version,
		Deleted:   c.Payload == nil,
		UpdatedAt: p.now().UTC(),
	}
	ctx, cancel := p.ctx()
	defer cancel()
	err := p.Backend.SaveEntity(ctx, rec)
	if errors.Is(err, ErrStale) {
		return
	}
	if err != nil {
		p.logger().Warn("persist entity failed", zap.String("entity", string(c.Entity)), zap.Error(err))
	}
}

func (p *Persister) transition(c feed.Change) {
	ctx, cancel := p.ctx()
	defer cancel()
	e := TxLogEntry{TxID: c.Tx, State: c.State, CreatedAt: p.now().UTC()}
	if err := p.Backend.LogTransition(ctx, e); err != nil {
		p.logger().Warn("persist transition failed", zap.String("tx", string(c.Tx)), zap.Error(err))
	}
}

// History devolve as transições gravadas de uma transação
func (p *Persister) History(ctx context.Context, tx model.TxID) ([]TxLogEntry, error) {
	return p.Backend.TxLog(ctx, tx)
}

func (p *Persister) ctx() (context.Context, context.CancelFunc) {
	d := p.Timeout
	if d <= 0 {
		d = 3 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

func (p *Persister) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Persister) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
