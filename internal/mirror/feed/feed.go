// Package feed distribui notificações de mudança do espelho local para os assinantes
// (persistência, broadcast via Redis, WebSocket).
package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// Kind rotula o que mudou
type Kind string

const (
	// KindView: a view especulativa de uma entidade mudou (apply, revert, commit)
	KindView Kind = "view_changed"
	// KindConfirmed: o Store aceitou uma versão remota mais nova
	KindConfirmed Kind = "confirmed"
	// KindTransaction: uma transação mudou de estado
	KindTransaction Kind = "transaction"
)

// Change é a notificação entregue aos assinantes.
// Em KindConfirmed, Payload e Version são o registro aceito pelo merge.
type Change struct {
	Kind    Kind          `json:"kind"`
	Entity  model.ID      `json:"entity,omitempty"`
	Version model.Version `json:"version,omitempty"`
	Payload model.Payload `json:"payload,omitempty"`
	Tx      model.TxID    `json:"transaction_id,omitempty"`
	State   string        `json:"state,omitempty"`
}

// Handler recebe uma mudança
type Handler func(Change)

// Emitter é um broker pub/sub simples. Assinar antes de emitir.
// Com buffer > 0 a entrega é assíncrona e exige Run; sem buffer é síncrona.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	queue    chan Change
	stopped  chan struct{}
	stop     sync.Once
	dropped  atomic.Uint64
	log      *zap.Logger
}

// Option configura o Emitter
type Option func(*Emitter)

// WithBuffer liga a entrega assíncrona com fila limitada
func WithBuffer(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.queue = make(chan Change, n)
			e.stopped = make(chan struct{})
		}
	}
}

// WithLogger define o logger estruturado
func WithLogger(l *zap.Logger) Option {
	return func(e *Emitter) { e.log = l }
}

// NewEmitter cria um Emitter sem assinantes
func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{handlers: make(map[Kind][]Handler), log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registra h para toda mudança do tipo kind
func (e *Emitter) Subscribe(kind Kind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], h)
}

// Emit entrega a mudança. No modo assíncrono, KindView com fila cheia é descartada
// (a próxima view a substitui); KindConfirmed e KindTransaction esperam vaga.
// Nenhum emissor pode segurar lock do núcleo nem rodar dentro de um assinante.
func (e *Emitter) Emit(c Change) {
	if e.queue == nil {
		e.deliver(c)
		return
	}
	if c.Kind == KindView {
		select {
		case e.queue <- c:
		default:
			e.drop(c, "feed queue full, dropping changes")
		}
		return
	}
	select {
	case <-e.stopped:
		e.drop(c, "feed stopped, change not delivered")
		return
	default:
	}
	select {
	case e.queue <- c:
	case <-e.stopped:
		e.drop(c, "feed stopped, change not delivered")
	}
}

func (e *Emitter) drop(c Change, msg string) {
	if e.dropped.Add(1)%1000 == 1 {
		e.log.Warn(msg, zap.String("kind", string(c.Kind)), zap.Uint64("dropped", e.dropped.Load()))
	}
}

// Dropped conta as mudanças descartadas (fila cheia ou feed parado)
func (e *Emitter) Dropped() uint64 { return e.dropped.Load() }

// Views emite uma mudança de view por entidade (formato do callback do overlay)
func (e *Emitter) Views(ids []model.ID) {
	for _, id := range ids {
		e.Emit(Change{Kind: KindView, Entity: id})
	}
}

// Run drena a fila até ctx terminar. Sem efeito no modo síncrono.
// Depois que Run devolve, emissões que esperariam vaga são descartadas.
func (e *Emitter) Run(ctx context.Context) {
	if e.queue == nil {
		return
	}
	defer e.stop.Do(func() { close(e.stopped) })
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-e.queue:
			e.deliver(c)
		}
	}
}

func (e *Emitter) deliver(c Change) {
	e.mu.RLock()
	handlers := e.handlers[c.Kind]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			// assinante com panic não derruba o serviço
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("feed handler panicked", zap.String("kind", string(c.Kind)), zap.Any("panic", r))
				}
			}()
			h(c)
		}()
	}
}
