// Package tracker acompanha cada transação submetida até o resultado terminal.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
)

var (
	ErrDuplicateTransaction = overlay.ErrDuplicateTransaction
	ErrEmptyTransaction     = errors.New("empty transaction id")
)

// State é o estágio do ciclo de vida da transação
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StateConfirmed State = "CONFIRMED"
	StateFailed    State = "FAILED"
)

// Terminal indica se o estado não admite novas transições
func (s State) Terminal() bool { return s == StateConfirmed || s == StateFailed }

// Transaction é a visão pública de uma transação rastreada
type Transaction struct {
	ID          model.TxID    `json:"transaction_id"`
	State       State         `json:"state"`
	Entities    []model.ID    `json:"entities,omitempty"`
	Receipt     model.Receipt `json:"receipt"`
	Error       string        `json:"error,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

type record struct {
	tx     Transaction
	handle *Handle
}

// Tracker guarda a máquina de estados de cada transação e dirige a limpeza do overlay.
type Tracker struct {
	mu      sync.Mutex
	overlay *overlay.Overlay
	txs     map[model.TxID]*record
	retain  time.Duration
	now     func() time.Time
	log     *zap.Logger

	// OnTransition é chamado (fora do lock) a cada mudança de estado
	OnTransition func(tx model.TxID, from, to State)
}

// Option configura o Tracker
type Option func(*Tracker)

// WithRetention define por quanto tempo transações terminais ficam guardadas
// para detecção de replay idempotente
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) { t.retain = d }
}

// WithLogger define o logger estruturado
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithClock substitui o relógio (usado em testes)
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New cria um Tracker ligado ao overlay da sessão
func New(o *overlay.Overlay, opts ...Option) *Tracker {
	t := &Tracker{
		overlay: o,
		txs:     make(map[model.TxID]*record),
		retain:  5 * time.Minute,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin registra a transação em Submitted e aplica as mutações no overlay,
// de forma atômica do ponto de vista do chamador.
func (t *Tracker) Begin(id model.TxID, muts ...overlay.Mutation) (*Handle, error) {
	if id == "" {
		return nil, ErrEmptyTransaction
	}

	t.mu.Lock()
	if _, dup := t.txs[id]; dup {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, id)
	}

	var entities []model.ID
	if len(muts) > 0 {
		h, err := t.overlay.ApplyAll(id, muts)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		entities = h.Entities
	}

	h := &Handle{t: t, id: id, done: make(chan struct{})}
	t.txs[id] = &record{
		tx: Transaction{
			ID:          id,
			State:       StateSubmitted,
			Entities:    entities,
			SubmittedAt: t.now().UTC(),
		},
		handle: h,
	}
	t.mu.Unlock()

	t.log.Debug("transaction submitted", zap.String("tx", string(id)), zap.Int("entities", len(entities)))
	t.transitioned(id, "", StateSubmitted)
	return h, nil
}

// Get devolve o estado atual da transação
func (t *Tracker) Get(id model.TxID) (Transaction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.txs[id]
	if !ok {
		return Transaction{}, false
	}
	return rec.tx, true
}

// MarkConfirmed leva a transação a Confirmed quando o Reconciler observou todos os seus efeitos.
// Sem efeito se já estiver em estado terminal.
func (t *Tracker) MarkConfirmed(id model.TxID) bool {
	return t.finish(id, StateConfirmed, nil)
}

// Sweep coleta transações terminais mais antigas que a janela de retenção
func (t *Tracker) Sweep() []model.TxID {
	t.mu.Lock()
	cutoff := t.now().Add(-t.retain)
	var removed []model.TxID
	for id, rec := range t.txs {
		if !rec.tx.State.Terminal() || rec.tx.CompletedAt == nil || rec.tx.CompletedAt.After(cutoff) {
			continue
		}
		// mutações strict que ainda esperam eco mantêm o registro vivo
		if !t.overlay.Forget(id) && t.overlay.PendingTx(id) > 0 {
			continue
		}
		delete(t.txs, id)
		removed = append(removed, id)
	}
	t.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}

// Len conta as transações guardadas
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.txs)
}

// finish aplica a transição terminal. O overlay é atualizado antes de o lock ser solto,
// então quem observar o estado terminal já vê a view coerente.
func (t *Tracker) finish(id model.TxID, to State, cause error) bool {
	t.mu.Lock()
	rec, ok := t.txs[id]
	if !ok || rec.tx.State.Terminal() {
		t.mu.Unlock()
		return false
	}
	from := rec.tx.State

	switch to {
	case StateFailed:
		t.overlay.Revert(id)
	case StateConfirmed:
		t.overlay.Commit(id)
	}

	now := t.now().UTC()
	rec.tx.State = to
	rec.tx.CompletedAt = &now
	if cause != nil {
		rec.tx.Error = cause.Error()
	}
	t.mu.Unlock()

	t.log.Debug("transaction finished", zap.String("tx", string(id)), zap.String("state", string(to)))
	t.transitioned(id, from, to)
	return true
}

func (t *Tracker) settle(id model.TxID, receipt model.Receipt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.txs[id]; ok {
		rec.tx.Receipt = receipt
	}
}

func (t *Tracker) transitioned(id model.TxID, from, to State) {
	if t.OnTransition != nil {
		t.OnTransition(id, from, to)
	}
}

// Handle é o controle devolvido por Begin: {Wait, Revert, Confirm}
type Handle struct {
	t    *Tracker
	id   model.TxID
	once sync.Once
	done chan struct{}

	receipt model.Receipt
	err     error
}

// ID devolve a chave local da transação
func (h *Handle) ID() model.TxID { return h.id }

// Settle registra o desfecho da submissão remota. Apenas a primeira chamada vale.
func (h *Handle) Settle(receipt model.Receipt, err error) {
	h.once.Do(func() {
		h.receipt = receipt
		h.err = err
		if err == nil {
			h.t.settle(h.id, receipt)
		}
		close(h.done)
	})
}

// Wait suspende o chamador até a submissão assentar (ou o contexto terminar).
// É o único ponto de suspensão do núcleo.
func (h *Handle) Wait(ctx context.Context) (model.Receipt, error) {
	select {
	case <-h.done:
		return h.receipt, h.err
	case <-ctx.Done():
		return model.Receipt{}, ctx.Err()
	}
}

// Revert descarta o efeito especulativo e leva a transação a Failed
func (h *Handle) Revert() {
	h.t.finish(h.id, StateFailed, h.settledErr())
}

// Confirm roda sempre na limpeza: faz o commit quando a transação não falhou.
// Depois de Revert é no-op; uma submissão assentada com erro conta como falha.
func (h *Handle) Confirm() {
	if err := h.settledErr(); err != nil {
		h.t.finish(h.id, StateFailed, err)
		return
	}
	h.t.finish(h.id, StateConfirmed, nil)
}

func (h *Handle) settledErr() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
