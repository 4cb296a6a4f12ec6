// Package overlay mantém as mutações pendentes aplicadas por cima do estado confirmado.
package overlay

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
)

var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrNoMutations          = errors.New("no mutations")
	ErrInvalidPatch         = errors.New("invalid patch")
)

type pending struct {
	tx          model.TxID
	entity      model.ID
	patch       Patch
	seq         uint64
	appliedAt   time.Time
	committed   bool
	committedAt time.Time
	// undo guarda a view imediatamente anterior a esta mutação (dado de inversão)
	undo model.Payload
}

type txState struct {
	muts      []*pending
	committed bool
	reverted  bool
	closedAt  time.Time
}

type view struct {
	revision uint64 // revisão do Store usada no fold
	payload  model.Payload
}

// Overlay é a camada de mutações pendentes. Toda leitura passa por View,
// que dobra as mutações em ordem de submissão sobre o estado confirmado.
type Overlay struct {
	mu       sync.Mutex
	store    *store.Store
	txs      map[model.TxID]*txState
	byEntity map[model.ID][]*pending
	views    map[model.ID]*view
	seq      uint64

	now      func() time.Time
	log      *zap.Logger
	onChange func(ids []model.ID)
}

// Option configura o Overlay
type Option func(*Overlay)

// WithLogger define o logger estruturado
func WithLogger(l *zap.Logger) Option {
	return func(o *Overlay) { o.log = l }
}

// WithClock substitui o relógio (usado em testes)
func WithClock(now func() time.Time) Option {
	return func(o *Overlay) { o.now = now }
}

// WithOnChange registra o callback chamado (fora do lock) quando views mudam
func WithOnChange(fn func(ids []model.ID)) Option {
	return func(o *Overlay) { o.onChange = fn }
}

// New cria o overlay sobre o Store da sessão
func New(s *store.Store, opts ...Option) *Overlay {
	o := &Overlay{
		store:    s,
		txs:      make(map[model.TxID]*txState),
		byEntity: make(map[model.ID][]*pending),
		views:    make(map[model.ID]*view),
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Apply registra uma mutação pendente para a transação
func (o *Overlay) Apply(tx model.TxID, entity model.ID, patch Patch) (Handle, error) {
	return o.ApplyAll(tx, []Mutation{{Entity: entity, Patch: patch}})
}

// ApplyAll registra, de forma atômica, todas as mutações de uma transação lógica.
// Nenhum leitor observa um estado com parte das mutações aplicadas.
func (o *Overlay) ApplyAll(tx model.TxID, muts []Mutation) (Handle, error) {
	if len(muts) == 0 {
		return Handle{}, ErrNoMutations
	}
	for _, m := range muts {
		if m.Entity == "" || m.Patch.Apply == nil {
			return Handle{}, fmt.Errorf("%w: kind=%q entity=%q", ErrInvalidPatch, m.Patch.Kind, m.Entity)
		}
	}

	o.mu.Lock()
	if _, dup := o.txs[tx]; dup {
		o.mu.Unlock()
		return Handle{}, fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx)
	}

	st := &txState{}
	o.txs[tx] = st
	now := o.now()
	touched := make([]model.ID, 0, len(muts))
	for _, m := range muts {
		cur := o.viewLocked(m.Entity)
		next := m.Patch.Apply(cur.Clone())

		o.seq++
		p := &pending{
			tx:        tx,
			entity:    m.Entity,
			patch:     m.Patch,
			seq:       o.seq,
			appliedAt: now,
			undo:      cur,
		}
		st.muts = append(st.muts, p)
		o.byEntity[m.Entity] = append(o.byEntity[m.Entity], p)
		o.views[m.Entity].payload = next
		touched = appendID(touched, m.Entity)
	}
	o.mu.Unlock()

	o.log.Debug("overlay apply", zap.String("tx", string(tx)), zap.Int("mutations", len(muts)))
	o.changed(touched)
	return Handle{Tx: tx, Entities: touched}, nil
}

// View devolve o payload especulativo da entidade
func (o *Overlay) View(id model.ID) (model.Payload, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.viewLocked(id)
	return p.Clone(), p != nil
}

// Pending conta as mutações ainda em camada sobre a entidade
func (o *Overlay) Pending(id model.ID) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byEntity[id])
}

// Awaiting lista, em ordem, as entidades com mutações commitadas esperando eco remoto
func (o *Overlay) Awaiting() []model.ID {
	o.mu.Lock()
	ids := make([]model.ID, 0, len(o.byEntity))
	for id, list := range o.byEntity {
		for _, p := range list {
			if p.committed {
				ids = append(ids, id)
				break
			}
		}
	}
	o.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PendingTx conta as mutações da transação ainda em camada
func (o *Overlay) PendingTx(tx model.TxID) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.txs[tx]
	if !ok {
		return 0
	}
	return len(st.muts)
}

// Commit encerra a transação com sucesso.
// Patches PolicyEager são dobrados no Store (na ordem de submissão);
// patches PolicyStrict continuam em camada aguardando o eco remoto.
// Sem efeito depois de Revert ou de outro Commit.
func (o *Overlay) Commit(tx model.TxID) bool {
	o.mu.Lock()
	st, ok := o.txs[tx]
	if !ok || st.committed || st.reverted {
		o.mu.Unlock()
		return false
	}
	now := o.now()
	st.committed = true
	st.closedAt = now
	var touched []model.ID
	for _, p := range st.muts {
		p.committed = true
		p.committedAt = now
		touched = appendID(touched, p.entity)
	}
	for _, id := range touched {
		o.drainLocked(id)
	}
	o.mu.Unlock()

	o.changed(touched)
	return true
}

// Revert descarta as mutações da transação; as views deixam de refleti-las imediatamente.
// Sem efeito depois de Commit ou de outro Revert.
func (o *Overlay) Revert(tx model.TxID) bool {
	o.mu.Lock()
	st, ok := o.txs[tx]
	if !ok || st.committed || st.reverted {
		o.mu.Unlock()
		return false
	}
	st.reverted = true
	st.closedAt = o.now()

	var touched []model.ID
	for _, p := range st.muts {
		touched = appendID(touched, p.entity)
	}
	for _, id := range touched {
		o.removeLocked(id, func(p *pending) bool { return p.tx == tx })
		o.drainLocked(id)
	}
	st.muts = nil
	o.mu.Unlock()

	o.log.Debug("overlay revert", zap.String("tx", string(tx)))
	o.changed(touched)
	return true
}

// Absorb executa o merge de verdade remota e aposenta, sob o mesmo lock,
// as mutações cujo efeito já aparece no payload remoto.
// Devolve as transações que ficaram sem nenhuma mutação pendente.
func (o *Overlay) Absorb(id model.ID, merge func() bool, remote model.Payload) (completed []model.TxID, changed bool) {
	o.mu.Lock()
	// o fold precisa refletir a base anterior ao merge: é dele que sai o undo de cada mutação
	o.viewLocked(id)
	if !merge() {
		o.mu.Unlock()
		return nil, false
	}

	var retired []*pending
	for _, p := range o.byEntity[id] {
		if retireable(p, remote) {
			retired = append(retired, p)
		}
	}
	if len(retired) > 0 {
		set := make(map[*pending]struct{}, len(retired))
		for _, p := range retired {
			set[p] = struct{}{}
		}
		o.removeLocked(id, func(p *pending) bool {
			_, ok := set[p]
			return ok
		})
		for _, p := range retired {
			st := o.txs[p.tx]
			st.muts = without(st.muts, p)
			if len(st.muts) == 0 && !st.reverted {
				if !st.committed {
					st.committed = true
					st.closedAt = o.now()
				}
				completed = append(completed, p.tx)
			}
		}
	}
	delete(o.views, id)
	o.drainLocked(id)
	o.mu.Unlock()

	o.changed([]model.ID{id})
	return dedupTx(completed), true
}

func retireable(p *pending, remote model.Payload) bool {
	switch {
	case p.patch.Superseded != nil:
		return p.patch.Superseded(remote.Clone())
	case p.patch.Observed != nil:
		return p.patch.Observed(p.undo.Clone(), remote.Clone())
	}
	return p.committed
}

// Expire descarta mutações strict confirmadas cujo eco não chegou dentro de maxAge.
// Devolve as transações afetadas (mutações órfãs).
func (o *Overlay) Expire(maxAge time.Duration) []model.TxID {
	o.mu.Lock()
	cutoff := o.now().Add(-maxAge)
	var expired []model.TxID
	var touched []model.ID
	for tx, st := range o.txs {
		if !st.committed || len(st.muts) == 0 || st.closedAt.After(cutoff) {
			continue
		}
		for _, p := range st.muts {
			touched = appendID(touched, p.entity)
			o.removeLocked(p.entity, func(q *pending) bool { return q == p })
		}
		st.muts = nil
		expired = append(expired, tx)
	}
	for _, id := range touched {
		o.drainLocked(id)
	}
	o.mu.Unlock()

	if len(expired) > 0 {
		sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
		o.log.Warn("overlay expired orphaned mutations", zap.Int("transactions", len(expired)))
		o.changed(touched)
	}
	return expired
}

// Forget remove a memória de uma transação já encerrada (usado pela coleta do Tracker).
// Transações com mutações em camada não são esquecidas.
func (o *Overlay) Forget(tx model.TxID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.txs[tx]
	if !ok || len(st.muts) > 0 || (!st.committed && !st.reverted) {
		return false
	}
	delete(o.txs, tx)
	return true
}

// viewLocked devolve a view em cache (ou refaz o fold se o Store mudou).
// O valor devolvido não deve ser alterado.
func (o *Overlay) viewLocked(id model.ID) model.Payload {
	base, rev := o.store.ReadAt(id)
	if v, ok := o.views[id]; ok && v.revision == rev {
		return v.payload
	}
	cur := base
	for _, p := range o.byEntity[id] {
		p.undo = cur
		cur = p.patch.Apply(cur.Clone())
	}
	o.views[id] = &view{revision: rev, payload: cur}
	return cur
}

// removeLocked tira mutações da lista da entidade. Se as removidas formam o topo
// da pilha e o cache está válido, restaura o snapshot de undo sem refazer o fold.
func (o *Overlay) removeLocked(id model.ID, match func(*pending) bool) {
	list := o.byEntity[id]
	first := -1
	suffix := true
	keep := make([]*pending, 0, len(list))
	for i, p := range list {
		if match(p) {
			if first < 0 {
				first = i
			}
			continue
		}
		if first >= 0 {
			suffix = false
		}
		keep = append(keep, p)
	}
	if first < 0 {
		return
	}

	v, cached := o.views[id]
	if cached && suffix && v.revision == o.store.Revision(id) {
		v.payload = list[first].undo
	} else {
		delete(o.views, id)
	}

	if len(keep) == 0 {
		delete(o.byEntity, id)
		return
	}
	o.byEntity[id] = keep
}

// drainLocked promove para o Store os patches eager confirmados que estão na base da pilha.
// Parar no primeiro não-promovível preserva a ordem de submissão do fold.
func (o *Overlay) drainLocked(id model.ID) {
	for {
		list := o.byEntity[id]
		if len(list) == 0 {
			return
		}
		head := list[0]
		if !head.committed || head.patch.Policy != PolicyEager {
			return
		}
		base, _ := o.store.ReadAt(id)
		o.store.Promote(id, head.patch.Apply(base))
		if len(list) == 1 {
			delete(o.byEntity, id)
		} else {
			o.byEntity[id] = list[1:]
		}
		if st, ok := o.txs[head.tx]; ok {
			st.muts = without(st.muts, head)
		}
		// o fold continua idêntico; só a base mudou
		delete(o.views, id)
	}
}

func (o *Overlay) changed(ids []model.ID) {
	if o.onChange != nil && len(ids) > 0 {
		o.onChange(ids)
	}
}

func without(list []*pending, p *pending) []*pending {
	out := list[:0]
	for _, q := range list {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}

func appendID(ids []model.ID, id model.ID) []model.ID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

func dedupTx(txs []model.TxID) []model.TxID {
	if len(txs) < 2 {
		return txs
	}
	seen := make(map[model.TxID]struct{}, len(txs))
	out := txs[:0]
	for _, tx := range txs {
		if _, ok := seen[tx]; ok {
			continue
		}
		seen[tx] = struct{}{}
		out = append(out, tx)
	}
	return out
}
