// Package store mantém o espelho local confirmado das entidades remotas.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// Record é o estado confirmado de uma entidade.
// Deleted marca uma remoção confirmada remotamente (tombstone);
// Speculative indica que o payload veio de um commit otimista e ainda não ecoou na chain.
type Record struct {
	ID          model.ID      `json:"entity_id"`
	Payload     model.Payload `json:"payload"`
	Version     model.Version `json:"version"`
	Deleted     bool          `json:"deleted"`
	Speculative bool          `json:"speculative"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (r Record) clone() Record {
	r.Payload = r.Payload.Clone()
	return r
}

type slot struct {
	mu       sync.Mutex
	rec      Record
	revision uint64
}

// Store é o mapa versionado id -> estado confirmado.
// Merges de ids diferentes não disputam lock; merges do mesmo id são serializados no slot.
type Store struct {
	mu    sync.RWMutex
	slots map[model.ID]*slot
	now   func() time.Time
}

// Option configura o Store
type Option func(*Store)

// WithClock substitui o relógio (usado em testes)
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New cria um Store vazio, pertencente a uma sessão do cliente
func New(opts ...Option) *Store {
	s := &Store{
		slots: make(map[model.ID]*slot),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lookup(id model.ID) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	return sl, ok
}

func (s *Store) slotFor(id model.ID) *slot {
	if sl, ok := s.lookup(id); ok {
		return sl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{rec: Record{ID: id}}
		s.slots[id] = sl
	}
	return sl
}

// Read devolve uma cópia do payload confirmado, ou false se a entidade não existe
func (s *Store) Read(id model.ID) (model.Payload, bool) {
	rec, ok := s.Get(id)
	if !ok || rec.Deleted || rec.Payload == nil {
		return nil, false
	}
	return rec.Payload, true
}

// Get devolve o registro completo (inclusive tombstones)
func (s *Store) Get(id model.ID) (Record, bool) {
	sl, ok := s.lookup(id)
	if !ok {
		return Record{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.revision == 0 {
		return Record{}, false
	}
	return sl.rec.clone(), true
}

// ReadAt devolve o payload confirmado (nil se ausente) junto com a revisão lida sob o mesmo lock
func (s *Store) ReadAt(id model.ID) (model.Payload, uint64) {
	sl, ok := s.lookup(id)
	if !ok {
		return nil, 0
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.rec.Deleted {
		return nil, sl.revision
	}
	return sl.rec.Payload.Clone(), sl.revision
}

// Revision muda a cada alteração do slot; o overlay usa para invalidar views em cache
func (s *Store) Revision(id model.ID) uint64 {
	sl, ok := s.lookup(id)
	if !ok {
		return 0
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.revision
}

// Merge aplica o payload remoto somente se a versão for mais nova que a armazenada
// (last-writer-wins por versão, nunca por ordem de chegada).
// Payload nil numa versão mais nova é uma remoção confirmada.
// Retorna true se o store mudou.
func (s *Store) Merge(id model.ID, payload model.Payload, version model.Version) bool {
	sl := s.slotFor(id)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.revision > 0 && version <= sl.rec.Version {
		return false // leitura antiga: descartada
	}

	sl.rec = Record{
		ID:        id,
		Payload:   payload.Clone(),
		Version:   version,
		Deleted:   payload == nil,
		UpdatedAt: s.now().UTC(),
	}
	sl.revision++
	return true
}

// Promote dobra um patch confirmado otimisticamente no estado confirmado.
// A versão não muda: o próximo eco remoto mais novo sobrescreve normalmente.
func (s *Store) Promote(id model.ID, payload model.Payload) {
	sl := s.slotFor(id)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.rec = Record{
		ID:          id,
		Payload:     payload.Clone(),
		Version:     sl.rec.Version,
		Deleted:     payload == nil,
		Speculative: true,
		UpdatedAt:   s.now().UTC(),
	}
	sl.revision++
}

// Seed carrega registros persistidos (warm start), respeitando a regra de versão
func (s *Store) Seed(records []Record) int {
	n := 0
	for _, rec := range records {
		payload := rec.Payload
		if rec.Deleted {
			payload = nil
		}
		if s.Merge(rec.ID, payload, rec.Version) {
			n++
		}
	}
	return n
}

// IDs lista as entidades conhecidas, em ordem
func (s *Store) IDs() []model.ID {
	s.mu.RLock()
	ids := make([]model.ID, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := ids[:0]
	for _, id := range ids {
		if s.Revision(id) > 0 {
			out = append(out, id)
		}
	}
	return out
}
