package relayer

import (
	"context"
	"sync"
	"time"

	"github.com/radieske/tournament-mirror-poc/internal/chain-simulator/ledger"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tournament"
	"github.com/radieske/tournament-mirror-poc/internal/shared/kafka"
	"github.com/radieske/tournament-mirror-poc/pkg/contracts/events"
)

// Indexer é a visão indexada da ledger. Fica atrás da ledger pelo atraso de bloco,
// como um indexador real.
type Indexer struct {
	mu       sync.RWMutex
	entities map[model.ID]ledger.Entity
}

func NewIndexer() *Indexer {
	return &Indexer{entities: make(map[model.ID]ledger.Entity)}
}

// Put guarda as entidades, ignorando versões que não avançam
func (ix *Indexer) Put(ents []ledger.Entity) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, e := range ents {
		if cur, ok := ix.entities[e.ID]; ok && cur.Version >= e.Version {
			continue
		}
		ix.entities[e.ID] = e
	}
}

func (ix *Indexer) Get(id model.ID) (ledger.Entity, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entities[id]
	if ok {
		e.Payload = e.Payload.Clone()
	}
	return e, ok
}

// Publisher anuncia as entidades indexadas de uma transação
type Publisher interface {
	Publish(ctx context.Context, txHash string, ents []ledger.Entity) error
}

// KafkaPublisher publica um EntityUpdate por entidade, com a entidade como chave
type KafkaPublisher struct {
	W      kafka.MessageWriter
	Source string
	Now    func() time.Time
}

func (p *KafkaPublisher) Publish(ctx context.Context, txHash string, ents []ledger.Entity) error {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	for _, e := range ents {
		ev := events.EntityUpdate{
			EntityID:  string(e.ID),
			Kind:      tournament.Kind(e.ID),
			Payload:   e.Payload,
			Version:   uint64(e.Version),
			TxHash:    txHash,
			UpdatedAt: now().UTC(),
			Source:    p.Source,
		}
		if err := kafka.WriteJSON(ctx, p.W, ev.EntityID, ev); err != nil {
			return err
		}
	}
	return nil
}
