package reconciler

import (
	"sync"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// keyedMutex serializa por entidade; ids diferentes não disputam o mesmo lock.
// Entradas sem usuários são removidas para o mapa não crescer sem limite.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[model.ID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[model.ID]*keyedEntry)}
}

// Lock bloqueia a entidade e devolve a função de liberação
func (k *keyedMutex) Lock(id model.ID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
