package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
)

const (
	entityPrefix = "entity:"
	txlogPrefix  = "txlog:"
)

// LevelDB implementa Backend num arquivo local (sem Postgres)
type LevelDB struct {
	db *leveldb.DB
	// serializa o read-compare-write do gate de versão
	mu  sync.Mutex
	seq uint64
}

// NewLevelDB abre (ou cria) a base em path
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) SaveEntity(_ context.Context, rec store.Record) error {
	key := []byte(entityPrefix + string(rec.ID))
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return err
	default:
		var prev store.Record
		if err := json.Unmarshal(cur, &prev); err == nil && prev.Version >= rec.Version {
			return ErrStale
		}
	}

	rec.Speculative = false
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal entity %s: %w", rec.ID, err)
	}
	return l.db.Put(key, b, nil)
}

func (l *LevelDB) LoadAll(_ context.Context) ([]store.Record, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(entityPrefix)), nil)
	defer it.Release()
	var out []store.Record
	for it.Next() {
		var rec store.Record
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		out = append(out, rec)
	}
	return out, it.Error()
}

// LogTransition grava sob "txlog:<tx>:<nanos>:<seq>"; a chave mantém a ordem de inserção
func (l *LevelDB) LogTransition(_ context.Context, e TxLogEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.seq++
	key := fmt.Sprintf("%s%s:%020d:%06d", txlogPrefix, e.TxID, e.CreatedAt.UnixNano(), l.seq%1e6)
	l.mu.Unlock()
	return l.db.Put([]byte(key), b, nil)
}

func (l *LevelDB) TxLog(_ context.Context, tx model.TxID) ([]TxLogEntry, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(txlogPrefix+string(tx)+":")), nil)
	defer it.Release()
	var out []TxLogEntry
	for it.Next() {
		var e TxLogEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, it.Error()
}

func (l *LevelDB) Close() error { return l.db.Close() }
