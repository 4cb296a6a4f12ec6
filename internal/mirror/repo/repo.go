// Package repo persiste a view confirmada do espelho e o log de transições de transação,
// para warm start e auditoria. O núcleo não depende dele.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
)

// ErrStale indica que a versão gravada já é igual ou mais nova
var ErrStale = errors.New("stale entity version")

// TxLogEntry é uma linha do log de transições
type TxLogEntry struct {
	TxID      model.TxID `json:"transaction_id"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
}

// Backend é implementado por Postgres e LevelDB
type Backend interface {
	SaveEntity(ctx context.Context, rec store.Record) error
	LoadAll(ctx context.Context) ([]store.Record, error)
	LogTransition(ctx context.Context, e TxLogEntry) error
	TxLog(ctx context.Context, tx model.TxID) ([]TxLogEntry, error)
	Close() error
}
