package repo

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS mirror_entities (
	entity_id  TEXT PRIMARY KEY,
	payload    JSONB,
	version    BIGINT NOT NULL,
	deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS mirror_tx_log (
	id         BIGSERIAL PRIMARY KEY,
	tx_id      TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS mirror_tx_log_tx_idx ON mirror_tx_log (tx_id, id);
`

// Postgres implementa Backend sobre database/sql + lib/pq
type Postgres struct {
	DB *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{DB: db} }

// EnsureSchema cria as tabelas se ainda não existirem
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveEntity grava a versão confirmada. O ON CONFLICT só atualiza quando a versão
// recebida é mais nova, então gravações fora de ordem não regridem a linha.
func (r *Postgres) SaveEntity(ctx context.Context, rec store.Record) error {
	const q = `
		INSERT INTO mirror_entities (entity_id, payload, version, deleted, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (entity_id) DO UPDATE SET
		  payload    = EXCLUDED.payload,
		  version    = EXCLUDED.version,
		  deleted    = EXCLUDED.deleted,
		  updated_at = EXCLUDED.updated_at
		WHERE mirror_entities.version < EXCLUDED.version
	`
	var payload []byte
	if rec.Payload != nil {
		b, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload %s: %w", rec.ID, err)
		}
		payload = b
	}
	res, err := r.DB.ExecContext(ctx, q, string(rec.ID), payload, int64(rec.Version), rec.Deleted, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStale
	}
	return nil
}

func (r *Postgres) LoadAll(ctx context.Context) ([]store.Record, error) {
	const q = `
		SELECT entity_id, payload, version, deleted, updated_at
		FROM mirror_entities
		ORDER BY entity_id
	`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Record
	for rows.Next() {
		var (
			rec     store.Record
			id      string
			payload []byte
			version int64
		)
		if err := rows.Scan(&id, &payload, &version, &rec.Deleted, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.ID = model.ID(id)
		rec.Version = model.Version(version)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, fmt.Errorf("decode payload %s: %w", id, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Postgres) LogTransition(ctx context.Context, e TxLogEntry) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO mirror_tx_log (tx_id, state, created_at) VALUES ($1,$2,$3)`,
		string(e.TxID), e.State, e.CreatedAt)
	return err
}

func (r *Postgres) TxLog(ctx context.Context, tx model.TxID) ([]TxLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT tx_id, state, created_at FROM mirror_tx_log WHERE tx_id=$1 ORDER BY id`, string(tx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TxLogEntry
	for rows.Next() {
		var (
			e  TxLogEntry
			id string
		)
		if err := rows.Scan(&id, &e.State, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TxID = model.TxID(id)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Postgres) Close() error { return r.DB.Close() }
