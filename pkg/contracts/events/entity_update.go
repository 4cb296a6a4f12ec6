package events

import "time"

// Evento publicado no tópico "mirror_entity_updates" pelo indexador (ou simulador)
// sempre que uma entidade da ledger muda de versão.
type EntityUpdate struct {
	EntityID  string         `json:"entity_id"`
	Kind      string         `json:"kind"` // "tournament" | "allowance" | "balance" | ...
	Payload   map[string]any `json:"payload"`
	Deleted   bool           `json:"deleted,omitempty"`
	Version   uint64         `json:"version"` // monotônico por entidade
	TxHash    string         `json:"tx_hash,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Source    string         `json:"source"` // "chain-simulator", "indexer"
}
