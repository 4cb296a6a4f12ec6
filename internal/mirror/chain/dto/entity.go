package dto

// EntityResponse é a leitura direta de uma entidade no indexador.
type EntityResponse struct {
	EntityID string         `json:"entity_id"`
	Payload  map[string]any `json:"payload"`
	Version  uint64         `json:"version"`
	Deleted  bool           `json:"deleted,omitempty"`
}
