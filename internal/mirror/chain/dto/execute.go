package dto

import "github.com/radieske/tournament-mirror-poc/internal/mirror/model"

// ExecuteRequest representa o payload enviado ao relayer para assinar e executar as calls.
type ExecuteRequest struct {
	Account string       `json:"account"`
	Calls   []model.Call `json:"calls"`
}

// ExecuteResponse representa a resposta do relayer depois da inclusão (ou rejeição) do bloco.
type ExecuteResponse struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"` // "ACCEPTED" | "REVERTED"
	Reason string `json:"reason,omitempty"`
}
