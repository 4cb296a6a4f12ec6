package events

import "time"

// Evento emitido pelo mirror-service quando uma ação termina (sucesso ou falha).
type TransactionOutcome struct {
	TransactionID string    `json:"transactionId"`
	Action        string    `json:"action"`
	Status        string    `json:"status"` // "SUCCESS" | "FAILURE"
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	TxHash        string    `json:"txHash,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Ts            time.Time `json:"ts"`
}
