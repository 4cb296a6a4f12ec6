// Package model define os tipos compartilhados pelo núcleo de reconciliação otimista.
package model

import (
	"errors"
	"time"
)

// ErrNotFound indica que a entidade não existe na origem remota
var ErrNotFound = errors.New("entity not found")

// ID identifica uma entidade espelhada da ledger remota (torneio, saldo, allowance...)
type ID string

// Version é o contador monotônico da verdade remota
type Version uint64

// TxID é a chave local de correlação de uma transação.
// Nunca é derivada da chain (o hash pode nem existir ainda).
type TxID string

// Call é a tripla opaca (alvo, operação, argumentos) entregue ao colaborador de submissão
type Call struct {
	Target     string   `json:"contract_address"`
	Entrypoint string   `json:"entrypoint"`
	Calldata   []string `json:"calldata"`
}

// ReceiptStatus é o resultado reportado pelo colaborador de submissão
type ReceiptStatus string

const (
	ReceiptAccepted ReceiptStatus = "ACCEPTED"
	ReceiptReverted ReceiptStatus = "REVERTED"
)

// Receipt representa o retorno da submissão de um conjunto de calls
type Receipt struct {
	TxHash      string        `json:"tx_hash"`
	Status      ReceiptStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Update carrega uma leitura remota de uma entidade
type Update struct {
	ID      ID
	Payload Payload
	Version Version
}
