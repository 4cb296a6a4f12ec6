package topics

const (
	// Entidades espelhadas
	EntityUpdates = "mirror_entity_updates"

	// Desfechos de transação
	TxOutcomes = "mirror_tx_outcomes"

	// DLQs
	EntityUpdatesDLQ = "mirror_entity_updates_dlq"
)
