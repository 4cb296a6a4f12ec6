package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Topic: id da entidade ou "tx:<id>", obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// ServerMsg é a resposta de controle enviada ao cliente
type ServerMsg struct {
	Type  string `json:"type"` // pong | subscribed | unsubscribed | error
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}
