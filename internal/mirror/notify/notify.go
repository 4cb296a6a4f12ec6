// Package notify entrega os avisos de desfecho das ações (o "toast" do cliente)
// para log, Kafka ou qualquer combinação deles.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

type Kind string

const (
	KindSuccess Kind = "SUCCESS"
	KindFailure Kind = "FAILURE"
)

// Notice é o aviso emitido uma única vez por desfecho de transação
type Notice struct {
	Kind        Kind
	Action      string
	Title       string
	Description string
	Tx          model.TxID
	Receipt     model.Receipt
	Err         error
	At          time.Time
}

// Sink recebe os avisos. Implementações não devem bloquear por muito tempo:
// o aviso é emitido no caminho de retorno da ação.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

// SinkFunc adapta uma função para Sink
type SinkFunc func(ctx context.Context, n Notice)

func (f SinkFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Nop descarta os avisos
var Nop Sink = SinkFunc(func(context.Context, Notice) {})

// LogSink registra os avisos no logger estruturado
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Notify(_ context.Context, n Notice) {
	fields := []zap.Field{
		zap.String("action", n.Action),
		zap.String("tx", string(n.Tx)),
		zap.String("title", n.Title),
		zap.String("description", n.Description),
	}
	if n.Receipt.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", n.Receipt.TxHash))
	}
	if n.Kind == KindFailure {
		s.Log.Warn("action failed", append(fields, zap.Error(n.Err))...)
		return
	}
	s.Log.Info("action succeeded", fields...)
}

// Multi repassa o aviso a todos os sinks na ordem dada
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}
