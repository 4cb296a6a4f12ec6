package notify

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/pkg/contracts/events"
)

// MessageWriter é o subconjunto do *kafka.Writer usado pelo sink
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publica cada aviso como TransactionOutcome.
// Falhas de publicação são logadas: o aviso nunca desfaz o desfecho da ação.
type KafkaSink struct {
	writer  MessageWriter
	log     *zap.Logger
	timeout time.Duration
}

func NewKafkaSink(w MessageWriter, log *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: w, log: log, timeout: 5 * time.Second}
}

func (s *KafkaSink) Notify(ctx context.Context, n Notice) {
	e := Outcome(n)
	value, err := json.Marshal(e)
	if err != nil {
		s.log.Error("marshal tx outcome", zap.Error(err))
		return
	}

	// o aviso sai mesmo se o chamador já cancelou
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(e.TransactionID),
		Value: value,
		Time:  e.Ts,
	}
	if err := s.writer.WriteMessages(wctx, msg); err != nil {
		s.log.Error("failed to publish tx outcome", zap.String("tx", e.TransactionID), zap.Error(err))
		return
	}
	s.log.Debug("published tx outcome", zap.String("tx", e.TransactionID), zap.String("status", e.Status))
}

// Outcome converte o aviso no evento do contrato
func Outcome(n Notice) events.TransactionOutcome {
	e := events.TransactionOutcome{
		TransactionID: string(n.Tx),
		Action:        n.Action,
		Status:        string(n.Kind),
		Title:         n.Title,
		Description:   n.Description,
		TxHash:        n.Receipt.TxHash,
		Ts:            n.At,
	}
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	if n.Err != nil {
		e.Reason = n.Err.Error()
	}
	return e
}
