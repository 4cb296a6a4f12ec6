// Package consumer lê as atualizações de entidades publicadas pelo indexador no Kafka
// e as entrega ao Reconciler.
package consumer

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/reconciler"
	"github.com/radieske/tournament-mirror-poc/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo consumer
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter é o subconjunto de *kafka.Writer usado para a DLQ
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Reconciler é implementado por *reconciler.Reconciler
type Reconciler interface {
	Reconcile(ctx context.Context, id model.ID, payload model.Payload, version model.Version) (reconciler.Outcome, error)
}

var errInvalidUpdate = errors.New("invalid entity update")

// Processor consome EntityUpdate do Kafka e reconcilia cada uma.
// Mensagens que não decodificam vão para a DLQ (quando configurada).
type Processor struct {
	Log        *zap.Logger
	Reader     MessageReader
	DLQ        MessageWriter
	Reconciler Reconciler

	OnConsumed func()       // métricas
	OnError    func(string) // métricas por fase

	// pausa após falha de leitura
	ReadBackoff time.Duration
}

// Run executa o loop de consumo até ctx terminar
func (p *Processor) Run(ctx context.Context) error {
	pause := p.ReadBackoff
	if pause <= 0 {
		pause = 500 * time.Millisecond
	}
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger().Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m)
	}
}

// Handle processa uma mensagem. Erros de reconcile só são logados:
// a próxima versão da entidade (ou o poller) corrige o espelho.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	upd, err := Decode(m.Value)
	if err != nil {
		p.logger().Warn("invalid entity update", zap.ByteString("key", m.Key), zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m, err)
		return
	}

	out, err := p.Reconciler.Reconcile(ctx, upd.ID, upd.Payload, upd.Version)
	if err != nil {
		p.logger().Warn("reconcile failed", zap.String("entity", string(upd.ID)), zap.Error(err))
		p.fail("reconcile")
		return
	}
	if len(out.Retired) > 0 {
		p.logger().Debug("remote echo retired mutations",
			zap.String("entity", string(upd.ID)), zap.Int("retired", len(out.Retired)))
	}
}

// Decode converte o evento do tópico em model.Update. Entidades removidas viram payload nil.
func Decode(b []byte) (model.Update, error) {
	var ev events.EntityUpdate
	if err := json.Unmarshal(b, &ev); err != nil {
		return model.Update{}, err
	}
	if ev.EntityID == "" {
		return model.Update{}, errors.Join(errInvalidUpdate, errors.New("missing entity_id"))
	}
	if ev.Version == 0 {
		return model.Update{}, errors.Join(errInvalidUpdate, errors.New("missing version"))
	}
	u := model.Update{ID: model.ID(ev.EntityID), Version: model.Version(ev.Version)}
	if !ev.Deleted {
		u.Payload = model.Payload(ev.Payload)
	}
	return u, nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if p.DLQ == nil {
		return
	}
	dl := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(cause.Error())},
			{Key: "source_topic", Value: []byte(m.Topic)},
		},
	}
	if err := p.DLQ.WriteMessages(context.WithoutCancel(ctx), dl); err != nil {
		p.logger().Error("dlq write failed", zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}

func (p *Processor) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
