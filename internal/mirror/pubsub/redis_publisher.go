// Package pubsub replica as mudanças de view do espelho entre instâncias via Redis Pub/Sub.
package pubsub

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/feed"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

const ChannelViewBroadcast = "mirror_view_broadcast"

// Publisher publica um payload num canal (implementado por RedisBroadcaster)
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type RedisBroadcaster struct {
	r *redis.Client
}

func NewRedisBroadcaster(r *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.r.Publish(ctx, channel, payload).Err()
}

// ViewSource lê a view especulativa (implementado pelo Overlay)
type ViewSource interface {
	View(id model.ID) (model.Payload, bool)
	Pending(id model.ID) int
}

// Message é o payload padrão publicado no canal e repassado ao WebSocket.
// Topic é o id da entidade ou "tx:<id>" para transações.
type Message struct {
	Topic   string         `json:"topic"`
	Kind    feed.Kind      `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	Exists  bool           `json:"exists"`
	Pending int            `json:"pending"`
	Version uint64         `json:"version,omitempty"`
	State   string         `json:"state,omitempty"`
	Ts      time.Time      `json:"ts"`
}

// TxTopic é o tópico de assinatura de uma transação
func TxTopic(tx model.TxID) string { return "tx:" + string(tx) }

// Relay transforma mudanças do feed em mensagens no canal.
// Deve rodar no feed assíncrono: ler o overlay dentro do lock do Tracker trava.
type Relay struct {
	Pub     Publisher
	Views   ViewSource
	Channel string
	Log     *zap.Logger
	Timeout time.Duration
}

// Attach assina o feed para views, confirmações e transações
func (r *Relay) Attach(e *feed.Emitter) {
	e.Subscribe(feed.KindView, r.Handle)
	e.Subscribe(feed.KindConfirmed, r.Handle)
	e.Subscribe(feed.KindTransaction, r.Handle)
}

func (r *Relay) Handle(c feed.Change) {
	msg := r.build(c)
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger().Warn("broadcast marshal failed", zap.Error(err))
		return
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ch := r.Channel
	if ch == "" {
		ch = ChannelViewBroadcast
	}
	if err := r.Pub.Publish(ctx, ch, b); err != nil {
		r.logger().Warn("redis publish failed", zap.String("topic", msg.Topic), zap.Error(err))
	}
}

func (r *Relay) build(c feed.Change) Message {
	msg := Message{Kind: c.Kind, Version: uint64(c.Version), State: c.State, Ts: time.Now().UTC()}
	if c.Kind == feed.KindTransaction {
		msg.Topic = TxTopic(c.Tx)
		return msg
	}
	msg.Topic = string(c.Entity)
	if r.Views != nil {
		p, ok := r.Views.View(c.Entity)
		msg.Exists = ok
		msg.Payload = p
		msg.Pending = r.Views.Pending(c.Entity)
	}
	return msg
}

func (r *Relay) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
