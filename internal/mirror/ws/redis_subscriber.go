package ws

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/pubsub"
)

// StartRedisSubscriber escuta o canal Redis Pub/Sub e repassa as mensagens ao Hub
// até ctx terminar.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		Relay(ctx, sub.Channel(), hub, log)
	}()
}

// Relay decodifica cada mensagem e faz o broadcast. Retorna quando ctx termina ou o canal fecha.
func Relay(ctx context.Context, ch <-chan *redis.Message, hub *Hub, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			var upd pubsub.Message
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				log.Warn("ws subscriber unmarshal error", zap.Error(err))
				continue
			}
			hub.Broadcast(upd)
		}
	}
}
