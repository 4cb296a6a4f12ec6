package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// Sweeper coleta transações terminais (implementado pelo Tracker)
type Sweeper interface {
	Sweep() []model.TxID
}

// Expirer descarta mutações strict cujo eco não chegou (implementado pelo Overlay)
type Expirer interface {
	Expire(maxAge time.Duration) []model.TxID
}

// Janitor roda a coleta periódica do Tracker e a expiração de órfãos do Overlay
type Janitor struct {
	Sweeper    Sweeper
	Expirer    Expirer
	Interval   time.Duration
	OrphanAge  time.Duration
	OnOrphaned func(txs []model.TxID)
	Log        *zap.Logger
}

func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			j.Once()
		}
	}
}

// Once faz uma passada de limpeza
func (j *Janitor) Once() (expired, swept []model.TxID) {
	if j.Expirer != nil && j.OrphanAge > 0 {
		expired = j.Expirer.Expire(j.OrphanAge)
		if len(expired) > 0 && j.OnOrphaned != nil {
			j.OnOrphaned(expired)
		}
	}
	if j.Sweeper != nil {
		swept = j.Sweeper.Sweep()
	}
	if j.Log != nil && (len(expired) > 0 || len(swept) > 0) {
		j.Log.Info("janitor pass", zap.Int("orphaned", len(expired)), zap.Int("collected", len(swept)))
	}
	return expired, swept
}
