package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tracker"
)

type countingRefresher struct {
	mu   sync.Mutex
	seen map[model.ID]int
	fail model.ID
}

func (c *countingRefresher) Refresh(_ context.Context, ids ...model.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.seen[id]++
		if id == c.fail {
			return errors.New("indexer down")
		}
	}
	return nil
}

func TestTickRefreshesEveryID(t *testing.T) {
	r := &countingRefresher{seen: map[model.ID]int{}, fail: "c"}
	p := New(r, func() []model.ID { return []model.ID{"a", "b", "c"} }, Config{PerSecond: 1000, Burst: 3, Workers: 2}, nil)

	n, err := p.Tick(context.Background())
	require.Equal(t, 3, n)
	require.ErrorContains(t, err, "indexer down")
	require.Equal(t, map[model.ID]int{"a": 1, "b": 1, "c": 1}, r.seen)
}

func TestTickStopsOnCancel(t *testing.T) {
	r := &countingRefresher{seen: map[model.ID]int{}}
	// 1 leitura por hora: só o burst passa
	p := New(r, func() []model.ID { return []model.ID{"a", "b", "c"} }, Config{PerSecond: 1.0 / 3600, Burst: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := p.Tick(ctx)
	require.Equal(t, 1, n)
	require.Error(t, err)
}

func TestJanitorExpiresOrphansAndSweeps(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	s := store.New()
	s.Merge("T1", model.Payload{"entries": 5}, 1)
	o := overlay.New(s, overlay.WithClock(clock))
	tr := tracker.New(o, tracker.WithClock(clock), tracker.WithRetention(time.Minute))

	h, err := tr.Begin("tx-1", overlay.Mutation{Entity: "T1", Patch: overlay.Patch{
		Kind:       "enter",
		Policy:     overlay.PolicyStrict,
		Apply:      func(p model.Payload) model.Payload { return p.With("entries", p.Int("entries")+1) },
		Superseded: func(model.Payload) bool { return false },
	}})
	require.NoError(t, err)
	h.Settle(model.Receipt{}, nil)
	h.Confirm()

	var orphaned []model.TxID
	j := &Janitor{Sweeper: tr, Expirer: o, OrphanAge: 5 * time.Minute, OnOrphaned: func(txs []model.TxID) { orphaned = txs }}

	expired, swept := j.Once()
	require.Empty(t, expired)
	require.Empty(t, swept)

	now = now.Add(10 * time.Minute)
	expired, swept = j.Once()
	require.Equal(t, []model.TxID{"tx-1"}, expired)
	require.Equal(t, expired, orphaned)
	require.Equal(t, []model.TxID{"tx-1"}, swept)

	p, _ := o.View("T1")
	require.Equal(t, int64(5), p.Int("entries"))
	require.Equal(t, 0, tr.Len())
}
