package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/feed"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
	"github.com/radieske/tournament-mirror-poc/internal/shared/db"
)

func TestPersisterRoundTripWarmStart(t *testing.T) {
	backend := openLevel(t)
	s := store.New()
	em := feed.NewEmitter()
	p := &Persister{Backend: backend, Store: s, Now: func() time.Time { return time.Unix(50, 0) }}
	p.Attach(em)

	s.Merge("tournament:1", model.Payload{"entry_count": 6}, 3)
	em.Emit(feed.Change{Kind: feed.KindConfirmed, Entity: "tournament:1", Version: 3, Payload: model.Payload{"entry_count": 6}})

	// commit eager sem eco não é gravado
	s.Promote("tournament:2", model.Payload{"name": "local"})
	em.Emit(feed.Change{Kind: feed.KindConfirmed, Entity: "tournament:2"})

	em.Emit(feed.Change{Kind: feed.KindTransaction, Tx: "tx-1", State: "SUBMITTED"})
	em.Emit(feed.Change{Kind: feed.KindTransaction, Tx: "tx-1", State: "CONFIRMED"})

	fresh := store.New()
	n, err := (&Persister{Backend: backend, Store: fresh}).Warm(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	got, ok := fresh.Read("tournament:1")
	require.True(t, ok)
	require.EqualValues(t, 6, got.Int("entry_count"))
	_, ok = fresh.Read("tournament:2")
	require.False(t, ok)

	hist, err := p.History(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "CONFIRMED", hist[1].State)
}

// um commit eager entre o merge e a entrega assíncrona não faz a versão se perder
func TestPersisterSavesMergedSnapshotAfterPromote(t *testing.T) {
	backend := openLevel(t)
	s := store.New()
	em := feed.NewEmitter(feed.WithBuffer(4))
	p := &Persister{Backend: backend, Store: s}
	p.Attach(em)

	s.Merge("tournament:1", model.Payload{"entry_count": 6}, 3)
	em.Emit(feed.Change{Kind: feed.KindConfirmed, Entity: "tournament:1", Version: 3, Payload: model.Payload{"entry_count": 6}})
	s.Promote("tournament:1", model.Payload{"entry_count": 7})
	rec, _ := s.Get("tournament:1")
	require.True(t, rec.Speculative)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go em.Run(ctx)

	require.Eventually(t, func() bool {
		recs, err := backend.LoadAll(context.Background())
		return err == nil && len(recs) == 1
	}, time.Second, 5*time.Millisecond)
	recs, err := backend.LoadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.Version(3), recs[0].Version)
	require.EqualValues(t, 6, recs[0].Payload.Int("entry_count"))
}

// Roda contra um Postgres real quando MIRROR_TEST_POSTGRES_DSN estiver definido
func TestPostgresVersionGate(t *testing.T) {
	dsn := os.Getenv("MIRROR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MIRROR_TEST_POSTGRES_DSN not set")
	}
	conn, err := db.ConnectPostgres(dsn)
	require.NoError(t, err)
	r := NewPostgres(conn)
	t.Cleanup(func() { _ = r.Close() })

	ctx := context.Background()
	require.NoError(t, r.EnsureSchema(ctx))
	id := model.ID("test:" + time.Now().Format(time.RFC3339Nano))
	_, _ = conn.ExecContext(ctx, `DELETE FROM mirror_entities WHERE entity_id=$1`, string(id))

	require.NoError(t, r.SaveEntity(ctx, store.Record{ID: id, Payload: model.Payload{"n": 2}, Version: 2, UpdatedAt: time.Now()}))
	require.ErrorIs(t, r.SaveEntity(ctx, store.Record{ID: id, Payload: model.Payload{"n": 1}, Version: 1, UpdatedAt: time.Now()}), ErrStale)

	recs, err := r.LoadAll(ctx)
	require.NoError(t, err)
	var found bool
	for _, rec := range recs {
		if rec.ID == id {
			found = true
			require.Equal(t, model.Version(2), rec.Version)
			require.EqualValues(t, 2, rec.Payload.Int("n"))
		}
	}
	require.True(t, found)

	require.NoError(t, r.LogTransition(ctx, TxLogEntry{TxID: model.TxID(id), State: "SUBMITTED", CreatedAt: time.Now()}))
	hist, err := r.TxLog(ctx, model.TxID(id))
	require.NoError(t, err)
	require.NotEmpty(t, hist)
}
