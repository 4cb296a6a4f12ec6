package store

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

func TestMergeOnlyMovesForward(t *testing.T) {
	s := New()

	require.True(t, s.Merge("T1", model.Payload{"entries": 5}, 1))
	require.True(t, s.Merge("T1", model.Payload{"entries": 7}, 3))
	require.False(t, s.Merge("T1", model.Payload{"entries": 6}, 2), "stale read must be discarded")
	require.False(t, s.Merge("T1", model.Payload{"entries": 9}, 3), "same version is not newer")

	rec, ok := s.Get("T1")
	require.True(t, ok)
	require.Equal(t, model.Version(3), rec.Version)
	require.Equal(t, int64(7), rec.Payload.Int("entries"))
}

func TestReadReturnsCopy(t *testing.T) {
	s := New()
	s.Merge("T1", model.Payload{"entries": 5}, 1)

	p, ok := s.Read("T1")
	require.True(t, ok)
	p["entries"] = 100

	again, _ := s.Read("T1")
	require.Equal(t, int64(5), again.Int("entries"))
}

func TestReadAbsent(t *testing.T) {
	s := New()
	_, ok := s.Read("nope")
	require.False(t, ok)
	require.Equal(t, uint64(0), s.Revision("nope"))
	require.Empty(t, s.IDs())
}

func TestTombstoneBlocksStaleResurrection(t *testing.T) {
	s := New()
	s.Merge("T1", model.Payload{"entries": 5}, 1)
	require.True(t, s.Merge("T1", nil, 2))

	_, ok := s.Read("T1")
	require.False(t, ok)

	require.False(t, s.Merge("T1", model.Payload{"entries": 5}, 1))
	_, ok = s.Read("T1")
	require.False(t, ok)

	rec, ok := s.Get("T1")
	require.True(t, ok)
	require.True(t, rec.Deleted)
}

func TestPromoteKeepsVersion(t *testing.T) {
	s := New()
	s.Merge("T1", model.Payload{"entries": 5}, 4)
	rev := s.Revision("T1")

	s.Promote("T1", model.Payload{"entries": 6})

	rec, _ := s.Get("T1")
	require.Equal(t, model.Version(4), rec.Version)
	require.True(t, rec.Speculative)
	require.Greater(t, s.Revision("T1"), rev)

	require.True(t, s.Merge("T1", model.Payload{"entries": 6}, 5))
	rec, _ = s.Get("T1")
	require.False(t, rec.Speculative)
}

func TestConcurrentMergesKeepMaxVersion(t *testing.T) {
	s := New()
	versions := rand.Perm(200)

	var wg sync.WaitGroup
	for _, v := range versions {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			ver := model.Version(v + 1)
			s.Merge("T1", model.Payload{"v": int64(ver)}, ver)
			s.Merge(model.ID("other"), model.Payload{"v": int64(ver)}, ver)
		}(v)
	}
	wg.Wait()

	rec, _ := s.Get("T1")
	require.Equal(t, model.Version(200), rec.Version)
	require.Equal(t, int64(200), rec.Payload.Int("v"))
}

func TestSeedIsVersionGated(t *testing.T) {
	s := New()
	s.Merge("T1", model.Payload{"entries": 9}, 10)

	n := s.Seed([]Record{
		{ID: "T1", Payload: model.Payload{"entries": 1}, Version: 3},
		{ID: "T2", Payload: model.Payload{"entries": 2}, Version: 1},
		{ID: "T3", Version: 2, Deleted: true},
	})
	require.Equal(t, 2, n)
	require.Equal(t, []model.ID{"T1", "T2", "T3"}, s.IDs())

	p, _ := s.Read("T1")
	require.Equal(t, int64(9), p.Int("entries"))
}
