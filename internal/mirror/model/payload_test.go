package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPayloadCloneDoesNotAlias(t *testing.T) {
	orig := Payload{
		"entries": 5,
		"tags":    []string{"a"},
		"meta":    map[string]any{"name": "t1"},
		"prizes":  []any{map[string]any{"position": 1}},
	}
	cp := orig.Clone()
	cp["tags"].([]string)[0] = "b"
	cp["meta"].(map[string]any)["name"] = "t2"
	cp["prizes"].([]any)[0].(map[string]any)["position"] = 9

	require.Equal(t, "a", orig["tags"].([]string)[0])
	require.Equal(t, "t1", orig["meta"].(map[string]any)["name"])
	require.Equal(t, 1, orig["prizes"].([]any)[0].(map[string]any)["position"])
}

func TestPayloadWithLeavesOriginal(t *testing.T) {
	orig := Payload{"entries": 5}
	next := orig.With("entries", 6)
	require.Equal(t, int64(5), orig.Int("entries"))
	require.Equal(t, int64(6), next.Int("entries"))

	var absent Payload
	created := absent.With("name", "x")
	require.Nil(t, absent)
	require.Equal(t, "x", created.String("name"))
}

func TestPayloadAccessorsAcceptDecodedShapes(t *testing.T) {
	p := Payload{
		"count":  float64(7),
		"amount": "1000000000000000000000",
		"ids":    []any{"1", "2"},
		"ok":     true,
	}
	require.Equal(t, int64(7), p.Int("count"))
	require.True(t, p.Decimal("amount").Equal(decimal.RequireFromString("1000000000000000000000")))
	require.Equal(t, []string{"1", "2"}, p.Strings("ids"))
	require.True(t, p.Bool("ok"))
	require.Equal(t, int64(0), p.Int("missing"))
}

func TestEqualIgnoresNumericRepresentation(t *testing.T) {
	require.True(t, Equal(Payload{"entries": int64(6)}, Payload{"entries": float64(6)}))
	require.False(t, Equal(Payload{"entries": 6}, Payload{"entries": 5}))
	require.True(t, Equal(nil, nil))
	require.False(t, Equal(nil, Payload{}))
}

func TestNormalizeRoundTrips(t *testing.T) {
	p, err := Normalize(Payload{"amount": decimal.NewFromInt(10), "n": 3})
	require.NoError(t, err)
	require.Equal(t, "10", p["amount"])
	require.Equal(t, int64(3), p.Int("n"))
}
