package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsPerService(t *testing.T) {
	t.Setenv("SERVICE_NAME", "chain-simulator")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("ALLOWED_ORIGINS", "http://a,http://b")

	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, "8090", cfg.HTTPPort)
	require.Equal(t, "9094", cfg.MetricsPort)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, []string{"http://a", "http://b"}, cfg.AllowedOrigins)
	require.Equal(t, tournamentAddresses["testnet"], cfg.TournamentAddress)
	require.Equal(t, "mirror_entity_updates", cfg.TopicEntityUpdates)
	require.Equal(t, "mirror_tx_outcomes", cfg.TopicTxOutcomes)
}

func TestParseNetworkSelection(t *testing.T) {
	t.Setenv("NETWORK", "mainnet")
	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, tournamentAddresses["mainnet"], cfg.TournamentAddress)

	t.Setenv("TOURNAMENT_ADDRESS", "0xcustom")
	cfg, err = Parse()
	require.NoError(t, err)
	require.Equal(t, "0xcustom", cfg.TournamentAddress)

	t.Setenv("TOURNAMENT_ADDRESS", "")
	t.Setenv("NETWORK", "devnet")
	_, err = Parse()
	require.Error(t, err)

	t.Setenv("NETWORK", "testnet")
	t.Setenv("POLL_WORKERS", "many")
	_, err = Parse()
	require.Error(t, err)
}
