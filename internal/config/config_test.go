package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contract = "0x1111111111111111111111111111111111111111"

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), ".env")
}

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("MONITORED_CONTRACT", "0xABCDEFabcdef1111111111111111111111111111")
	t.Setenv("ETH_NODE_URL", "wss://eth-sepolia.example/v2/key")

	cfg, err := NewConfig(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "0xabcdefabcdef1111111111111111111111111111", cfg.MonitoredContract)
	assert.Equal(t, "https://eth-sepolia.example/v2/key", cfg.EthHttpUrl)
	assert.Equal(t, 30*time.Second, cfg.CorrelationWindow)
	assert.Equal(t, 60*time.Second, cfg.TrackerTTL())
	assert.Equal(t, int64(5), cfg.GasMultipleThreshold)
	assert.Empty(t, cfg.KnownBots)
	assert.Equal(t, 5*time.Minute, cfg.ProfileTTL)
	assert.Equal(t, 8080, cfg.WsPort)
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("MONITORED_CONTRACT", contract)
	t.Setenv("ETH_NODE_URL", "ws://localhost:8546")
	t.Setenv("CORRELATION_WINDOW_MS", "1000")
	t.Setenv("GAS_MULTIPLE_THRESHOLD", "3")
	t.Setenv("KNOWN_BOTS", " 0xaaa , ,0xbbb")

	cfg, err := NewConfig(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8546", cfg.EthHttpUrl)
	assert.Equal(t, time.Second, cfg.CorrelationWindow)
	assert.Equal(t, int64(3), cfg.GasMultipleThreshold)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.KnownBots)
}

func TestNewConfig_MissingContractIsFatal(t *testing.T) {
	t.Setenv("MONITORED_CONTRACT", "")
	t.Setenv("ETH_NODE_URL", "ws://localhost:8546")

	_, err := NewConfig(missingEnvFile(t))
	assert.ErrorIs(t, err, ErrMissingContract)
}

func TestNewConfig_InvalidContract(t *testing.T) {
	t.Setenv("MONITORED_CONTRACT", "0xnope")
	t.Setenv("ETH_NODE_URL", "ws://localhost:8546")

	_, err := NewConfig(missingEnvFile(t))
	assert.Error(t, err)
}
