package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.LogMode)
	assert.Equal(t, LedgerNone, cfg.Ledger.Backend)
	assert.Equal(t, 30*time.Second, cfg.Ledger.CallTimeout)
	assert.Equal(t, "20", cfg.Recycle.NominalWeightKg)
	assert.Equal(t, TriageLocal, cfg.Triage.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PANELCHAIN_LEDGER_BACKEND", "comet")
	t.Setenv("PANELCHAIN_LEDGER_COMET_RPC_ENDPOINT", "http://node0:26657")
	t.Setenv("PANELCHAIN_DATABASE_PORT", "5433")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, LedgerComet, cfg.Ledger.Backend)
	assert.Equal(t, "http://node0:26657", cfg.Ledger.Comet.RPCEndpoint)
	assert.Contains(t, cfg.GetDSN(), "port=5433")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panelchain.yaml")
	body := []byte(`
ledger:
  backend: fabric
  call_timeout: 5s
  fabric:
    cert_path: /certs/cert.pem
    key_path: /certs/key.pem
recycle:
  nominal_weight_kg: "18.5"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, LedgerFabric, cfg.Ledger.Backend)
	assert.Equal(t, 5*time.Second, cfg.Ledger.CallTimeout)
	assert.Equal(t, "mychannel", cfg.Ledger.Fabric.Channel)
	assert.Equal(t, "18.5", cfg.Recycle.NominalWeightKg)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Ledger.Backend = "ethereum"
	assert.ErrorContains(t, cfg.Validate(), "unknown ledger.backend")

	cfg = base()
	cfg.Ledger.Backend = LedgerFabric
	assert.ErrorContains(t, cfg.Validate(), "cert_path")

	cfg = base()
	cfg.Triage.Backend = TriageRedis
	cfg.Triage.RedisAddr = ""
	assert.ErrorContains(t, cfg.Validate(), "redis_addr")

	cfg = base()
	cfg.Ledger.CallTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "call_timeout")
}
