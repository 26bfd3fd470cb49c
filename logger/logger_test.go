package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return FromZap(zap.New(core)), logs
}

func TestRedactsCredentials(t *testing.T) {
	log, logs := observed()

	log.Info("connecting", "db_password", "hunter2", "token_id", "42", "dangling")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["db_password"])
	assert.Equal(t, "42", fields["token_id"])
	assert.Equal(t, missingValue, fields["dangling"])
}

func TestWithCarriesFields(t *testing.T) {
	log, logs := observed()

	log.With("asset_id", "PNL-1").Warn("ledger unavailable", "op", "register")

	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "PNL-1", entry.ContextMap()["asset_id"])
	assert.Equal(t, "register", entry.ContextMap()["op"])
}

func TestCometAdapter(t *testing.T) {
	log, logs := observed()

	comet := log.Comet().With("height", 7)
	comet.Error("rpc failure", "err", "eof")

	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "cometbft", fields["module"])
	assert.EqualValues(t, 7, fields["height"])
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := New(mode)
		require.NoError(t, err)
		l.Debug("ok")
	}
	NewNop().Error("discarded")
}
