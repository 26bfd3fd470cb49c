package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndClear(t *testing.T) {
	j := openMemory(t)

	require.NoError(t, j.Record(Entry{Op: "update_status", AssetID: "PNL-1", ExternalID: "NFC-1", IntendedStatus: "received", Error: "timeout"}))
	require.NoError(t, j.Record(Entry{Op: "update_status", AssetID: "PNL-1", ExternalID: "NFC-1", IntendedStatus: "reuse-approved", Error: "timeout"}))

	e, found, err := j.Get("update_status", "PNL-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, "reuse-approved", e.IntendedStatus)

	require.NoError(t, j.Clear("update_status", "PNL-1"))
	_, found, err = j.Get("update_status", "PNL-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, j.Clear("update_status", "PNL-absent"))
}

func TestPendingOrdersByTime(t *testing.T) {
	j := openMemory(t)
	now := time.Now().UTC()

	require.NoError(t, j.Record(Entry{Op: "mint_token", AssetID: "PNL-2", At: now}))
	require.NoError(t, j.Record(Entry{Op: "register", AssetID: "PNL-3", At: now.Add(-time.Minute)}))

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "PNL-3", pending[0].AssetID)
	assert.Equal(t, "PNL-2", pending[1].AssetID)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.Record(Entry{Op: "mint_materials", AssetID: "PNL-4", Error: "call failed"}))
	require.NoError(t, j.Close())

	j, err = Open(dir)
	require.NoError(t, err)
	defer j.Close()

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "mint_materials", pending[0].Op)
}
