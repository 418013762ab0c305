package tenant

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogCompression(t *testing.T) {
	log, err := NewAuditLog(nil)
	require.NoError(t, err)

	small := []byte(`{"status":{"old":"active","new":"suspended"}}`)
	changes, compressed, algo := log.compress(small)
	assert.Equal(t, CompressionNone, algo)
	assert.Equal(t, small, []byte(changes))
	assert.Nil(t, compressed)

	large := bytes.Repeat([]byte(`{"field":"value"},`), 2048)
	changes, compressed, algo = log.compress(large)
	assert.Equal(t, CompressionZstd, algo)
	assert.Nil(t, changes)
	assert.Less(t, len(compressed), len(large))

	entry := AuditEntry{
		ChangesCompressed: compressed,
		CompressionAlgo:   CompressionZstd,
	}
	require.NoError(t, log.decompress(&entry))
	assert.Equal(t, large, []byte(entry.Changes))
	assert.Nil(t, entry.ChangesCompressed)
}

func TestAuditLogDecompress_PassthroughUncompressed(t *testing.T) {
	log, err := NewAuditLog(nil)
	require.NoError(t, err)

	entry := AuditEntry{
		Changes:         []byte(`{"slug":"acme"}`),
		CompressionAlgo: CompressionNone,
	}
	require.NoError(t, log.decompress(&entry))
	assert.Equal(t, `{"slug":"acme"}`, string(entry.Changes))
}

func TestAuditLogRecord_RequiresTenantID(t *testing.T) {
	log, err := NewAuditLog(nil)
	require.NoError(t, err)

	err = log.Record(context.Background(), AuditEntry{Action: AuditActionSuspend})
	assert.Error(t, err)
}

func TestAuditLogRecordChange_MarshalError(t *testing.T) {
	log, err := NewAuditLog(nil)
	require.NoError(t, err)

	err = log.RecordChange(context.Background(), "some-id", AuditActionCreate, "ops",
		map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
