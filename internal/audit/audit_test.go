package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordAndQuery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record("", "rule.add", "mailbox-client-1", "temp.high@rack-3", "added via mailbox RPC"))
	require.NoError(t, s.Record("corr-123", "rule.delete", "mailbox-client-1", "temp.high@rack-3", "deleted via mailbox RPC"))

	logs, err := s.Query(Filter{Subject: "temp.high@rack-3"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "rule.delete", logs[0].Action)
	assert.Equal(t, "corr-123", logs[0].CorrelationID)
	assert.NotEmpty(t, logs[1].CorrelationID)
}

func TestStore_QueryFiltersByAction(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record("", "rule.add", "", "a", ""))
	require.NoError(t, s.Record("", "rule.delete", "", "b", ""))

	logs, err := s.Query(Filter{Action: "rule.add"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a", logs[0].Subject)
}
