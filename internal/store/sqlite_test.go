package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	runLedgerSuite(t, func(t *testing.T) LedgerStore {
		s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}
