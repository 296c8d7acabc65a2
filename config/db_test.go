package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDBProvider(t *testing.T) {
	cfg := TestConfig()
	cfg.SetRoot(t.TempDir())

	db, err := DefaultDBProvider(&DBContext{ID: "ledger", Config: cfg})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())
	require.NoDirExists(t, cfg.DBDir())

	cfg.DBBackend = "goleveldb"
	db, err = DefaultDBProvider(&DBContext{ID: "ledger", Config: cfg})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())
	require.DirExists(t, filepath.Join(cfg.DBDir(), "ledger.db"))

	// reopening sees the same data
	db, err = DefaultDBProvider(&DBContext{ID: "ledger", Config: cfg})
	require.NoError(t, err)
	defer db.Close()
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}
