package config

import (
	"fmt"
	"os"

	dbm "github.com/tendermint/tm-db"
)

// DBContext names the database a component asks for.
type DBContext struct {
	ID     string
	Config *Config
}

// DBProvider opens the database described by a DBContext.
type DBProvider func(*DBContext) (dbm.DB, error)

// DefaultDBProvider opens ctx.ID with the configured backend. On-disk
// backends live under DBDir, which is created when missing.
func DefaultDBProvider(ctx *DBContext) (dbm.DB, error) {
	backend := dbm.BackendType(ctx.Config.DBBackend)
	if backend == dbm.MemDBBackend {
		return dbm.NewMemDB(), nil
	}

	dir := ctx.Config.DBDir()
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("creating db dir %s: %w", dir, err)
	}
	return dbm.NewDB(ctx.ID, backend, dir)
}
