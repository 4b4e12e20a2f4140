// Package database wires the engine together: one DB owns the catalog, the
// lock-managed buffer pool, and the table files registered with it.
package database

import (
	"os"
	"path/filepath"

	"go-reldb/config"
	"go-reldb/pkg/btree"
	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/catalog"
	"go-reldb/pkg/heap"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// DB is one database instance.
type DB struct {
	cfg     *config.AppConfig
	catalog *catalog.Catalog
	pool    *bufferpool.Pool
}

// New builds a database from cfg, creating the data directory if needed.
func New(cfg *config.AppConfig) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger.SetLevel(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data dir %q", cfg.DataDir)
	}

	cat := catalog.New()
	return &DB{
		cfg:     cfg,
		catalog: cat,
		pool:    bufferpool.New(cfg.PageSize, cfg.PoolPages, cat),
	}, nil
}

func (db *DB) Catalog() *catalog.Catalog {
	return db.catalog
}

func (db *DB) Pool() *bufferpool.Pool {
	return db.pool
}

func (db *DB) PageSize() int {
	return db.cfg.PageSize
}

// CreateHeapTable opens (or creates) the heap file for name under the data
// directory and registers it. primaryKey may be empty.
func (db *DB) CreateHeapTable(name string, desc *tuple.Desc, primaryKey string) (*heap.File, error) {
	f, err := heap.Open(filepath.Join(db.cfg.DataDir, name+".dat"), desc, db.pool)
	if err != nil {
		return nil, err
	}
	db.catalog.AddTable(f, name, primaryKey)
	return f, nil
}

// CreateBTreeTable opens (or creates) the B+ tree file for name under the
// data directory, keyed on keyField, and registers it.
func (db *DB) CreateBTreeTable(name string, desc *tuple.Desc, keyField int) (*btree.File, error) {
	f, err := btree.Open(filepath.Join(db.cfg.DataDir, name+".idx"), desc, keyField, db.pool)
	if err != nil {
		return nil, err
	}
	key, err := desc.NameAt(keyField)
	if err != nil {
		return nil, err
	}
	db.catalog.AddTable(f, name, key)
	return f, nil
}

// Begin starts a transaction.
func (db *DB) Begin() storage.TransactionID {
	return storage.NewTransactionID()
}

// Commit flushes and releases everything tid touched.
func (db *DB) Commit(tid storage.TransactionID) error {
	return db.pool.TransactionComplete(tid, true)
}

// Abort discards tid's dirty pages and releases its locks.
func (db *DB) Abort(tid storage.TransactionID) error {
	return db.pool.TransactionComplete(tid, false)
}

// Close flushes every dirty page and closes all table files.
func (db *DB) Close() error {
	if err := db.pool.FlushAllPages(); err != nil {
		return err
	}

	var firstErr error
	for _, id := range db.catalog.TableIDs() {
		f, err := db.catalog.DatabaseFile(id)
		if err != nil {
			continue
		}
		if c, ok := f.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
