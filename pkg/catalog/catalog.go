// Package catalog tracks the tables of a database: each table's backing
// file, schema, name and primary key. The buffer pool resolves table ids to
// files through it.
package catalog

import (
	"sync"

	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type table struct {
	file       bufferpool.DbFile
	name       string
	primaryKey string
}

// Catalog is an in-memory table registry. Adding a table whose name or id
// collides with an existing one replaces the old entry.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[int32]*table
	byName map[string]int32
	ids    []int32
	log    *logrus.Entry
}

func New() *Catalog {
	return &Catalog{
		byID:   map[int32]*table{},
		byName: map[string]int32{},
		log:    logger.L.WithField("prefix", "catalog"),
	}
}

// AddTable registers file under name. primaryKey names the key field, empty
// when the table has none.
func (c *Catalog) AddTable(file bufferpool.DbFile, name, primaryKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldID, ok := c.byName[name]; ok && oldID != file.ID() {
		c.removeLocked(oldID)
	}
	if _, ok := c.byID[file.ID()]; ok {
		c.removeLocked(file.ID())
	}

	c.byID[file.ID()] = &table{file: file, name: name, primaryKey: primaryKey}
	c.byName[name] = file.ID()
	c.ids = append(c.ids, file.ID())
	c.log.Debugf("added table %q (id %d)", name, file.ID())
}

func (c *Catalog) removeLocked(id int32) {
	t, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	if c.byName[t.name] == id {
		delete(c.byName, t.name)
	}
	for i, v := range c.ids {
		if v == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
}

// DatabaseFile returns the file backing the named table.
func (c *Catalog) DatabaseFile(tableID int32) (bufferpool.DbFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byID[tableID]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNoSuchTuple, "no table with id %d", tableID)
	}
	return t.file, nil
}

// TupleDesc returns the schema of the named table.
func (c *Catalog) TupleDesc(tableID int32) (*tuple.Desc, error) {
	f, err := c.DatabaseFile(tableID)
	if err != nil {
		return nil, err
	}
	return f.Desc(), nil
}

// TableID returns the id of the table registered under name.
func (c *Catalog) TableID(name string) (int32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byName[name]
	if !ok {
		return 0, errors.Wrapf(storage.ErrNoSuchTuple, "no table named %q", name)
	}
	return id, nil
}

// TableName returns the name the table was registered under.
func (c *Catalog) TableName(tableID int32) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byID[tableID]
	if !ok {
		return "", errors.Wrapf(storage.ErrNoSuchTuple, "no table with id %d", tableID)
	}
	return t.name, nil
}

// PrimaryKey returns the primary key field name of the table, empty when the
// table has none.
func (c *Catalog) PrimaryKey(tableID int32) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byID[tableID]
	if !ok {
		return "", errors.Wrapf(storage.ErrNoSuchTuple, "no table with id %d", tableID)
	}
	return t.primaryKey, nil
}

// TableIDs returns the ids of every registered table in registration order.
func (c *Catalog) TableIDs() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int32(nil), c.ids...)
}

// Clear drops every table from the catalog. Backing files are not closed.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = map[int32]*table{}
	c.byName = map[string]int32{}
	c.ids = nil
}
