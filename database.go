// Package mongo is an object-document mapping core for schemaless document
// stores whose wire format only carries primitives. It transcodes extended
// values through tagged wrappers, computes minimal change-sets for partial
// updates, and reads results through lazy, predicate-aware cursors.
package mongo

import (
	"fmt"
	"sync"

	"github.com/neisanworks/neisan-mongo/config"
	"github.com/neisanworks/neisan-mongo/internal/logger"
	"github.com/neisanworks/neisan-mongo/predicate"
	"github.com/neisanworks/neisan-mongo/schema"
	"github.com/neisanworks/neisan-mongo/store"
)

// Database is a handle over a store driver plus the shared validator and
// predicate compiler. It hands out collections and owns the driver's
// lifetime.
type Database struct {
	driver     store.Driver
	validator  *schema.Validator
	predicates *predicate.Compiler

	// defaultLimit caps cursors that set no explicit limit. Zero means
	// unlimited.
	defaultLimit int

	mu     sync.RWMutex
	colls  map[string]*Collection
	closed bool
}

// Open builds a database from configuration, selecting the store driver by
// name ("memory" or "sqlite").
func Open(cfg *config.Config) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger.Init(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})

	var driver store.Driver
	switch cfg.Store.Driver {
	case "", "memory":
		driver = store.NewMemory()
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		driver = s
	default:
		return nil, fmt.Errorf("mongo: unknown store driver %q", cfg.Store.Driver)
	}

	db, err := OpenWithDriver(driver)
	if err != nil {
		driver.Close()
		return nil, err
	}
	db.defaultLimit = cfg.Find.DefaultLimit
	logger.Info("database opened", "driver", cfg.Store.Driver)
	return db, nil
}

// OpenWithDriver builds a database over an already-constructed driver. The
// database takes ownership and closes the driver on Close.
func OpenWithDriver(driver store.Driver) (*Database, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	predicates, err := predicate.NewCompiler()
	if err != nil {
		return nil, err
	}
	return &Database{
		driver:     driver,
		validator:  validator,
		predicates: predicates,
		colls:      make(map[string]*Collection),
	}, nil
}

// Collection returns the named collection handle, creating it on first use.
// Handles are shared: the same name always yields the same *Collection.
func (db *Database) Collection(name string) *Collection {
	db.mu.Lock()
	defer db.mu.Unlock()
	coll, ok := db.colls[name]
	if !ok {
		coll = &Collection{db: db, name: name}
		db.colls[name] = coll
	}
	return coll
}

// Close releases the underlying driver. Safe to call more than once.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return db.driver.Close()
}

func (db *Database) isClosed() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.closed
}
