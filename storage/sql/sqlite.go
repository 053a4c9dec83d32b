// Package sql provides the SQLite-backed implementation of the storage
// interface, built around a single embedded relational engine with
// foreign keys, JSON text columns, and datetime('now'); unlike the
// Postgres/MySQL/SQLite3 "flavor" abstraction dex's storage/sql carries for
// its own multi-backend support, this package only ever talks to SQLite, so
// there is no query-translation layer to maintain.
package sql

import (
	"database/sql"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/dorky-robot/salita-mesh/pkg/log"
)

// Config describes how to open the SQLite-backed store.
type Config struct {
	// File is the path to the database file. Use ":memory:" for a
	// throwaway database, mainly useful in tests that want SQL semantics
	// without the conformance overhead of storage/memory.
	File string `json:"file" yaml:"file"`
}

// Open creates a new storage implementation backed by SQLite.
func (c Config) Open(logger log.Logger) (*conn, error) {
	// _txlock=immediate makes every db.Begin() issue BEGIN IMMEDIATE
	// rather than SQLite's default deferred lock, so RegisterNodeAtomic
	// takes its write lock up front instead of discovering a conflict
	// partway through the transaction.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", c.File)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// A single writer at a time; any other goroutine attempting
	// concurrent access waits on the busy timeout instead of racing
	// SQLite's file locking.
	db.SetMaxOpenConns(1)

	cn := &conn{db: db, logger: logger}
	if err := cn.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to perform migrations: %w", err)
	}
	return cn, nil
}

// conn is the main database connection.
type conn struct {
	db     *sql.DB
	logger log.Logger
}

func (c *conn) Close() error {
	return c.db.Close()
}

func isPrimaryKeyConflict(err error) bool {
	sqlErr, ok := err.(sqlite3.Error)
	if !ok {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
