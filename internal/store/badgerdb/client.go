// Package badgerdb implements domain store interfaces on an embedded
// Badger key-value database. It backs local development and tests where
// a PostgreSQL instance is not worth the setup; records are stored as
// JSON under typed key prefixes.
package badgerdb

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// ClientConfig holds open options for the embedded database.
type ClientConfig struct {
	Dir      string
	InMemory bool
}

// Client wraps a badger.DB shared by every store.
type Client struct {
	db *badger.DB
}

// New opens the embedded database. With InMemory set, nothing touches
// disk and Dir is ignored.
func New(cfg ClientConfig) (*Client, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerdb: open: %w", err)
	}
	return &Client{db: db}, nil
}

// DB returns the underlying database handle.
func (c *Client) DB() *badger.DB {
	return c.db
}

// Close shuts down the database.
func (c *Client) Close() error {
	return c.db.Close()
}
