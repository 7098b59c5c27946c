// Package store persists attribute tables. A Store is the explicit workspace
// handle passed to every pipeline stage.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/model"
)

// ErrTableNotFound is returned by Load for a table the store does not hold.
var ErrTableNotFound = eris.New("store: table not found")

// TableInfo describes one stored table.
type TableInfo struct {
	Name string `json:"name" yaml:"name"`
	Rows int64  `json:"rows" yaml:"rows"`
}

// Store defines the persistence interface for attribute tables.
type Store interface {
	// Load reads a whole table in stored row order.
	Load(ctx context.Context, name string) (*model.Table, error)
	// Save replaces the named table with t atomically.
	Save(ctx context.Context, t *model.Table) error
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]TableInfo, error)
	Drop(ctx context.Context, name string) error

	Close() error
}
