package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Column is one column of a replaced table.
type Column struct {
	Name string
	Type string // SQL type, e.g. "text", "bigint", "double precision"
}

// ReplaceConfig defines the parameters for a whole-table replacement.
type ReplaceConfig struct {
	Schema  string // optional; empty uses the search path
	Table   string
	Columns []Column
}

// ReplaceTable drops and recreates a table and COPYs rows into it inside one
// transaction, so readers see either the old table or the complete new one.
// 1. DROP TABLE IF EXISTS
// 2. CREATE TABLE with the given columns
// 3. COPY rows
// 4. Commit
func ReplaceTable(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if cfg.Table == "" {
		return 0, eris.New("db: replace: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ident := TableIdent(cfg.Schema, cfg.Table)
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return 0, eris.Wrapf(err, "db: replace: drop %s", cfg.Table)
	}
	if _, err := tx.Exec(ctx, createSQL(ident, cfg.Columns)); err != nil {
		return 0, eris.Wrapf(err, "db: replace: create %s", cfg.Table)
	}

	names := make([]string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		names[i] = c.Name
	}
	n, err := CopyFromSchema(ctx, tx, cfg.Schema, cfg.Table, names, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace: copy %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}

func createSQL(ident string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("%s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))
}

// TableIdent quotes a table name, qualified by schema when one is given.
func TableIdent(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
