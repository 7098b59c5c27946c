package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// identifier returns the COPY target, schema-qualified when schema is set.
func identifier(schema, table string) pgx.Identifier {
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

// CopyFrom streams rows into table with the COPY protocol and returns the
// number of rows written. No rows means no round trip.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	return CopyFromSchema(ctx, c, "", table, columns, rows)
}

// CopyFromSchema is CopyFrom for a table in schema. An empty schema targets
// the connection's search path.
func CopyFromSchema(ctx context.Context, c Copier, schema, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ident := identifier(schema, table)
	n, err := c.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", strings.Join(ident, "."))
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: COPY INTO %s wrote %d of %d rows", strings.Join(ident, "."), n, len(rows))
	}
	return n, nil
}
